package scene

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/framecut/framecut/pkg/media"
)

// Sequencer is implemented by sources that decode faster when frames are
// requested in time order. Sequential returns such a source for one pass
// at fps; the caller closes it when the pass is done.
type Sequencer interface {
	Sequential(fps float64) SequentialSource
}

// SequentialSource is a FrameSource holding decoder processes open.
type SequentialSource interface {
	FrameSource
	io.Closer
}

// StartFunc starts an external command and returns its standard output.
// Closing the reader stops the command. It is replaced in tests.
type StartFunc func(name string, args ...string) (io.ReadCloser, error)

// ExecStart runs the command with os/exec.
func ExecStart(name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.Command(name, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &process{ReadCloser: out, cmd: cmd}, nil
}

type process struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *process) Close() error {
	_ = p.cmd.Process.Kill()
	_ = p.cmd.Wait()
	return nil
}

// =============================================================================
// Streaming video
// =============================================================================

// Default limits for StreamSource.
const (
	DefaultMaxGap     = 2.0 // seconds read forward before restarting instead
	DefaultMaxStreams = 4   // open decoders per media item
)

// StreamSource decodes videos with one long-running ffmpeg process per
// playback position, emitting raw RGBA at a fixed rate. In-order requests
// read the next frames from the pipe; a request behind the stream or more
// than MaxGap ahead of it opens a new stream at that time. Items without
// known dimensions are served by Fallback.
type StreamSource struct {
	Path       string
	FPS        float64
	Start      StartFunc
	Fallback   FrameSource
	MaxGap     float64
	MaxStreams int

	mu      sync.Mutex
	streams map[string][]*stream
	closed  bool
}

type stream struct {
	r    io.ReadCloser
	w, h int
	next float64 // source time of the next frame in r
	curT float64
	cur  *image.RGBA
	eof  bool
	used int64
}

// NewStreamSource returns a streaming source for one pass at fps.
func NewStreamSource(ffmpegPath string, fps float64, fallback FrameSource) *StreamSource {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &StreamSource{
		Path:       ffmpegPath,
		FPS:        fps,
		Start:      ExecStart,
		Fallback:   fallback,
		MaxGap:     DefaultMaxGap,
		MaxStreams: DefaultMaxStreams,
		streams:    make(map[string][]*stream),
	}
}

// Sequential implements Sequencer for single-frame extraction.
func (s *FFmpegFrameSource) Sequential(fps float64) SequentialSource {
	return NewStreamSource(s.Path, fps, s)
}

func (s *StreamSource) Frame(ctx context.Context, item media.Item, t float64) (image.Image, error) {
	if item.Width <= 0 || item.Height <= 0 || s.FPS <= 0 {
		if s.Fallback == nil {
			return nil, fmt.Errorf("stream %s: unknown dimensions", item.Name())
		}
		return s.Fallback.Frame(ctx, item, t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("stream %s: source closed", item.Name())
	}

	st, err := s.stream(item, t)
	if err != nil {
		return nil, err
	}
	half := 0.5 / s.FPS
	for !st.eof && (st.cur == nil || t >= st.next-half) {
		img := image.NewRGBA(image.Rect(0, 0, st.w, st.h))
		if _, err := io.ReadFull(st.r, img.Pix); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				st.eof = true
				break
			}
			return nil, fmt.Errorf("stream %s at %.3fs: %w", item.Name(), t, err)
		}
		st.cur, st.curT = img, st.next
		st.next += 1 / s.FPS
	}
	if st.cur == nil {
		return nil, fmt.Errorf("stream %s at %.3fs: no frames", item.Name(), t)
	}
	return st.cur, nil
}

// stream returns an open stream that can reach t by reading forward,
// starting a new one when none can. Callers hold s.mu.
func (s *StreamSource) stream(item media.Item, t float64) (*stream, error) {
	half := 0.5 / s.FPS
	list := s.streams[item.ID]
	var clock int64
	for _, st := range list {
		clock = max(clock, st.used)
	}
	for _, st := range list {
		start := st.next
		if st.cur != nil {
			start = st.curT
		}
		if t >= start-half && t <= st.next+s.MaxGap {
			st.used = clock + 1
			return st, nil
		}
	}

	if len(list) >= max(1, s.MaxStreams) {
		lru := 0
		for i, st := range list {
			if st.used < list[lru].used {
				lru = i
			}
		}
		_ = list[lru].r.Close()
		list = append(list[:lru], list[lru+1:]...)
	}

	start := max(0, t)
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-i", item.Path(),
		"-an",
		"-r", strconv.FormatFloat(s.FPS, 'f', -1, 64),
		"-s", fmt.Sprintf("%dx%d", item.Width, item.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
	r, err := s.Start(s.Path, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stream %s at %.3fs: %w", item.Name(), start, err)
	}
	st := &stream{r: r, w: item.Width, h: item.Height, next: start, used: clock + 1}
	s.streams[item.ID] = append(list, st)
	return st, nil
}

// Close stops every decoder. Later requests fail.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, list := range s.streams {
		for _, st := range list {
			_ = st.r.Close()
		}
		delete(s.streams, id)
	}
	s.closed = true
	return nil
}

// =============================================================================
// Dispatch
// =============================================================================

type sequentialSet struct {
	SourceSet
	closer io.Closer
}

func (s *sequentialSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Sequential returns a copy of the set whose video source streams, when the
// video source supports it.
func (s *SourceSet) Sequential(fps float64) SequentialSource {
	out := &sequentialSet{SourceSet: *s}
	if seq, ok := s.Video.(Sequencer); ok {
		v := seq.Sequential(fps)
		out.Video, out.closer = v, v
	}
	return out
}
