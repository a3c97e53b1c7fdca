package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/audio"
)

// Encoder consumes rendered frames and mixed audio and writes a container.
// WriteFrame and WriteAudio may be called concurrently with each other but
// each is called from a single goroutine. Abort must be safe to call at any
// point, including after Finish.
type Encoder interface {
	Start(ctx context.Context) error
	WriteFrame(img image.Image) error
	WriteAudio(buf *audio.Buffer) error
	Finish(ctx context.Context) error
	Abort() error
}

// EncoderFactory creates the encoder for a negotiated configuration.
type EncoderFactory func(cfg Config, s Settings) (Encoder, error)

// DefaultEncoders returns a factory that uses the built-in encoders where
// possible and ffmpeg otherwise.
func DefaultEncoders(ffmpegPath string, logger *log.Logger) EncoderFactory {
	return func(cfg Config, s Settings) (Encoder, error) {
		switch {
		case cfg.Format == FormatGIF:
			return NewGIFEncoder(s.Path, s.FPS), nil
		case cfg.Format == FormatWAV:
			return NewWAVEncoder(s.Path, s.SampleRate), nil
		case cfg.Builtin:
			return nil, fmt.Errorf("no built-in encoder for %s", cfg.Format)
		}
		return NewFFmpegEncoder(ffmpegPath, cfg, s, logger), nil
	}
}

// partPath is where an encoder writes before the output is complete.
func partPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+".part")
}

// =============================================================================
// GIF
// =============================================================================

// GIFEncoder writes an animated GIF in process. Frame delays are spread so
// the total length matches the frame count to the nearest centisecond.
type GIFEncoder struct {
	path string
	fps  float64

	anim gif.GIF
}

// NewGIFEncoder returns an encoder writing to path.
func NewGIFEncoder(path string, fps float64) *GIFEncoder {
	return &GIFEncoder{path: path, fps: fps}
}

func (e *GIFEncoder) Start(ctx context.Context) error { return nil }

func (e *GIFEncoder) WriteFrame(img image.Image) error {
	b := img.Bounds()
	p := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), palette.Plan9)
	draw.FloydSteinberg.Draw(p, p.Rect, img, b.Min)

	i := len(e.anim.Image)
	e.anim.Image = append(e.anim.Image, p)
	e.anim.Delay = append(e.anim.Delay, centiseconds(i+1, e.fps)-centiseconds(i, e.fps))
	return nil
}

// centiseconds is the presentation time of frame n in 1/100 s.
func centiseconds(n int, fps float64) int {
	return int(math.Round(float64(n) * 100 / fps))
}

// WriteAudio discards audio; GIF has no audio track.
func (e *GIFEncoder) WriteAudio(*audio.Buffer) error { return nil }

func (e *GIFEncoder) Finish(ctx context.Context) error {
	if len(e.anim.Image) == 0 {
		return fmt.Errorf("gif: no frames")
	}
	return writeAtomic(e.path, func(w io.Writer) error {
		return gif.EncodeAll(w, &e.anim)
	})
}

func (e *GIFEncoder) Abort() error {
	e.anim = gif.GIF{}
	return removeIfExists(partPath(e.path))
}

// =============================================================================
// WAV
// =============================================================================

// WAVEncoder collects mixed audio and writes a 16-bit PCM WAV file.
type WAVEncoder struct {
	path string
	rate int
	pcm  *audio.Buffer
}

// NewWAVEncoder returns an encoder writing to path.
func NewWAVEncoder(path string, sampleRate int) *WAVEncoder {
	return &WAVEncoder{path: path, rate: sampleRate, pcm: audio.NewBuffer(sampleRate, audio.Channels, 0)}
}

func (e *WAVEncoder) Start(ctx context.Context) error { return nil }

// WriteFrame ignores video.
func (e *WAVEncoder) WriteFrame(image.Image) error { return nil }

func (e *WAVEncoder) WriteAudio(buf *audio.Buffer) error {
	for c := range e.pcm.Data {
		e.pcm.Data[c] = append(e.pcm.Data[c], buf.Channel(c)...)
	}
	return nil
}

func (e *WAVEncoder) Finish(ctx context.Context) error {
	return writeAtomic(e.path, func(w io.Writer) error {
		return audio.WriteWAV(w, e.pcm)
	})
}

func (e *WAVEncoder) Abort() error {
	e.pcm = audio.NewBuffer(e.rate, audio.Channels, 0)
	return removeIfExists(partPath(e.path))
}

// =============================================================================
// FFmpeg
// =============================================================================

// FFmpegEncoder streams raw RGBA frames into an ffmpeg process that encodes
// the video stream, while audio is spooled as raw s16le to a side file.
// Finish muxes both into the output container.
type FFmpegEncoder struct {
	path   string
	ffmpeg string
	cfg    Config
	s      Settings
	logger *log.Logger

	// Command builds processes; tests replace it.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	audioFile *os.File
	audioN    int64
	frame     []byte

	mu      sync.Mutex
	aborted bool
}

// NewFFmpegEncoder returns an encoder for cfg writing to s.Path.
func NewFFmpegEncoder(ffmpegPath string, cfg Config, s Settings, logger *log.Logger) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{
		path:    s.Path,
		ffmpeg:  ffmpegPath,
		cfg:     cfg,
		s:       s,
		logger:  discard(logger),
		Command: exec.CommandContext,
	}
}

func (e *FFmpegEncoder) videoPath() string { return partPath(e.path) + ".video." + e.cfg.Format }
func (e *FFmpegEncoder) audioPath() string { return partPath(e.path) + ".pcm" }

// videoArgs builds the ffmpeg command line for the video pass.
func videoArgs(cfg Config, s Settings, out string) []string {
	args := []string{
		"-y", "-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-r", strconv.FormatFloat(s.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", cfg.VideoCodec,
	}
	switch cfg.VideoCodec {
	case "libx264", "libopenh264":
		args = append(args, "-pix_fmt", "yuv420p", "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
		if cfg.VideoCodec == "libx264" {
			args = append(args, "-preset", "veryfast", "-crf", "20")
		}
	case "mpeg4":
		args = append(args, "-pix_fmt", "yuv420p", "-q:v", "3")
	case "libvpx-vp9":
		args = append(args, "-pix_fmt", "yuv420p", "-b:v", "0", "-crf", "32")
	case "libvpx":
		args = append(args, "-pix_fmt", "yuv420p", "-b:v", "2M")
	case "prores_ks":
		args = append(args, "-pix_fmt", "yuv422p10le", "-profile:v", "3")
	}
	return append(args, out)
}

// muxArgs builds the ffmpeg command line that joins video and audio.
func muxArgs(cfg Config, s Settings, video, pcm, out string, withAudio bool) []string {
	args := []string{"-y", "-v", "error", "-i", video}
	if withAudio {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(s.SampleRate),
			"-ac", strconv.Itoa(audio.Channels),
			"-i", pcm,
			"-c:a", cfg.AudioCodec,
		)
	}
	args = append(args, "-c:v", "copy", "-f", muxer(cfg.Format), out)
	return args
}

func muxer(format string) string {
	if format == FormatMOV {
		return "mov"
	}
	return format
}

func (e *FFmpegEncoder) Start(ctx context.Context) error {
	af, err := os.Create(e.audioPath())
	if err != nil {
		return err
	}
	e.audioFile = af

	e.cmd = e.Command(ctx, e.ffmpeg, videoArgs(e.cfg, e.s, e.videoPath())...)
	e.cmd.Stderr = &logWriter{logger: e.logger}
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	e.frame = make([]byte, 4*e.s.Width*e.s.Height)
	return nil
}

func (e *FFmpegEncoder) WriteFrame(img image.Image) error {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Dx() != e.s.Width || rgba.Rect.Dy() != e.s.Height || rgba.Stride != 4*e.s.Width {
		dst := image.NewRGBA(image.Rect(0, 0, e.s.Width, e.s.Height))
		draw.Draw(dst, dst.Rect, img, img.Bounds().Min, draw.Src)
		rgba = dst
	}
	copy(e.frame, rgba.Pix)
	if _, err := e.stdin.Write(e.frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) WriteAudio(buf *audio.Buffer) error {
	n, err := e.audioFile.Write(audio.PCM16(buf))
	e.audioN += int64(n)
	return err
}

func (e *FFmpegEncoder) Finish(ctx context.Context) error {
	if err := e.stdin.Close(); err != nil {
		return err
	}
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg video pass: %w", err)
	}
	if err := e.audioFile.Close(); err != nil {
		return err
	}

	part := partPath(e.path)
	mux := e.Command(ctx, e.ffmpeg, muxArgs(e.cfg, e.s, e.videoPath(), e.audioPath(), part, e.audioN > 0)...)
	mux.Stderr = &logWriter{logger: e.logger}
	if err := mux.Run(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w", err)
	}
	_ = os.Remove(e.videoPath())
	_ = os.Remove(e.audioPath())
	return os.Rename(part, e.path)
}

func (e *FFmpegEncoder) Abort() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted {
		return nil
	}
	e.aborted = true
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil && e.cmd.ProcessState == nil {
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
	}
	if e.audioFile != nil {
		_ = e.audioFile.Close()
	}
	for _, p := range []string{e.videoPath(), e.audioPath(), partPath(e.path)} {
		if err := removeIfExists(p); err != nil {
			return err
		}
	}
	return nil
}

// logWriter forwards ffmpeg stderr to the logger at debug level.
type logWriter struct {
	logger *log.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("ffmpeg", "stderr", string(p))
	return len(p), nil
}

// =============================================================================
// Files
// =============================================================================

// writeAtomic writes through a hidden part file and renames it into place,
// so a failed write never leaves a truncated output.
func writeAtomic(path string, write func(io.Writer) error) error {
	part := partPath(path)
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(part)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
