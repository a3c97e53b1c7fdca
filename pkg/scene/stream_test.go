package scene

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/framecut/framecut/pkg/media"
)

// rawFrames is an ffmpeg stand-in emitting frames RGBA frames of w x h,
// where every byte of frame k is k.
type rawFrames struct {
	*bytes.Reader
	closed bool
}

func (r *rawFrames) Close() error {
	r.closed = true
	return nil
}

type starter struct {
	w, h, frames int
	starts       [][]string
	readers      []*rawFrames
}

func (s *starter) start(name string, args ...string) (io.ReadCloser, error) {
	s.starts = append(s.starts, args)
	size := s.w * s.h * 4
	data := make([]byte, 0, size*s.frames)
	for k := 0; k < s.frames; k++ {
		data = append(data, bytes.Repeat([]byte{byte(k)}, size)...)
	}
	r := &rawFrames{Reader: bytes.NewReader(data)}
	s.readers = append(s.readers, r)
	return r, nil
}

func level(t *testing.T, img image.Image) uint8 {
	t.Helper()
	rgba, ok := img.(*image.RGBA)
	if !ok {
		t.Fatalf("frame is %T, want *image.RGBA", img)
	}
	return rgba.Pix[0]
}

func TestStreamSourceReadsInOrder(t *testing.T) {
	st := &starter{w: 2, h: 2, frames: 20}
	s := NewStreamSource("ffmpeg", 10, nil)
	s.Start = st.start
	item := media.Item{ID: "v", URL: "clip.mp4", Kind: media.KindVideo, Width: 2, Height: 2}
	ctx := context.Background()

	for k := 0; k < 10; k++ {
		img, err := s.Frame(ctx, item, 1+float64(k)/10)
		if err != nil {
			t.Fatal(err)
		}
		if got := level(t, img); got != uint8(k) {
			t.Errorf("frame at %.1fs = %d, want %d", 1+float64(k)/10, got, k)
		}
	}
	if len(st.starts) != 1 {
		t.Fatalf("ffmpeg started %d times for in-order frames, want 1", len(st.starts))
	}
	args := strings.Join(st.starts[0], " ")
	for _, want := range []string{"-ss 1.000", "-r 10", "-s 2x2", "-pix_fmt rgba"} {
		if !strings.Contains(args, want) {
			t.Errorf("args = %q, missing %q", args, want)
		}
	}

	// Repeating the current time and skipping ahead stay on the stream.
	img, _ := s.Frame(ctx, item, 1.9)
	if got := level(t, img); got != 9 {
		t.Errorf("repeat = %d, want 9", got)
	}
	img, _ = s.Frame(ctx, item, 2.3)
	if got := level(t, img); got != 13 || len(st.starts) != 1 {
		t.Errorf("skip ahead = %d with %d starts, want 13 with 1", got, len(st.starts))
	}

	// Going back opens a second stream.
	img, _ = s.Frame(ctx, item, 0.5)
	if got := level(t, img); got != 0 || len(st.starts) != 2 {
		t.Errorf("seek back = %d with %d starts, want 0 with 2", got, len(st.starts))
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	for i, r := range st.readers {
		if !r.closed {
			t.Errorf("stream %d left open", i)
		}
	}
	if _, err := s.Frame(ctx, item, 0.6); err == nil {
		t.Error("Frame after Close should fail")
	}
}

func TestStreamSourceHoldsLastFrame(t *testing.T) {
	st := &starter{w: 1, h: 1, frames: 3}
	s := NewStreamSource("ffmpeg", 10, nil)
	s.Start = st.start
	item := media.Item{ID: "v", Kind: media.KindVideo, Width: 1, Height: 1}
	ctx := context.Background()

	for _, tt := range []float64{0, 0.1, 0.2, 0.3, 0.4} {
		img, err := s.Frame(ctx, item, tt)
		if err != nil {
			t.Fatalf("Frame(%v): %v", tt, err)
		}
		if tt >= 0.2 && level(t, img) != 2 {
			t.Errorf("Frame(%v) = %d, want last frame 2", tt, level(t, img))
		}
	}
	if len(st.starts) != 1 {
		t.Errorf("ffmpeg started %d times, want 1", len(st.starts))
	}
}

func TestStreamSourceLimitsStreams(t *testing.T) {
	st := &starter{w: 1, h: 1, frames: 5}
	s := NewStreamSource("ffmpeg", 10, nil)
	s.Start = st.start
	s.MaxStreams = 2
	item := media.Item{ID: "v", Kind: media.KindVideo, Width: 1, Height: 1}
	ctx := context.Background()

	for _, at := range []float64{10, 5, 0} {
		if _, err := s.Frame(ctx, item, at); err != nil {
			t.Fatal(err)
		}
	}
	if len(st.starts) != 3 {
		t.Fatalf("starts = %d, want 3", len(st.starts))
	}
	if !st.readers[0].closed || st.readers[1].closed || st.readers[2].closed {
		t.Error("the least recently used stream should be closed first")
	}
}

func TestStreamSourceFallback(t *testing.T) {
	fallback := &fakeSource{colors: map[string]color.Color{"v": red}}
	s := NewStreamSource("ffmpeg", 10, fallback)
	s.Start = func(string, ...string) (io.ReadCloser, error) {
		t.Fatal("no stream without dimensions")
		return nil, nil
	}
	if _, err := s.Frame(context.Background(), media.Item{ID: "v", Kind: media.KindVideo}, 1); err != nil {
		t.Fatal(err)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestSourceSetSequential(t *testing.T) {
	set := DefaultSources("ffmpeg", nil)
	seq := set.Sequential(25)
	defer seq.Close()

	ss, ok := seq.(*sequentialSet)
	if !ok {
		t.Fatalf("Sequential returned %T", seq)
	}
	stream, ok := ss.Video.(*StreamSource)
	if !ok || stream.FPS != 25 {
		t.Fatalf("video source = %T, want a 25 fps stream", ss.Video)
	}
	if ss.Image != set.Image {
		t.Error("stills should be shared")
	}

	plain := (&SourceSet{Image: NewStillSource()}).Sequential(25)
	if err := plain.Close(); err != nil {
		t.Errorf("Close without streams = %v", err)
	}
}
