package scene

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
)

// FrameSource supplies the picture of a media item at a source time.
type FrameSource interface {
	Frame(ctx context.Context, item media.Item, t float64) (image.Image, error)
}

// =============================================================================
// Still images
// =============================================================================

// StillSource decodes image files once and returns the same picture for
// every time. PNG, JPEG, BMP and WebP are supported.
type StillSource struct {
	mu     sync.Mutex
	images map[string]image.Image
}

// NewStillSource returns an empty still-image source.
func NewStillSource() *StillSource {
	return &StillSource{images: make(map[string]image.Image)}
}

func (s *StillSource) Frame(ctx context.Context, item media.Item, t float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images[item.URL]; ok {
		return img, nil
	}
	f, err := os.Open(item.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", item.Name(), err)
	}
	s.images[item.URL] = img
	return img, nil
}

// Put registers an already decoded image for url.
func (s *StillSource) Put(url string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[url] = img
}

// =============================================================================
// Video via ffmpeg
// =============================================================================

// FFmpegFrameSource extracts single video frames with ffmpeg. Extracted
// frames are stored as PNG in a cache, and the last frame per media item is
// kept decoded so a paused preview does not re-run ffmpeg.
type FFmpegFrameSource struct {
	Path  string // ffmpeg binary, defaults to "ffmpeg"
	Run   media.RunFunc
	Cache cache.Cache
	Keyer cache.Keyer
	TTL   time.Duration

	mu   sync.Mutex
	last map[string]lastFrame
}

type lastFrame struct {
	key string
	img image.Image
}

// NewFFmpegFrameSource returns a frame source using the given ffmpeg binary
// and cache. c may be nil.
func NewFFmpegFrameSource(path string, c cache.Cache) *FFmpegFrameSource {
	if path == "" {
		path = "ffmpeg"
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	return &FFmpegFrameSource{
		Path:  path,
		Run:   media.ExecRun,
		Cache: c,
		Keyer: cache.NewDefaultKeyer(),
		TTL:   24 * time.Hour,
		last:  make(map[string]lastFrame),
	}
}

func (s *FFmpegFrameSource) Frame(ctx context.Context, item media.Item, t float64) (image.Image, error) {
	// Millisecond resolution is finer than any frame rate we export.
	ms := int64(math.Round(t * 1000))
	key := s.Keyer.FrameKey(item.URL, ms, 0, 0)

	s.mu.Lock()
	lf, ok := s.last[item.ID]
	s.mu.Unlock()
	if ok && lf.key == key {
		return lf.img, nil
	}

	data, hit, err := s.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "frame")
		data, err = s.extract(ctx, item, float64(ms)/1000)
		if err != nil {
			return nil, err
		}
		if err := s.Cache.Set(ctx, key, data, s.TTL); err == nil {
			observability.Cache().OnCacheSet(ctx, "frame", len(data))
		}
	} else {
		observability.Cache().OnCacheHit(ctx, "frame")
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame of %s at %.3fs: %w", item.Name(), t, err)
	}
	s.mu.Lock()
	s.last[item.ID] = lastFrame{key: key, img: img}
	s.mu.Unlock()
	return img, nil
}

func (s *FFmpegFrameSource) extract(ctx context.Context, item media.Item, t float64) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", item.Path(),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
	out, err := s.Run(ctx, s.Path, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame %s at %.3fs: %w", item.Name(), t, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg frame %s at %.3fs: no output", item.Name(), t)
	}
	return out, nil
}

// =============================================================================
// Dispatch
// =============================================================================

// SourceSet routes requests to a source per media kind.
type SourceSet struct {
	Video FrameSource
	Image FrameSource
}

// DefaultSources returns a SourceSet backed by ffmpeg for video and a
// StillSource for images.
func DefaultSources(ffmpegPath string, c cache.Cache) *SourceSet {
	return &SourceSet{
		Video: NewFFmpegFrameSource(ffmpegPath, c),
		Image: NewStillSource(),
	}
}

func (s *SourceSet) Frame(ctx context.Context, item media.Item, t float64) (image.Image, error) {
	var src FrameSource
	switch item.Kind {
	case media.KindVideo:
		src = s.Video
	case media.KindImage:
		src = s.Image
	}
	if src == nil {
		return nil, fmt.Errorf("no frame source for %s media %s", item.Kind, item.Name())
	}
	return src.Frame(ctx, item, t)
}
