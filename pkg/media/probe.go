package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/observability"
)

// RunFunc executes an external command and returns its standard output.
// It is replaced in tests.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRun runs the command with os/exec.
func ExecRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Prober fills in Item metadata using ffprobe. Results are cached by URL.
type Prober struct {
	Path   string // ffprobe binary, defaults to "ffprobe"
	Run    RunFunc
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewProber creates a prober with nil-safe defaults.
func NewProber(path string, c cache.Cache, logger *log.Logger) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Prober{Path: path, Run: ExecRun, Cache: c, Keyer: cache.NewDefaultKeyer(), Logger: logger}
}

// ffprobeOutput is the subset of `ffprobe -print_format json -show_format
// -show_streams` the editor reads.
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		Duration    string `json:"duration"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// Probe returns metadata for the file at url. The returned item has no ID;
// callers assign one.
func (p *Prober) Probe(ctx context.Context, url string) (Item, error) {
	key := p.Keyer.ProbeKey(url)
	if data, ok, err := p.Cache.Get(ctx, key); err == nil && ok {
		var it Item
		if json.Unmarshal(data, &it) == nil {
			observability.Cache().OnCacheHit(ctx, "probe")
			return it, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "probe")

	it := Item{URL: url}
	out, err := p.Run(ctx, p.Path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", it.Path())
	if err != nil {
		return Item{}, fmt.Errorf("ffprobe %s: %w", url, err)
	}
	if err := parseProbe(out, &it); err != nil {
		return Item{}, fmt.Errorf("ffprobe %s: %w", url, err)
	}

	if data, err := json.Marshal(it); err == nil {
		if err := p.Cache.Set(ctx, key, data, 0); err != nil {
			p.Logger.Debug("probe cache write failed", "url", url, "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "probe", len(data))
		}
	}
	p.Logger.Debug("probed media", "url", url, "kind", it.Kind, "duration", it.Duration)
	return it, nil
}

func parseProbe(out []byte, it *Item) error {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return err
	}

	var hasVideo, still bool
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			it.Width, it.Height = s.Width, s.Height
			still = s.Disposition.AttachedPic == 1 || isImageCodec(s.CodecName)
		case "audio":
			it.HasAudio = true
		}
	}

	if d, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil {
		it.Duration = d
	}

	switch {
	case hasVideo && still && !it.HasAudio:
		it.Kind = KindImage
		it.Duration = 0
	case hasVideo:
		it.Kind = KindVideo
	case it.HasAudio:
		it.Kind = KindAudio
	default:
		return fmt.Errorf("no audio or video streams")
	}
	return nil
}

func isImageCodec(codec string) bool {
	switch codec {
	case "png", "mjpeg", "webp", "bmp", "tiff":
		return true
	}
	return false
}
