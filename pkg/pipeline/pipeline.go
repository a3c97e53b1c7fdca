// Package pipeline exports a timeline to a media file.
//
// An export negotiates a container and codecs once, builds a scene from a
// timeline snapshot, then drives the scene renderer frame by frame into a
// streaming [Encoder] while the audio mixer feeds the same encoder in
// parallel, one-second windows at a time.
//
// # Formats
//
// Each requested format has an ordered list of codec pairs. The first pair
// the local ffmpeg supports wins; when none is available the export falls
// back to the built-in GIF encoder, which needs no external tools:
//
//	mp4   libx264+aac, libopenh264+aac, mpeg4+aac
//	webm  libvpx-vp9+libopus, libvpx+libvorbis
//	mov   libx264+aac, prores_ks+pcm_s16le
//	gif   built-in
//	wav   built-in, audio only
//
// # Usage
//
//	exp := pipeline.NewExporter(library, pipeline.ExporterOptions{
//	    Sources: scene.DefaultSources("ffmpeg", c),
//	    Mixer:   mixer,
//	    Logger:  logger,
//	})
//	out, err := exp.Export(ctx, model.Snapshot(), pipeline.Settings{
//	    Format: "mp4",
//	    Path:   "out.mp4",
//	})
//
// The exporter reads only the snapshot it is given, so editing may continue
// while an export runs. Cancel (or cancelling ctx) stops the frame loop at
// the next frame boundary and discards the partial file.
package pipeline

import (
	"io"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/audio"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/scene"
)

// =============================================================================
// Formats
// =============================================================================

// Format constants for export.
const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
	FormatMOV  = "mov"
	FormatGIF  = "gif"
	FormatWAV  = "wav"
)

// DefaultFormat is the format used when none is requested.
const DefaultFormat = FormatMP4

// ValidFormats is the set of supported export formats.
var ValidFormats = map[string]bool{
	FormatMP4:  true,
	FormatWebM: true,
	FormatMOV:  true,
	FormatGIF:  true,
	FormatWAV:  true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		names := make([]string, 0, len(ValidFormats))
		for f := range ValidFormats {
			names = append(names, f)
		}
		slices.Sort(names)
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: %s)", format, strings.Join(names, ", "))
	}
	return nil
}

// MaxMemory bounds the in-memory size of a built-in container.
const MaxMemory = 2 << 30

// =============================================================================
// Settings
// =============================================================================

// Settings configures one export. It supports JSON and TOML decoding for the
// HTTP and CLI surfaces.
type Settings struct {
	Format     string  `json:"format" toml:"format"`
	Path       string  `json:"path" toml:"path"`
	Width      int     `json:"width,omitempty" toml:"width"`
	Height     int     `json:"height,omitempty" toml:"height"`
	FPS        float64 `json:"fps,omitempty" toml:"fps"`
	SampleRate int     `json:"sample_rate,omitempty" toml:"sample_rate"`
	Background string  `json:"background,omitempty" toml:"background"`

	// Strict fails with PLATFORM_COMPATIBILITY instead of falling back to
	// GIF when the requested format has no usable codecs.
	Strict bool `json:"strict,omitempty" toml:"strict"`

	// Progress is called after every frame (or audio window for audio-only
	// exports) from the export goroutine.
	Progress func(Status) `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks the settings and fills defaults.
// It is idempotent.
func (s *Settings) ValidateAndSetDefaults() error {
	if s.validated {
		return nil
	}
	if s.Format == "" {
		s.Format = formatFromPath(s.Path)
	}
	if err := ValidateFormat(s.Format); err != nil {
		return err
	}
	if err := errors.ValidateOutputPath(s.Path); err != nil {
		return err
	}
	if s.SampleRate == 0 {
		s.SampleRate = audio.DefaultSampleRate
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		return errors.New(errors.ErrCodeInvalidInput, "sample rate %d outside [8000, 192000]", s.SampleRate)
	}
	sc := s.Scene()
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return err
	}
	s.Width, s.Height, s.FPS, s.Background = sc.Width, sc.Height, sc.FPS, sc.Background
	s.validated = true
	return nil
}

// Scene returns the canvas part of the settings.
func (s *Settings) Scene() scene.Settings {
	return scene.Settings{Width: s.Width, Height: s.Height, FPS: s.FPS, Background: s.Background}
}

func formatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ValidFormats[ext] {
		return ext
	}
	return DefaultFormat
}

// =============================================================================
// Results
// =============================================================================

// Output describes a finished export.
type Output struct {
	Path       string  `json:"path"`
	Format     string  `json:"format"`
	MimeType   string  `json:"mime_type"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Fallback   bool    `json:"fallback,omitempty"`
	Frames     int     `json:"frames"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
}

// State is the exporter life cycle.
type State string

const (
	StateIdle      State = "idle"
	StateRendering State = "rendering"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Status is a progress report.
type Status struct {
	State       State   `json:"state"`
	Format      string  `json:"format,omitempty"`
	Frame       int     `json:"frame"`
	TotalFrames int     `json:"total_frames"`
	Error       string  `json:"error,omitempty"`
	Output      *Output `json:"output,omitempty"`
}

// Progress returns Frame/TotalFrames in [0, 1].
func (s Status) Progress() float64 {
	if s.TotalFrames <= 0 {
		if s.State == StateComplete {
			return 1
		}
		return 0
	}
	return math.Min(1, float64(s.Frame)/float64(s.TotalFrames))
}

func discard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(io.Discard)
	}
	return logger
}
