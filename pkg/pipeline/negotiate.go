package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
)

// Codecs is a video/audio encoder pair.
type Codecs struct {
	Video string
	Audio string
}

// preferences lists codec pairs per format, best first.
var preferences = map[string][]Codecs{
	FormatMP4:  {{"libx264", "aac"}, {"libopenh264", "aac"}, {"mpeg4", "aac"}},
	FormatWebM: {{"libvpx-vp9", "libopus"}, {"libvpx", "libvorbis"}},
	FormatMOV:  {{"libx264", "aac"}, {"prores_ks", "pcm_s16le"}},
}

// Preferences returns the ordered codec pairs tried for format.
func Preferences(format string) []Codecs {
	return preferences[format]
}

var mimeTypes = map[string]string{
	FormatMP4:  "video/mp4",
	FormatWebM: "video/webm",
	FormatMOV:  "video/quicktime",
	FormatGIF:  "image/gif",
	FormatWAV:  "audio/wav",
}

// Config is the resolved encoder configuration for one export.
type Config struct {
	Requested  string // format asked for
	Format     string // container actually produced
	MimeType   string
	VideoCodec string // empty for built-in encoders
	AudioCodec string // empty when the container carries no audio
	Builtin    bool   // encoded in-process without ffmpeg
	AudioOnly  bool
	Fallback   bool // Format differs from Requested
}

// HasVideo reports whether frames are rendered.
func (c Config) HasVideo() bool { return !c.AudioOnly }

// HasAudio reports whether the mixer feeds the encoder.
func (c Config) HasAudio() bool { return c.AudioOnly || c.AudioCodec != "" }

func builtin(requested, format string) Config {
	c := Config{
		Requested: requested,
		Format:    format,
		MimeType:  mimeTypes[format],
		Builtin:   true,
		AudioOnly: format == FormatWAV,
		Fallback:  requested != format,
	}
	if c.AudioOnly {
		c.AudioCodec = "pcm_s16le"
	}
	return c
}

// EncoderProber lists the encoders available on this machine.
type EncoderProber interface {
	Encoders(ctx context.Context) (map[string]bool, error)
}

// FFmpegProber lists encoders with `ffmpeg -hide_banner -encoders`.
type FFmpegProber struct {
	Path string
	Run  media.RunFunc
}

// NewFFmpegProber returns a prober for the given ffmpeg binary.
func NewFFmpegProber(path string) *FFmpegProber {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegProber{Path: path, Run: media.ExecRun}
}

func (p *FFmpegProber) Encoders(ctx context.Context) (map[string]bool, error) {
	out, err := p.Run(ctx, p.Path, "-hide_banner", "-encoders")
	if err != nil {
		return nil, err
	}
	return parseEncoders(out), nil
}

// parseEncoders reads the table printed by `ffmpeg -encoders`:
//
//	 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
//	 A....D aac                  AAC (Advanced Audio Coding)
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	inTable := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "---") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		switch fields[0][0] {
		case 'V', 'A':
			encoders[fields[1]] = true
		}
	}
	return encoders
}

// Negotiator resolves formats to encoder configurations. The encoder list
// is probed once and reused for every later export.
type Negotiator struct {
	prober EncoderProber
	logger *log.Logger

	once     sync.Once
	encoders map[string]bool
	probeErr error
}

// NewNegotiator creates a negotiator. A nil prober means ffmpeg is not
// available and every video format falls back to GIF.
func NewNegotiator(prober EncoderProber, logger *log.Logger) *Negotiator {
	return &Negotiator{prober: prober, logger: discard(logger)}
}

// Available returns the probed encoder set.
func (n *Negotiator) Available(ctx context.Context) (map[string]bool, error) {
	n.once.Do(func() {
		if n.prober == nil {
			n.encoders = map[string]bool{}
			return
		}
		n.encoders, n.probeErr = n.prober.Encoders(ctx)
		if n.probeErr != nil {
			n.logger.Warn("encoder probe failed", "error", n.probeErr)
			n.encoders = map[string]bool{}
		}
	})
	return n.encoders, n.probeErr
}

// Negotiate picks the container and codecs for format. Without usable
// codecs it falls back to GIF, or fails with PLATFORM_COMPATIBILITY when
// strict is set.
func (n *Negotiator) Negotiate(ctx context.Context, format string, strict bool) (Config, error) {
	if err := ValidateFormat(format); err != nil {
		return Config{}, err
	}
	switch format {
	case FormatGIF, FormatWAV:
		cfg := builtin(format, format)
		observability.Export().OnNegotiated(ctx, format, cfg.Format, cfg.VideoCodec, false)
		return cfg, nil
	}

	encoders, _ := n.Available(ctx)
	for _, c := range preferences[format] {
		if encoders[c.Video] && encoders[c.Audio] {
			cfg := Config{
				Requested:  format,
				Format:     format,
				MimeType:   mimeTypes[format],
				VideoCodec: c.Video,
				AudioCodec: c.Audio,
			}
			n.logger.Debug("negotiated encoder", "format", format, "video", c.Video, "audio", c.Audio)
			observability.Export().OnNegotiated(ctx, format, cfg.Format, cfg.VideoCodec, false)
			return cfg, nil
		}
	}

	if strict {
		return Config{}, errors.PlatformCompatibility("no supported %s encoder on this platform", format)
	}
	cfg := builtin(format, FormatGIF)
	n.logger.Warn("no encoder for format, falling back to GIF", "format", format)
	observability.Export().OnNegotiated(ctx, format, cfg.Format, "", true)
	return cfg, nil
}
