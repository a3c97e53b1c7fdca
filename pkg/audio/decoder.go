package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/framecut/framecut/pkg/media"
)

// ErrUnsupported is returned by a decoder that cannot handle a source.
// DecoderChain moves on to the next decoder when it sees it.
var ErrUnsupported = errors.New("audio: unsupported source")

// Decoder turns a media item into PCM at the requested sample rate.
type Decoder interface {
	Decode(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error) {
	return f(ctx, item, sampleRate)
}

// =============================================================================
// WAV
// =============================================================================

// WAVDecoder reads .wav files directly. It does not resample: sources at
// another rate are reported as unsupported.
type WAVDecoder struct{}

func (WAVDecoder) Decode(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error) {
	if !strings.EqualFold(filepath.Ext(item.Path()), ".wav") {
		return nil, ErrUnsupported
	}
	data, err := os.ReadFile(item.Path())
	if err != nil {
		return nil, err
	}
	b, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if b.SampleRate != sampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, want %d", ErrUnsupported, item.Name(), b.SampleRate, sampleRate)
	}
	return b, nil
}

// =============================================================================
// FFmpeg
// =============================================================================

// FFmpegDecoder decodes any format ffmpeg understands into stereo float32
// at the requested rate.
type FFmpegDecoder struct {
	Path string // ffmpeg binary, defaults to "ffmpeg"
	Run  media.RunFunc
}

// NewFFmpegDecoder returns a decoder using the given ffmpeg binary.
func NewFFmpegDecoder(path string) *FFmpegDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegDecoder{Path: path, Run: media.ExecRun}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error) {
	args := []string{
		"-v", "error",
		"-i", item.Path(),
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(sampleRate),
		"-",
	}
	out, err := d.Run(ctx, d.Path, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", item.Name(), err)
	}
	samples := make([]float32, len(out)/4)
	if err := binary.Read(bytes.NewReader(out[:4*len(samples)]), binary.LittleEndian, samples); err != nil {
		return nil, err
	}
	for i, v := range samples {
		if math.IsNaN(float64(v)) {
			samples[i] = 0
		}
	}
	return Deinterleave(samples, sampleRate, Channels), nil
}

// =============================================================================
// Chain
// =============================================================================

// DecoderChain tries each decoder in order until one accepts the source.
type DecoderChain []Decoder

func (c DecoderChain) Decode(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error) {
	for _, d := range c {
		b, err := d.Decode(ctx, item, sampleRate)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		return b, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, item.Name())
}

// DefaultDecoder reads WAV files natively and hands everything else to
// ffmpeg.
func DefaultDecoder(ffmpegPath string) Decoder {
	return DecoderChain{WAVDecoder{}, NewFFmpegDecoder(ffmpegPath)}
}
