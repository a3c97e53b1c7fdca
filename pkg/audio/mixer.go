package audio

import (
	"context"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/timeline"
)

// Options configures a Mixer.
type Options struct {
	SampleRate  int   `json:"sample_rate" toml:"sample_rate"`
	Concurrency int   `json:"concurrency" toml:"concurrency"` // parallel decodes in Prefetch
	MaxMemory   int64 `json:"max_memory" toml:"max_memory"`   // bytes one Mix call may allocate
}

// DefaultMaxMemory bounds a single mix window, about 12 minutes of stereo at
// 48 kHz.
const DefaultMaxMemory = 512 << 20

// bytesPerFrame is the working set of one stereo sample frame: a float64
// accumulator and a float32 output sample per channel.
const bytesPerFrame = Channels * (8 + 4)

// SetDefaults fills zero values.
func (o *Options) SetDefaults() {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxMemory <= 0 {
		o.MaxMemory = DefaultMaxMemory
	}
}

// Mixer renders the audible part of a timeline into stereo PCM.
type Mixer struct {
	opts     Options
	provider media.Provider
	buffers  *BufferCache
	logger   *log.Logger
}

// NewMixer creates a mixer that resolves media through provider and decodes
// through buffers.
func NewMixer(provider media.Provider, buffers *BufferCache, opts Options, logger *log.Logger) *Mixer {
	opts.SetDefaults()
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Mixer{opts: opts, provider: provider, buffers: buffers, logger: logger}
}

// SampleRate returns the output rate.
func (m *Mixer) SampleRate() int { return m.opts.SampleRate }

// source is one audible element with its resolved gains.
type source struct {
	el          *timeline.MediaElement
	item        media.Item
	left, right float64
}

// sources returns the elements that contribute sound, in snapshot order.
func (m *Mixer) sources(snap *timeline.Snapshot) []source {
	var out []source
	for _, p := range snap.Elements() {
		var el *timeline.MediaElement
		switch e := p.Element.(type) {
		case *timeline.MediaElement:
			el = e
		default:
			continue // text is silent
		}
		if p.Track.Muted || el.Muted {
			continue
		}
		if el.Orphaned {
			m.logger.Debug("skipping orphaned element", "element", el.ID, "media", el.MediaID)
			continue
		}
		item, ok := m.provider.Media(el.MediaID)
		if !ok {
			m.logger.Debug("skipping element with unknown media", "element", el.ID, "media", el.MediaID)
			continue
		}
		if !audible(item) {
			continue
		}
		vol := p.Track.Volume * el.Volume
		out = append(out, source{
			el:    el,
			item:  item,
			left:  vol * (1 - math.Max(0, el.Pan)),
			right: vol * (1 + math.Min(0, el.Pan)),
		})
	}
	return out
}

func audible(item media.Item) bool {
	switch item.Kind {
	case media.KindAudio:
		return true
	case media.KindVideo:
		return item.HasAudio
	}
	return false
}

// sampleIndex converts a time to a sample index, flooring.
func (m *Mixer) sampleIndex(t float64) int64 {
	return int64(math.Floor(t*float64(m.opts.SampleRate) + 1e-9))
}

// Mix renders the window [start, end) of snap. Windows are sample aligned,
// so consecutive windows concatenate to the same samples as one large
// window. Decoding failures are returned as AUDIO_MIX errors; a window too
// large to hold in memory is a RESOURCE error.
func (m *Mixer) Mix(ctx context.Context, snap *timeline.Snapshot, start, end float64) (*Buffer, error) {
	if end < start || math.IsNaN(start) || math.IsNaN(end) || math.IsInf(end, 0) {
		return nil, errors.AudioMix(nil, "invalid mix window [%g, %g)", start, end)
	}
	frames := (math.Max(0, end) - math.Max(0, start)) * float64(m.opts.SampleRate)
	if need := frames * bytesPerFrame; need > float64(m.opts.MaxMemory) {
		return nil, errors.Resource("audio window of %.0f s needs %d MiB, limit is %d MiB",
			end-start, int64(need)>>20, m.opts.MaxMemory>>20)
	}
	outStart := m.sampleIndex(math.Max(0, start))
	outEnd := m.sampleIndex(math.Max(0, end))
	n := int(outEnd - outStart)

	acc := [Channels][]float64{make([]float64, n), make([]float64, n)}
	for _, src := range m.sources(snap) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := src.el.Common()
		elStart := m.sampleIndex(b.StartTime)
		length := m.sampleIndex(b.EffectiveDuration())
		lo, hi := max(elStart, outStart), min(elStart+length, outEnd)
		if lo >= hi {
			continue
		}

		pcm, err := m.buffers.Get(ctx, src.item, m.opts.SampleRate)
		if err != nil {
			return nil, errors.AudioMix(err, "decode %s", src.item.Name())
		}
		offset := m.sampleIndex(b.TrimStart) - elStart
		gains := [Channels]float64{src.left, src.right}
		for c := 0; c < Channels; c++ {
			in := pcm.Channel(c)
			out := acc[c]
			g := gains[c]
			for i := lo; i < hi; i++ {
				j := i + offset
				if j < 0 || j >= int64(len(in)) {
					continue
				}
				out[i-outStart] += g * float64(in[j])
			}
		}
	}

	buf := NewBuffer(m.opts.SampleRate, Channels, n)
	for c := range acc {
		for i, v := range acc[c] {
			buf.Data[c][i] = float32(v)
		}
	}
	return buf, nil
}

// MixAll renders the whole timeline.
func (m *Mixer) MixAll(ctx context.Context, snap *timeline.Snapshot) (*Buffer, error) {
	return m.Mix(ctx, snap, 0, snap.TotalDuration())
}

// Prefetch decodes every audible source in snap concurrently so a later Mix
// only reads memory.
func (m *Mixer) Prefetch(ctx context.Context, snap *timeline.Snapshot) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	seen := make(map[string]bool)
	for _, src := range m.sources(snap) {
		if seen[src.item.ID] {
			continue
		}
		seen[src.item.ID] = true
		item := src.item
		g.Go(func() error {
			if _, err := m.buffers.Get(ctx, item, m.opts.SampleRate); err != nil {
				return errors.AudioMix(err, "decode %s", item.Name())
			}
			return nil
		})
	}
	return g.Wait()
}
