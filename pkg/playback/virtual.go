package playback

import (
	"math"
	"sync"
	"time"

	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/timeline"
)

// VirtualRenderer simulates a media player's clock without decoding
// anything. Headless preview and tests use it in place of a real player.
type VirtualRenderer struct {
	mu       sync.Mutex
	pos      float64
	rate     float64
	playing  bool
	duration float64
	closed   bool

	Seeks int // number of Seek calls, for diagnostics
}

// NewVirtualRenderer creates a paused renderer for a source of the given
// length.
func NewVirtualRenderer(duration float64) *VirtualRenderer {
	return &VirtualRenderer{rate: 1, duration: duration}
}

// VirtualFactory is a RendererFactory producing VirtualRenderers.
func VirtualFactory(el *timeline.MediaElement, item media.Item) (MediaRenderer, error) {
	return NewVirtualRenderer(el.Duration), nil
}

func (v *VirtualRenderer) Seek(t float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = math.Max(0, math.Min(t, v.duration))
	v.Seeks++
	return nil
}

func (v *VirtualRenderer) Play() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = true
	return nil
}

func (v *VirtualRenderer) Pause() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = false
	return nil
}

func (v *VirtualRenderer) SetRate(rate float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rate = rate
	return nil
}

func (v *VirtualRenderer) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

// IsPlaying reports whether the renderer is running.
func (v *VirtualRenderer) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

// Rate returns the playback rate.
func (v *VirtualRenderer) Rate() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rate
}

// Closed reports whether Close was called.
func (v *VirtualRenderer) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *VirtualRenderer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.playing = false
	return nil
}

// Advance moves a playing renderer forward by dt at its rate.
func (v *VirtualRenderer) Advance(dt time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		v.pos = math.Min(v.duration, v.pos+dt.Seconds()*v.rate)
	}
}
