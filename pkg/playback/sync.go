package playback

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
	"github.com/framecut/framecut/pkg/timeline"
)

// DriftTolerance is how far, in seconds, a renderer may wander from the
// timeline before it is reseeked.
const DriftTolerance = 0.5

// MediaRenderer plays one media element during preview.
type MediaRenderer interface {
	Seek(t float64) error
	Play() error
	Pause() error
	SetRate(rate float64) error
	CurrentTime() float64
	Close() error
}

// RendererFactory creates a renderer for a media element.
type RendererFactory func(el *timeline.MediaElement, item media.Item) (MediaRenderer, error)

type entry struct {
	timing   timeline.Base
	renderer MediaRenderer
	playing  bool
}

// Synchronizer keeps media renderers aligned with a Clock.
type Synchronizer struct {
	clock    *Clock
	provider media.Provider
	factory  RendererFactory
	logger   *log.Logger

	mu          sync.Mutex
	entries     map[string]*entry
	lastTime    float64
	unsubscribe func()
}

// NewSynchronizer subscribes to clock. Call Refresh with a snapshot to
// create renderers, and Close to release them.
func NewSynchronizer(clock *Clock, provider media.Provider, factory RendererFactory, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Synchronizer{
		clock:    clock,
		provider: provider,
		factory:  factory,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
	s.unsubscribe = clock.Subscribe(s.handle)
	return s
}

// Refresh reconciles renderers with the elements in snap: renderers are
// created for new video and audio elements, dropped for removed ones, and
// every renderer is resynchronized with the clock.
func (s *Synchronizer) Refresh(snap *timeline.Snapshot) {
	s.clock.SetDuration(snap.TotalDuration())

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for _, p := range snap.Elements() {
		el, ok := p.Element.(*timeline.MediaElement)
		if !ok || el.Orphaned || (p.Track.Muted && p.Track.Kind == timeline.TrackAudio) {
			continue
		}
		item, ok := s.provider.Media(el.MediaID)
		if !ok || item.Kind == media.KindImage {
			continue
		}
		seen[el.ID] = true

		if e, ok := s.entries[el.ID]; ok {
			e.timing = el.Base
			continue
		}
		r, err := s.factory(el, item)
		if err != nil {
			s.logger.Warn("preview renderer unavailable", "element", el.ID, "error", err)
			continue
		}
		s.entries[el.ID] = &entry{timing: el.Base, renderer: r}
	}

	for id, e := range s.entries {
		if !seen[id] {
			s.closeEntry(id, e)
		}
	}

	st := s.clock.State()
	for id, e := range s.entries {
		s.syncEntry(id, e, st, true)
	}
}

// Renderers returns the number of live renderers.
func (s *Synchronizer) Renderers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Synchronizer) handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Kind == EventSeek {
		observability.Playback().OnSeek(context.Background(), s.lastTime, ev.Time)
	}
	s.lastTime = ev.Time

	for id, e := range s.entries {
		s.syncEntry(id, e, ev, ev.Kind == EventSpeed)
	}
}

// syncEntry must be called with s.mu held.
func (s *Synchronizer) syncEntry(id string, e *entry, ev Event, setRate bool) {
	local := e.timing.SourceTime(ev.Time)
	if drift := math.Abs(e.renderer.CurrentTime() - local); drift > DriftTolerance {
		if err := e.renderer.Seek(local); err != nil {
			s.logger.Debug("renderer seek failed", "element", id, "error", err)
		} else {
			observability.Playback().OnDriftCorrection(context.Background(), id, drift)
		}
	}

	if setRate {
		if err := e.renderer.SetRate(ev.Speed); err != nil {
			s.logger.Debug("renderer rate change failed", "element", id, "error", err)
		}
	}

	shouldPlay := ev.Playing && e.timing.ActiveAt(ev.Time)
	if shouldPlay == e.playing {
		return
	}
	var err error
	if shouldPlay {
		err = e.renderer.Play()
	} else {
		err = e.renderer.Pause()
	}
	if err != nil {
		s.logger.Debug("renderer state change failed", "element", id, "play", shouldPlay, "error", err)
		return
	}
	e.playing = shouldPlay
}

func (s *Synchronizer) closeEntry(id string, e *entry) {
	if err := e.renderer.Close(); err != nil {
		s.logger.Debug("renderer close failed", "element", id, "error", err)
	}
	delete(s.entries, id)
}

// advancer is implemented by renderers that need to be driven by the
// preview loop instead of their own clock.
type advancer interface {
	Advance(dt time.Duration)
}

// Tick advances driven renderers and then the clock by dt.
func (s *Synchronizer) Tick(dt time.Duration) {
	s.mu.Lock()
	for _, e := range s.entries {
		if a, ok := e.renderer.(advancer); ok {
			a.Advance(dt)
		}
	}
	s.mu.Unlock()
	s.clock.Tick(dt)
}

// Loop runs the preview animation loop until ctx is done: every interval
// it ticks the clock by the elapsed wall time and calls onFrame with the
// new playhead. One onFrame call happens per tick regardless of how many
// clock events the tick produced.
func (s *Synchronizer) Loop(ctx context.Context, interval time.Duration, onFrame func(t float64)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Tick(now.Sub(last))
			last = now
			if onFrame != nil {
				onFrame(s.clock.Time())
			}
		}
	}
}

// Close stops listening to the clock and releases every renderer.
func (s *Synchronizer) Close() error {
	s.unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		s.closeEntry(id, e)
	}
	return nil
}
