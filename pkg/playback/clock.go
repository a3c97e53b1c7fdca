// Package playback keeps live preview in step with one timeline clock.
//
// A [Clock] owns the playhead, the play state and the playback speed, and
// publishes every change to its listeners. A [Synchronizer] listens to the
// clock and keeps one [MediaRenderer] per visible media element aligned
// with it: each renderer is reseeked only when it drifts past a tolerance,
// and plays only while the playhead is inside its element.
package playback

import (
	"math"
	"sync"
	"time"

	"github.com/framecut/framecut/pkg/errors"
)

// EventKind identifies a clock change.
type EventKind string

const (
	EventTime  EventKind = "time"  // playhead advanced by a tick
	EventSeek  EventKind = "seek"  // playhead jumped
	EventPlay  EventKind = "play"  // playback started
	EventPause EventKind = "pause" // playback stopped
	EventSpeed EventKind = "speed" // speed changed
)

// Event is the clock state after a change.
type Event struct {
	Kind    EventKind
	Time    float64
	Playing bool
	Speed   float64
}

// Listener receives clock events synchronously.
type Listener func(Event)

// Speed limits.
const (
	MinSpeed = 0.1
	MaxSpeed = 16.0
)

// Clock is the authoritative timeline time. It is safe for concurrent use.
type Clock struct {
	mu       sync.Mutex
	time     float64
	duration float64
	speed    float64
	playing  bool

	lmu       sync.Mutex
	listeners map[int]Listener
	next      int
}

// NewClock creates a paused clock at time zero.
func NewClock(duration float64) *Clock {
	return &Clock{
		duration:  math.Max(0, duration),
		speed:     1,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (c *Clock) Subscribe(l Listener) (unsubscribe func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = l
	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Clock) emit(ev Event) {
	c.lmu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for i := 0; i < c.next; i++ {
		if l, ok := c.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	c.lmu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// snapshot must be called with c.mu held.
func (c *Clock) snapshot(kind EventKind) Event {
	return Event{Kind: kind, Time: c.time, Playing: c.playing, Speed: c.speed}
}

// State returns the current clock state as an event of kind EventTime.
func (c *Clock) State() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(EventTime)
}

// Time returns the playhead.
func (c *Clock) Time() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// Playing reports whether the clock is running.
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Speed returns the playback rate.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Duration returns the end of the playable range.
func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetDuration updates the playable range after a timeline change, pulling
// the playhead back inside it when needed.
func (c *Clock) SetDuration(d float64) {
	c.mu.Lock()
	c.duration = math.Max(0, d)
	moved := c.time > c.duration
	if moved {
		c.time = c.duration
	}
	ev := c.snapshot(EventSeek)
	c.mu.Unlock()
	if moved {
		c.emit(ev)
	}
}

// Play starts the clock. Playing at the end restarts from zero.
func (c *Clock) Play() {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return
	}
	if c.time >= c.duration {
		c.time = 0
	}
	c.playing = true
	ev := c.snapshot(EventPlay)
	c.mu.Unlock()
	c.emit(ev)
}

// Pause stops the clock.
func (c *Clock) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	ev := c.snapshot(EventPause)
	c.mu.Unlock()
	c.emit(ev)
}

// Toggle switches between playing and paused.
func (c *Clock) Toggle() {
	if c.Playing() {
		c.Pause()
	} else {
		c.Play()
	}
}

// Seek moves the playhead to t, clamped to [0, duration], and returns the
// new time.
func (c *Clock) Seek(t float64) float64 {
	c.mu.Lock()
	c.time = math.Max(0, math.Min(t, c.duration))
	ev := c.snapshot(EventSeek)
	c.mu.Unlock()
	c.emit(ev)
	return ev.Time
}

// SetSpeed changes the playback rate.
func (c *Clock) SetSpeed(s float64) error {
	if math.IsNaN(s) || s < MinSpeed || s > MaxSpeed {
		return errors.New(errors.ErrCodeInvalidInput, "speed %.2f outside [%.1f, %.1f]", s, MinSpeed, MaxSpeed)
	}
	c.mu.Lock()
	c.speed = s
	ev := c.snapshot(EventSpeed)
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// Tick advances a playing clock by dt of wall time scaled by the speed.
// Reaching the end pauses the clock. A paused clock ignores ticks.
func (c *Clock) Tick(dt time.Duration) {
	c.mu.Lock()
	if !c.playing || dt <= 0 {
		c.mu.Unlock()
		return
	}
	c.time += dt.Seconds() * c.speed
	events := []Event{}
	if c.time >= c.duration {
		c.time = c.duration
		events = append(events, c.snapshot(EventTime))
		c.playing = false
		events = append(events, c.snapshot(EventPause))
	} else {
		events = append(events, c.snapshot(EventTime))
	}
	c.mu.Unlock()
	for _, ev := range events {
		c.emit(ev)
	}
}
