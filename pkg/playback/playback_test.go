package playback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/timeline"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestClockSeekClamps(t *testing.T) {
	c := NewClock(10)
	tests := []struct{ in, want float64 }{
		{5, 5}, {-1, 0}, {12, 10}, {0, 0},
	}
	for _, tt := range tests {
		if got := c.Seek(tt.in); got != tt.want {
			t.Errorf("Seek(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClockTick(t *testing.T) {
	c := NewClock(2)
	var events []EventKind
	c.Subscribe(func(ev Event) { events = append(events, ev.Kind) })

	c.Tick(time.Second) // paused, ignored
	if c.Time() != 0 {
		t.Fatalf("paused clock advanced to %v", c.Time())
	}

	c.Play()
	if err := c.SetSpeed(2); err != nil {
		t.Fatal(err)
	}
	c.Tick(500 * time.Millisecond)
	if !near(c.Time(), 1) {
		t.Errorf("Time = %v, want 1 at 2x speed", c.Time())
	}

	c.Tick(time.Second) // overshoots the end
	if c.Time() != 2 || c.Playing() {
		t.Errorf("at end: time %v playing %v, want 2 and paused", c.Time(), c.Playing())
	}

	want := []EventKind{EventPlay, EventSpeed, EventTime, EventTime, EventPause}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}

	c.Play() // restart from the top
	if c.Time() != 0 || !c.Playing() {
		t.Errorf("Play at end: time %v playing %v", c.Time(), c.Playing())
	}
}

func TestClockSpeedValidation(t *testing.T) {
	c := NewClock(1)
	for _, s := range []float64{0, -1, 100, math.NaN()} {
		if err := c.SetSpeed(s); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("SetSpeed(%v) = %v, want INVALID_INPUT", s, err)
		}
	}
	if c.Speed() != 1 {
		t.Errorf("Speed = %v after rejected changes", c.Speed())
	}
}

func TestClockSetDurationPullsPlayhead(t *testing.T) {
	c := NewClock(10)
	c.Seek(8)
	c.SetDuration(5)
	if c.Time() != 5 {
		t.Errorf("Time = %v, want 5", c.Time())
	}
}

// fixture: clip of 10 s, placed at 2 with trims 1/2, so active on [2, 9)
// and mapped to source [1, 8].
func fixture() (*timeline.Snapshot, media.Provider) {
	lib := media.NewLibrary(
		media.Item{ID: "clip", Kind: media.KindVideo, Duration: 10},
		media.Item{ID: "logo", Kind: media.KindImage},
	)
	v := timeline.NewMedia("clip", "clip", 10)
	v.ID, v.StartTime, v.TrimStart, v.TrimEnd = "v", 2, 1, 2
	img := timeline.NewMedia("logo", "logo", 5)
	img.ID = "img"
	return &timeline.Snapshot{
		FPS: 30,
		Tracks: []*timeline.Track{
			{ID: "t", Kind: timeline.TrackMedia, Volume: 1, Elements: []timeline.Element{v}},
			{ID: "t2", Kind: timeline.TrackMedia, Volume: 1, Elements: []timeline.Element{img}},
		},
	}, lib
}

func newSync(t *testing.T) (*Synchronizer, *Clock, map[string]*VirtualRenderer) {
	t.Helper()
	snap, lib := fixture()
	renderers := make(map[string]*VirtualRenderer)
	factory := func(el *timeline.MediaElement, item media.Item) (MediaRenderer, error) {
		r := NewVirtualRenderer(el.Duration)
		renderers[el.ID] = r
		return r, nil
	}
	clock := NewClock(0)
	s := NewSynchronizer(clock, lib, factory, nil)
	s.Refresh(snap)
	t.Cleanup(func() { s.Close() })
	return s, clock, renderers
}

func TestSynchronizerCreatesRenderers(t *testing.T) {
	s, clock, renderers := newSync(t)

	if s.Renderers() != 1 {
		t.Fatalf("Renderers = %d, want 1 (images have no clock)", s.Renderers())
	}
	if clock.Duration() != 9 {
		t.Errorf("clock duration = %v, want 9", clock.Duration())
	}
	r := renderers["v"]
	if r.CurrentTime() != 1 {
		t.Errorf("renderer at %v, want trimStart 1 before the element starts", r.CurrentTime())
	}
}

func TestSynchronizerPlaysOnlyInsideElement(t *testing.T) {
	_, clock, renderers := newSync(t)
	r := renderers["v"]

	clock.Play() // playhead 0, before the element
	if r.IsPlaying() {
		t.Error("renderer playing before its element starts")
	}

	clock.Seek(3)
	if !r.IsPlaying() {
		t.Error("renderer should play inside its element")
	}
	if !near(r.CurrentTime(), 2) {
		t.Errorf("renderer at %v, want 2", r.CurrentTime())
	}

	clock.Seek(8.2)
	if !r.IsPlaying() {
		t.Error("renderer should still play just before the end")
	}
	clock.Pause()
	if r.IsPlaying() {
		t.Error("renderer should pause with the clock")
	}
	clock.Play()
	clock.Seek(9)
	if r.IsPlaying() {
		t.Error("renderer should pause at the element end")
	}
	if !near(r.CurrentTime(), 8) {
		t.Errorf("renderer at %v, want clamp to 8", r.CurrentTime())
	}
}

func TestSynchronizerDriftTolerance(t *testing.T) {
	s, clock, renderers := newSync(t)
	r := renderers["v"]

	clock.Seek(3)
	clock.Play()
	seeks := r.Seeks

	// Renderer and clock advance together: no reseek.
	for range 10 {
		s.Tick(100 * time.Millisecond)
	}
	if r.Seeks != seeks {
		t.Errorf("renderer reseeked %d times while in sync", r.Seeks-seeks)
	}

	// Small drift is tolerated.
	_ = r.Seek(r.CurrentTime() + 0.3)
	seeks = r.Seeks
	s.Tick(10 * time.Millisecond)
	if r.Seeks != seeks {
		t.Error("drift under tolerance triggered a reseek")
	}

	// Large drift is corrected.
	_ = r.Seek(r.CurrentTime() - 2)
	seeks = r.Seeks
	s.Tick(10 * time.Millisecond)
	if r.Seeks != seeks+1 {
		t.Error("drift over tolerance was not corrected")
	}
	want := clock.Time() - 2 + 1
	if !near(r.CurrentTime(), want) {
		t.Errorf("renderer at %v, want %v", r.CurrentTime(), want)
	}
}

func TestSynchronizerBroadcastsSpeed(t *testing.T) {
	_, clock, renderers := newSync(t)
	if err := clock.SetSpeed(1.5); err != nil {
		t.Fatal(err)
	}
	if got := renderers["v"].Rate(); got != 1.5 {
		t.Errorf("renderer rate = %v, want 1.5", got)
	}
}

func TestSynchronizerRefreshRemoves(t *testing.T) {
	s, _, renderers := newSync(t)
	s.Refresh(&timeline.Snapshot{FPS: 30})
	if s.Renderers() != 0 {
		t.Errorf("Renderers = %d after removal", s.Renderers())
	}
	if !renderers["v"].Closed() {
		t.Error("removed renderer not closed")
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	s, clock, _ := newSync(t)
	clock.Play()

	ctx, cancel := context.WithCancel(context.Background())
	frames := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Loop(ctx, 5*time.Millisecond, func(float64) {
			frames++
			if frames == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Loop = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not stop")
	}
	if clock.Time() <= 0 {
		t.Error("Loop did not advance the clock")
	}
}
