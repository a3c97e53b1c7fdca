package edit

import (
	"math"
	"reflect"
	"testing"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/snap"
	"github.com/framecut/framecut/pkg/timeline"
)

const pps = 50.0 // pixels per second at zoom 1

func setup(t *testing.T, el timeline.Element, kind timeline.TrackKind) (*timeline.Model, string) {
	t.Helper()
	lib := media.NewLibrary(
		media.Item{ID: "clip", Kind: media.KindVideo, Duration: 10},
		media.Item{ID: "logo", Kind: media.KindImage},
	)
	m := timeline.NewModel(timeline.Options{FPS: 30, Media: lib})
	tr, err := m.AddTrack(kind, "")
	if err != nil {
		t.Fatal(err)
	}
	id, err := m.AddElement(tr, el)
	if err != nil {
		t.Fatal(err)
	}
	return m, id
}

func video(start, trimStart, trimEnd float64) *timeline.MediaElement {
	el := timeline.NewMedia("clip", "clip", 10)
	el.StartTime, el.TrimStart, el.TrimEnd = start, trimStart, trimEnd
	return el
}

func base(t *testing.T, m *timeline.Model, id string) *timeline.Base {
	t.Helper()
	el, _, ok := m.Element(id)
	if !ok {
		t.Fatalf("element %s missing", id)
	}
	return el.Common()
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func drag(t *testing.T, r *Resizer, id string, edge Edge, seconds float64) Result {
	t.Helper()
	if err := r.Begin(id, edge, 100); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	res, err := r.Move(100 + seconds*pps)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, ok := r.End(); !ok {
		t.Fatal("End: not resizing")
	}
	return res
}

func TestRightEdgeShrinksVideo(t *testing.T) {
	m, id := setup(t, video(0, 2, 3), timeline.TrackMedia)
	if got := base(t, m, id).EffectiveDuration(); got != 5 {
		t.Fatalf("initial effective = %v, want 5", got)
	}

	r := NewResizer(m, nil, Options{PixelsPerSecond: pps}, nil)
	res := drag(t, r, id, EdgeRight, -1)

	b := base(t, m, id)
	if !res.Applied {
		t.Fatal("move not applied")
	}
	if !near(b.EffectiveDuration(), 4) {
		t.Errorf("effective = %v, want 4", b.EffectiveDuration())
	}
	if b.TrimStart != 2 {
		t.Errorf("trimStart = %v, want unchanged 2", b.TrimStart)
	}
	if !near(b.TrimEnd, 4) {
		t.Errorf("trimEnd = %v, want 4", b.TrimEnd)
	}
}

func TestRightEdgeExtendsText(t *testing.T) {
	text := timeline.NewText("title")
	text.Duration = 3
	m, id := setup(t, text, timeline.TrackText)

	r := NewResizer(m, nil, Options{PixelsPerSecond: pps}, nil)
	drag(t, r, id, EdgeRight, 2)

	b := base(t, m, id)
	if !near(b.Duration, 5) || b.TrimEnd != 0 {
		t.Errorf("duration/trimEnd = %v/%v, want 5/0", b.Duration, b.TrimEnd)
	}
}

func TestRightEdgeExtendsImage(t *testing.T) {
	img := timeline.NewMedia("logo", "logo", 5)
	m, id := setup(t, img, timeline.TrackMedia)

	r := NewResizer(m, nil, Options{PixelsPerSecond: pps, MaxDuration: 6}, nil)
	drag(t, r, id, EdgeRight, 3)

	if b := base(t, m, id); !near(b.Duration, 6) {
		t.Errorf("duration = %v, want cap 6", b.Duration)
	}
}

func TestRightEdgeClampsVideo(t *testing.T) {
	m, id := setup(t, video(0, 2, 1), timeline.TrackMedia)

	r := NewResizer(m, nil, Options{PixelsPerSecond: pps}, nil)
	drag(t, r, id, EdgeRight, 4)

	b := base(t, m, id)
	if b.Duration != 10 {
		t.Errorf("duration = %v, want 10 (no growth)", b.Duration)
	}
	if b.TrimEnd != 0 {
		t.Errorf("trimEnd = %v, want clamp to 0", b.TrimEnd)
	}
}

func TestLeftEdge(t *testing.T) {
	tests := []struct {
		name          string
		start, ts, te float64
		seconds       float64
		wantStart     float64
		wantTrimStart float64
	}{
		{"trim in", 2, 1, 0, 1.5, 3.5, 2.5},
		{"extend back into source", 2, 1, 0, -0.5, 1.5, 0.5},
		{"clamp at source start", 2, 1, 0, -1.5, 1, 0},
		{"clamp at timeline zero", 0.5, 3, 0, -2, 0, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, id := setup(t, video(tt.start, tt.ts, tt.te), timeline.TrackMedia)
			endBefore := base(t, m, id).End()

			r := NewResizer(m, nil, Options{PixelsPerSecond: pps}, nil)
			drag(t, r, id, EdgeLeft, tt.seconds)

			b := base(t, m, id)
			if !near(b.StartTime, tt.wantStart) || !near(b.TrimStart, tt.wantTrimStart) {
				t.Errorf("start/trimStart = %v/%v, want %v/%v", b.StartTime, b.TrimStart, tt.wantStart, tt.wantTrimStart)
			}
			if !near(b.End(), endBefore) {
				t.Errorf("right edge moved from %v to %v", endBefore, b.End())
			}
		})
	}
}

func TestMinPixelWidthIsNoOp(t *testing.T) {
	m, id := setup(t, video(0, 0, 8), timeline.TrackMedia) // 2 s visible = 100 px
	r := NewResizer(m, nil, Options{PixelsPerSecond: pps, MinPixelWidth: 8}, nil)

	if err := r.Begin(id, EdgeRight, 0); err != nil {
		t.Fatal(err)
	}
	before := m.Snapshot()
	res, err := r.Move(-99) // would leave 1 px
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Error("move below minimum width should be a no-op")
	}
	if !reflect.DeepEqual(before, m.Snapshot()) {
		t.Error("no-op move changed the model")
	}
}

func TestInvariantsHoldOverDrag(t *testing.T) {
	m, id := setup(t, video(1, 2, 3), timeline.TrackMedia)
	r := NewResizer(m, nil, Options{PixelsPerSecond: pps, Zoom: 2, MinPixelWidth: 1}, nil)

	for _, edge := range []Edge{EdgeLeft, EdgeRight} {
		if err := r.Begin(id, edge, 0); err != nil {
			t.Fatal(err)
		}
		for x := -2000.0; x <= 2000; x += 37 {
			if _, err := r.Move(x); err != nil {
				t.Fatalf("Move(%v) on %s edge: %v", x, edge, err)
			}
			b := base(t, m, id)
			if b.TrimStart < 0 || b.TrimEnd < 0 || b.TrimStart+b.TrimEnd > b.Duration+1e-9 {
				t.Fatalf("trim invariant broken at x=%v: %+v", x, b)
			}
			if b.EffectiveDuration() < 1.0/30-1e-9 {
				t.Fatalf("effective %v below one frame at x=%v", b.EffectiveDuration(), x)
			}
			if b.StartTime < 0 {
				t.Fatalf("negative start at x=%v", x)
			}
		}
		if err := r.Cancel(); err != nil {
			t.Fatal(err)
		}
	}

	if b := base(t, m, id); b.StartTime != 1 || b.TrimStart != 2 || b.TrimEnd != 3 {
		t.Errorf("Cancel did not restore timing: %+v", b)
	}
}

func TestStateMachine(t *testing.T) {
	m, id := setup(t, video(0, 0, 0), timeline.TrackMedia)
	r := NewResizer(m, nil, Options{}, nil)

	if _, err := r.Move(10); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Move while idle = %v, want INVALID_INPUT", err)
	}
	if err := r.Begin(id, "top", 0); err == nil {
		t.Error("Begin with unknown edge should fail")
	}
	if err := r.Begin("ghost", EdgeLeft, 0); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("Begin on missing element = %v, want TIMELINE", err)
	}
	if err := r.Begin(id, EdgeLeft, 0); err != nil {
		t.Fatal(err)
	}
	if !r.Resizing() {
		t.Error("Resizing() = false after Begin")
	}
	if err := r.Begin(id, EdgeRight, 0); err == nil {
		t.Error("second Begin should fail while resizing")
	}
	st, ok := r.State()
	if !ok || st.Edge != EdgeLeft || st.Duration != 10 {
		t.Errorf("State() = %+v, %v", st, ok)
	}
	r.End()
	if r.Resizing() {
		t.Error("Resizing() = true after End")
	}
}

func TestSnappingDuringResize(t *testing.T) {
	lib := media.NewLibrary(media.Item{ID: "clip", Kind: media.KindVideo, Duration: 10})
	m := timeline.NewModel(timeline.Options{FPS: 30, Media: lib})
	tr, _ := m.AddTrack(timeline.TrackMedia, "")
	a, _ := m.AddElement(tr, video(0, 0, 6)) // [0,4)
	_, _ = m.AddElement(tr, video(6, 0, 7))  // [6,9)

	snapper := snap.New(snap.Options{Enabled: true, FPS: 30, PixelsPerSecond: pps}, nil)
	r := NewResizer(m, snapper, Options{PixelsPerSecond: pps}, nil)

	// Drag a's right edge from 4 to 5.9; the neighbour's start at 6 is 5 px away.
	res := drag(t, r, a, EdgeRight, 1.9)
	if !res.Snap.DidSnap || res.Snap.Time != 6 {
		t.Fatalf("snap = %+v, want snap to 6", res.Snap)
	}
	if b := base(t, m, a); !near(b.End(), 6) {
		t.Errorf("end = %v, want 6", b.End())
	}
}
