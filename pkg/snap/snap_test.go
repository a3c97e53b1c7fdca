package snap

import (
	"math"
	"sync"
	"testing"

	"github.com/framecut/framecut/pkg/timeline"
)

func testSnapshot() *timeline.Snapshot {
	a := timeline.NewMedia("clip", "a", 10)
	a.ID, a.StartTime, a.TrimEnd = "a", 1, 6 // [1,5)
	b := timeline.NewText("b")
	b.ID, b.StartTime = "b", 7 // [7,12)
	return &timeline.Snapshot{
		FPS: 30,
		Tracks: []*timeline.Track{
			{ID: "t1", Kind: timeline.TrackMedia, Elements: []timeline.Element{a}},
			{ID: "t2", Kind: timeline.TrackText, Elements: []timeline.Element{b}},
		},
	}
}

func TestDisabledRoundsToFrame(t *testing.T) {
	s := New(Options{FPS: 30}, nil)
	snap := testSnapshot()

	for _, tt := range []float64{0, 0.01, 0.99, 1.02, 4.9999, 7.016, 123.456} {
		got := s.Snap(snap, tt, "", 0)
		want := math.Round(tt*30) / 30
		if got.DidSnap || got.Point != nil {
			t.Errorf("Snap(%v) reported a snap while disabled", tt)
		}
		if got.Time != want {
			t.Errorf("Snap(%v).Time = %v, want %v", tt, got.Time, want)
		}
	}
}

func TestEmptyPointsFallback(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 25}, nil)

	got := s.SnapTime(1.013, nil)
	if got.DidSnap || got.Time != 1.0 {
		t.Errorf("SnapTime with no points = %+v, want 1.0 without snap", got)
	}

	got = s.Snap(&timeline.Snapshot{FPS: 25}, 2.03, "", 0)
	if got.DidSnap || got.Time != 2.04 {
		t.Errorf("Snap on empty timeline = %+v, want 2.04 without snap", got)
	}
}

func TestEnabledSnapsWithinThreshold(t *testing.T) {
	// 50 px/s at zoom 1: 10 px threshold = 0.2 s
	s := New(Options{Enabled: true, FPS: 30, PixelsPerSecond: 50, Zoom: 1}, nil)
	snap := testSnapshot()

	tests := []struct {
		name     string
		t        float64
		wantSnap bool
		wantTime float64
		wantKind PointKind
	}{
		{"near start", 1.1, true, 1, PointElementStart},
		{"near end", 4.85, true, 5, PointElementEnd},
		{"near text start", 6.95, true, 7, PointElementStart},
		{"out of range", 6.0, false, 6.0, ""},
		{"just outside threshold", 5.2, false, math.Round(5.2*30) / 30, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Snap(snap, tt.t, "", 0)
			if got.DidSnap != tt.wantSnap {
				t.Fatalf("DidSnap = %v, want %v", got.DidSnap, tt.wantSnap)
			}
			if math.Abs(got.Time-tt.wantTime) > 1e-9 {
				t.Errorf("Time = %v, want %v", got.Time, tt.wantTime)
			}
			if tt.wantSnap && got.Point.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Point.Kind, tt.wantKind)
			}
		})
	}
}

func TestZoomScalesThreshold(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 30, PixelsPerSecond: 50, Zoom: 1}, nil)
	snap := testSnapshot()

	if got := s.Snap(snap, 1.3, "", 0); got.DidSnap {
		t.Fatalf("0.3s away should not snap at zoom 1: %+v", got)
	}
	s.SetZoom(0.5) // 10 px now covers 0.4 s
	if got := s.Snap(snap, 1.3, "", 0); !got.DidSnap || got.Time != 1 {
		t.Errorf("0.3s away should snap at zoom 0.5: %+v", got)
	}
}

func TestExcludeDraggedElement(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 30}, nil)
	snap := testSnapshot()

	got := s.Snap(snap, 1.05, "a", 0)
	if got.DidSnap {
		t.Errorf("dragged element's own edge should be excluded: %+v", got)
	}
}

func TestTieBreakFirstFound(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 30, PixelsPerSecond: 20}, nil)
	points := []Point{
		{Time: 2.0, Kind: PointGrid, Strength: 0.1},
		{Time: 2.5, Kind: PointElementStart, Strength: 1},
	}

	got := s.SnapTime(2.25, points)
	if !got.DidSnap || got.Point.Kind != PointGrid {
		t.Errorf("tie should go to the first point found: %+v", got)
	}
}

func TestPlayheadAndGridPoints(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 30, Playhead: true, GridInterval: 5}, nil)
	pts := s.Points(testSnapshot(), "", 3.3)

	var playhead, grid int
	for _, p := range pts {
		switch p.Kind {
		case PointPlayhead:
			playhead++
			if p.Time != 3.3 {
				t.Errorf("playhead point at %v", p.Time)
			}
		case PointGrid:
			grid++
		}
	}
	if playhead != 1 {
		t.Errorf("playhead points = %d, want 1", playhead)
	}
	if grid != 3 { // 0, 5, 10 up to the 12 s end
		t.Errorf("grid points = %d, want 3", grid)
	}

	if got := s.SnapTime(3.25, pts); !got.DidSnap || got.Point.Kind != PointPlayhead {
		t.Errorf("SnapTime near playhead = %+v", got)
	}
}

func TestPanicFallsBackToFrameRounding(t *testing.T) {
	s := New(Options{Enabled: true, FPS: 30}, nil)
	s.distance = func(Options, float64) float64 { panic("boom") }

	got := s.SnapTime(1.01, []Point{{Time: 1}})
	if got.DidSnap || got.Time != 1 {
		t.Errorf("SnapTime after panic = %+v, want frame-rounded 1 without snap", got)
	}

	s.distance = func(Options, float64) float64 { return math.NaN() }
	got = s.SnapTime(2.02, []Point{{Time: 2}})
	if got.DidSnap || math.Abs(got.Time-2.0333333333) > 1e-6 {
		t.Errorf("SnapTime with NaN distance = %+v", got)
	}
}

func TestSnapSeek(t *testing.T) {
	s := New(Options{FPS: 30, Playhead: true}, nil)
	snap := testSnapshot()

	if got := s.SnapSeek(snap, 1.01); got.DidSnap || got.Time != 1 {
		t.Errorf("disabled SnapSeek(1.01) = %+v, want frame-rounded 1", got)
	}

	s.SetEnabled(true)
	if got := s.SnapSeek(snap, 4.9); !got.DidSnap || got.Time != 5 || got.Point.Kind != PointElementEnd {
		t.Errorf("SnapSeek(4.9) = %+v, want element end at 5", got)
	}
	// Far from every edge: frame rounding, never the playhead.
	if got := s.SnapSeek(snap, 3.01); got.DidSnap || got.Time != 3 {
		t.Errorf("SnapSeek(3.01) = %+v, want frame-rounded 3", got)
	}
}

func TestConcurrentOptionChanges(t *testing.T) {
	s := New(Options{FPS: 30}, nil)
	snap := testSnapshot()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SetEnabled(i%2 == 0)
			s.SetZoom(float64(i%4 + 1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Snap(snap, float64(i)/20, "", 0)
			s.SnapSeek(snap, float64(i)/20)
		}
	}()
	wg.Wait()

	if o := s.Options(); o.Enabled || o.Zoom != 4 {
		t.Errorf("final options = %+v, want disabled at zoom 4", o)
	}
}
