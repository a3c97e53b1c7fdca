// Package edit implements interactive timeline edits driven by pointer
// input, currently edge resizing of elements.
//
// A [Resizer] is a two-state machine: Idle and Resizing. Begin captures the
// element's timing and the pointer position; every Move recomputes the
// element's timing from that captured state (never incrementally), so
// rounding does not accumulate over a long drag. End returns to Idle and
// keeps the result; Cancel restores the captured timing.
package edit

import (
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/snap"
	"github.com/framecut/framecut/pkg/timeline"
)

// Edge is the element boundary being dragged.
type Edge string

const (
	EdgeLeft  Edge = "left"
	EdgeRight Edge = "right"
)

// State is the resize interaction captured at drag start.
type State struct {
	ElementID string
	TrackID   string
	Edge      Edge
	PointerX  float64

	TrimStart float64
	TrimEnd   float64
	Duration  float64
	StartTime float64
}

// Result describes one Move.
type Result struct {
	// Applied is false when the move was a no-op because the element
	// would have become narrower than MinPixelWidth.
	Applied bool
	timeline.Resize
	Snap snap.Result
}

// Options configures a Resizer.
type Options struct {
	PixelsPerSecond float64 // timeline scale at zoom 1
	Zoom            float64
	MinPixelWidth   float64 // narrowest visible element, in pixels

	// MaxDuration caps duration growth of extensible elements. Zero means
	// unbounded.
	MaxDuration float64

	// Playhead reports the current playhead for snapping. Optional.
	Playhead func() float64
}

// DefaultMinPixelWidth is the narrowest an element may be dragged to.
const DefaultMinPixelWidth = 8.0

// SetDefaults fills unset fields. It is idempotent.
func (o *Options) SetDefaults() {
	if o.PixelsPerSecond <= 0 {
		o.PixelsPerSecond = snap.DefaultPixelsPerSecond
	}
	if o.Zoom <= 0 {
		o.Zoom = snap.DefaultZoom
	}
	if o.MinPixelWidth <= 0 {
		o.MinPixelWidth = DefaultMinPixelWidth
	}
}

// Resizer drives edge drags against a timeline model.
type Resizer struct {
	model  *timeline.Model
	snap   *snap.Service
	opts   Options
	logger *log.Logger

	mu    sync.Mutex
	state *State
}

// NewResizer creates a resizer. snapper may be nil, in which case edge
// times are rounded to frames.
func NewResizer(model *timeline.Model, snapper *snap.Service, opts Options, logger *log.Logger) *Resizer {
	opts.SetDefaults()
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resizer{model: model, snap: snapper, opts: opts, logger: logger}
}

// SetZoom changes the zoom used to convert pixels to seconds.
func (r *Resizer) SetZoom(zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if zoom > 0 {
		r.opts.Zoom = zoom
	}
}

// Resizing reports whether a drag is in progress.
func (r *Resizer) Resizing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != nil
}

// State returns the captured drag state, if resizing.
func (r *Resizer) State() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return State{}, false
	}
	return *r.state, true
}

// Begin enters the Resizing state for one edge of an element.
func (r *Resizer) Begin(elementID string, edge Edge, pointerX float64) error {
	if edge != EdgeLeft && edge != EdgeRight {
		return errors.New(errors.ErrCodeInvalidInput, "unknown edge %q", edge)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != nil {
		return errors.New(errors.ErrCodeInvalidInput, "already resizing element %s", r.state.ElementID)
	}

	el, trackID, ok := r.model.Element(elementID)
	if !ok {
		return errors.Timeline("element %s not found", elementID)
	}
	b := el.Common()
	r.state = &State{
		ElementID: elementID,
		TrackID:   trackID,
		Edge:      edge,
		PointerX:  pointerX,
		TrimStart: b.TrimStart,
		TrimEnd:   b.TrimEnd,
		Duration:  b.Duration,
		StartTime: b.StartTime,
	}
	r.logger.Debug("resize started", "element", elementID, "edge", edge)
	return nil
}

// Move recomputes the element timing for the current pointer position and
// commits it through the model.
func (r *Resizer) Move(pointerX float64) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return Result{}, errors.New(errors.ErrCodeInvalidInput, "no resize in progress")
	}
	st := *r.state

	el, _, ok := r.model.Element(st.ElementID)
	if !ok {
		r.state = nil
		return Result{}, errors.Timeline("element %s was removed during resize", st.ElementID)
	}

	scale := r.opts.PixelsPerSecond * r.opts.Zoom
	delta := (pointerX - st.PointerX) / scale
	eps := r.model.FrameEpsilon()

	var res Result
	switch st.Edge {
	case EdgeLeft:
		res = r.moveLeft(st, delta, eps)
	case EdgeRight:
		res = r.moveRight(st, el, delta, eps)
	}

	width := (res.Duration - res.TrimStart - res.TrimEnd) * scale
	if width < r.opts.MinPixelWidth {
		return Result{Snap: res.Snap}, nil
	}

	if err := r.model.ApplyResize(st.ElementID, res.Resize); err != nil {
		return Result{}, err
	}
	res.Applied = true
	return res, nil
}

func (r *Resizer) moveLeft(st State, delta, eps float64) Result {
	sr := r.snapEdge(st.StartTime+delta, st.ElementID)
	delta = sr.Time - st.StartTime

	lower := math.Max(0, st.TrimStart-st.StartTime)
	upper := st.Duration - st.TrimEnd - eps
	trimStart := clamp(st.TrimStart+delta, lower, upper)
	applied := trimStart - st.TrimStart

	return Result{
		Resize: timeline.Resize{
			StartTime: st.StartTime + applied,
			TrimStart: trimStart,
			TrimEnd:   st.TrimEnd,
			Duration:  st.Duration,
		},
		Snap: sr,
	}
}

func (r *Resizer) moveRight(st State, el timeline.Element, delta, eps float64) Result {
	end := st.StartTime + st.Duration - st.TrimStart - st.TrimEnd
	sr := r.snapEdge(end+delta, st.ElementID)
	delta = sr.Time - end

	duration := st.Duration
	trimEnd := st.TrimEnd - delta
	if trimEnd < 0 {
		if r.model.Extensible(el) {
			duration = st.Duration - trimEnd
			if r.opts.MaxDuration > 0 && duration > r.opts.MaxDuration {
				duration = math.Max(r.opts.MaxDuration, st.Duration)
			}
		}
		trimEnd = 0
	}
	trimEnd = math.Min(trimEnd, duration-st.TrimStart-eps)

	return Result{
		Resize: timeline.Resize{
			StartTime: st.StartTime,
			TrimStart: st.TrimStart,
			TrimEnd:   trimEnd,
			Duration:  duration,
		},
		Snap: sr,
	}
}

// snapEdge resolves a dragged edge time, excluding the element itself from
// the candidate points.
func (r *Resizer) snapEdge(t float64, elementID string) snap.Result {
	if r.snap == nil {
		return snap.Result{Time: snap.RoundToFrame(t, r.model.FPS())}
	}
	playhead := 0.0
	if r.opts.Playhead != nil {
		playhead = r.opts.Playhead()
	}
	return r.snap.Snap(r.model.Snapshot(), t, elementID, playhead)
}

// End leaves the Resizing state and keeps the current timing.
func (r *Resizer) End() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return State{}, false
	}
	st := *r.state
	r.state = nil
	r.logger.Debug("resize finished", "element", st.ElementID)
	return st, true
}

// Cancel leaves the Resizing state and restores the timing captured at
// Begin.
func (r *Resizer) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil
	}
	st := *r.state
	r.state = nil
	return r.model.ApplyResize(st.ElementID, timeline.Resize{
		StartTime: st.StartTime,
		TrimStart: st.TrimStart,
		TrimEnd:   st.TrimEnd,
		Duration:  st.Duration,
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
