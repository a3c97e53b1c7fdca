// Package snap resolves drag and seek times to alignment points.
//
// When snapping is disabled (the default), when there are no candidate
// points, or when resolution fails for any reason, a time is rounded to the
// nearest frame boundary and no snap is reported. When enabled, the nearest
// candidate point within a pixel threshold wins; equidistant candidates are
// resolved by iteration order, first found wins.
package snap

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/timeline"
)

// PointKind identifies where a snap point came from.
type PointKind string

const (
	PointElementStart PointKind = "element-start"
	PointElementEnd   PointKind = "element-end"
	PointPlayhead     PointKind = "playhead"
	PointGrid         PointKind = "grid"
)

// Default strengths per kind. They are reported with each point but do not
// influence which point wins.
const (
	strengthEdge     = 1.0
	strengthPlayhead = 0.8
	strengthGrid     = 0.5
)

// DefaultThreshold is the snap distance in pixels.
const DefaultThreshold = 10.0

// Point is a candidate snap time.
type Point struct {
	Time      float64   `json:"time"`
	Kind      PointKind `json:"kind"`
	Strength  float64   `json:"strength"`
	ElementID string    `json:"element_id,omitempty"`
	TrackID   string    `json:"track_id,omitempty"`
}

// Result is the outcome of a snap query.
type Result struct {
	Time    float64 `json:"time"`
	DidSnap bool    `json:"did_snap"`
	Point   *Point  `json:"point,omitempty"`
}

// Options configures a Service.
type Options struct {
	Enabled         bool    `json:"enabled" toml:"enabled"`
	FPS             float64 `json:"fps" toml:"-"`
	PixelsPerSecond float64 `json:"pixels_per_second" toml:"pixels_per_second"`
	Zoom            float64 `json:"zoom" toml:"zoom"`
	Threshold       float64 `json:"threshold" toml:"threshold"` // pixels
	Playhead        bool    `json:"playhead" toml:"playhead"`   // include the playhead as a point
	GridInterval    float64 `json:"grid_interval" toml:"grid_interval"`
}

// Default option values.
const (
	DefaultPixelsPerSecond = 50.0
	DefaultZoom            = 1.0
)

// SetDefaults fills unset fields. It is idempotent.
func (o *Options) SetDefaults() {
	if o.FPS <= 0 {
		o.FPS = timeline.DefaultFPS
	}
	if o.PixelsPerSecond <= 0 {
		o.PixelsPerSecond = DefaultPixelsPerSecond
	}
	if o.Zoom <= 0 {
		o.Zoom = DefaultZoom
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
}

// Service answers snap queries. It holds no timeline state; callers pass
// the snapshot and playhead for each interaction. It is safe for concurrent
// use.
type Service struct {
	mu     sync.RWMutex
	opts   Options
	logger *log.Logger

	// distance converts a time difference to pixels. Replaced in tests.
	distance func(o Options, dt float64) float64
}

// New creates a snapping service.
func New(opts Options, logger *log.Logger) *Service {
	opts.SetDefaults()
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Service{opts: opts, logger: logger, distance: pixels}
}

// Options returns the effective options.
func (s *Service) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetEnabled toggles snapping.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.opts.Enabled = enabled
	s.mu.Unlock()
}

// SetZoom changes the zoom level used for pixel distances.
func (s *Service) SetZoom(zoom float64) {
	if zoom <= 0 {
		return
	}
	s.mu.Lock()
	s.opts.Zoom = zoom
	s.mu.Unlock()
}

func pixels(o Options, dt float64) float64 {
	return math.Abs(dt) * o.PixelsPerSecond * o.Zoom
}

// RoundToFrame returns t rounded to the nearest frame boundary.
func RoundToFrame(t, fps float64) float64 {
	return math.Round(t*fps) / fps
}

// Points builds the candidate set from snap: the start and effective end of
// every element in track order, then the playhead, then grid lines.
// Elements with id exclude (the one being dragged) are skipped.
func (s *Service) Points(snap *timeline.Snapshot, exclude string, playhead float64) []Point {
	o := s.Options()
	return points(o, snap, exclude, playhead, o.Playhead)
}

func points(o Options, snap *timeline.Snapshot, exclude string, playhead float64, withPlayhead bool) []Point {
	var pts []Point
	for _, p := range snap.Elements() {
		b := p.Element.Common()
		if b.ID == exclude {
			continue
		}
		pts = append(pts,
			Point{Time: b.StartTime, Kind: PointElementStart, Strength: strengthEdge, ElementID: b.ID, TrackID: p.Track.ID},
			Point{Time: b.End(), Kind: PointElementEnd, Strength: strengthEdge, ElementID: b.ID, TrackID: p.Track.ID},
		)
	}
	if withPlayhead {
		pts = append(pts, Point{Time: playhead, Kind: PointPlayhead, Strength: strengthPlayhead})
	}
	if o.GridInterval > 0 {
		end := snap.TotalDuration()
		for g := 0.0; g <= end+tolerance; g += o.GridInterval {
			pts = append(pts, Point{Time: g, Kind: PointGrid, Strength: strengthGrid})
		}
	}
	return pts
}

const tolerance = 1e-9

// SnapTime resolves t against points.
func (s *Service) SnapTime(t float64, points []Point) Result {
	return s.resolve(s.Options(), t, points)
}

func (s *Service) resolve(o Options, t float64, points []Point) (res Result) {
	fallback := Result{Time: RoundToFrame(t, o.FPS)}
	if !o.Enabled || len(points) == 0 {
		return fallback
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("snap resolution failed, using frame rounding", "error", fmt.Sprint(r))
			res = fallback
		}
	}()

	best := -1
	bestDist := math.Inf(1)
	for i, p := range points {
		d := s.distance(o, p.Time-t)
		if math.IsNaN(d) {
			panic(fmt.Sprintf("distance to point %d is NaN", i))
		}
		if d < o.Threshold && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return fallback
	}

	pt := points[best]
	return Result{Time: pt.Time, DidSnap: true, Point: &pt}
}

// Snap builds the point set from snapshot and resolves t in one step.
func (s *Service) Snap(snapshot *timeline.Snapshot, t float64, exclude string, playhead float64) Result {
	o := s.Options()
	if !o.Enabled {
		return Result{Time: RoundToFrame(t, o.FPS)}
	}
	return s.resolve(o, t, points(o, snapshot, exclude, playhead, o.Playhead))
}

// SnapSeek resolves a seek target. The playhead is never a candidate, since
// it is the thing being moved.
func (s *Service) SnapSeek(snapshot *timeline.Snapshot, t float64) Result {
	o := s.Options()
	if !o.Enabled {
		return Result{Time: RoundToFrame(t, o.FPS)}
	}
	return s.resolve(o, t, points(o, snapshot, "", 0, false))
}
