// Package scene turns timeline state into a composition tree and rasterizes
// it one frame at a time.
//
// [Build] walks a timeline snapshot and produces a [Scene]: one [Layer] per
// visual track, ordered back-to-front, each holding [OffsetNode] values that
// place a content node ([VideoNode], [ImageNode], [TextNode]) in time. The
// scene is a plain value. Its ID is a content hash, so two scenes built from
// equal inputs compare equal and a [Renderer] can skip redrawing a frame it
// has just produced.
//
// Rendering uses github.com/gogpu/gg on the CPU. Frame content for video and
// image nodes comes from a [FrameSource].
package scene

import (
	"math"

	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/timeline"
)

// =============================================================================
// Settings
// =============================================================================

// Canvas limits.
const (
	MaxDimension = 16384
	MaxPixels    = 64 << 20 // 64 megapixels
)

// Settings describes the output canvas.
type Settings struct {
	Width      int     `json:"width" toml:"width"`
	Height     int     `json:"height" toml:"height"`
	FPS        float64 `json:"fps" toml:"fps"`
	Background string  `json:"background" toml:"background"` // hex colour or "transparent"
}

// Default canvas values.
const (
	DefaultWidth      = 1920
	DefaultHeight     = 1080
	DefaultBackground = "#000000"
)

// SetDefaults fills zero values.
func (s *Settings) SetDefaults() {
	if s.Width == 0 {
		s.Width = DefaultWidth
	}
	if s.Height == 0 {
		s.Height = DefaultHeight
	}
	if s.FPS == 0 {
		s.FPS = timeline.DefaultFPS
	}
	if s.Background == "" {
		s.Background = DefaultBackground
	}
}

// Validate checks the canvas. Oversized canvases are RESOURCE errors.
func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "canvas %dx%d: dimensions must be positive", s.Width, s.Height)
	}
	if s.Width > MaxDimension || s.Height > MaxDimension || s.Width*s.Height > MaxPixels {
		return errors.Resource("canvas %dx%d exceeds %d megapixels", s.Width, s.Height, MaxPixels>>20)
	}
	if s.FPS <= 0 || math.IsNaN(s.FPS) || math.IsInf(s.FPS, 0) {
		return errors.New(errors.ErrCodeInvalidInput, "fps %v must be positive", s.FPS)
	}
	return errors.ValidateHexColor(s.Background)
}

// =============================================================================
// Nodes
// =============================================================================

// Node is a content node of the composition tree.
type Node interface {
	node()
}

// OffsetNode places a content node on the timeline. Child is nil for
// elements that have nothing to draw, such as orphaned media.
type OffsetNode struct {
	ElementID string  `json:"element_id"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"` // effective duration
	TrimStart float64 `json:"trim_start"`
	Child     Node    `json:"child"`
}

// Active reports whether the node covers time t.
func (o *OffsetNode) Active(t float64) bool {
	return o.Start <= t && t < o.Start+o.Duration
}

// LocalTime maps timeline time t to source time.
func (o *OffsetNode) LocalTime(t float64) float64 {
	return o.TrimStart + math.Max(0, t-o.Start)
}

// VideoNode draws the frame of a video source at the local time.
type VideoNode struct {
	Media media.Item `json:"media"`
}

// ImageNode draws a still image for the whole node duration.
type ImageNode struct {
	Media media.Item `json:"media"`
}

// TextNode draws a styled text overlay.
type TextNode struct {
	Content         string             `json:"content"`
	FontSize        float64            `json:"font_size"`
	FontFamily      string             `json:"font_family"`
	Color           string             `json:"color"`
	BackgroundColor string             `json:"background_color,omitempty"`
	Align           timeline.TextAlign `json:"align"`
	Bold            bool               `json:"bold,omitempty"`
	Italic          bool               `json:"italic,omitempty"`
	X               float64            `json:"x"`
	Y               float64            `json:"y"`
	Rotation        float64            `json:"rotation"`
	Opacity         float64            `json:"opacity"`
}

func (*VideoNode) node() {}
func (*ImageNode) node() {}
func (*TextNode) node()  {}

// Layer is the visual content of one track.
type Layer struct {
	TrackID string             `json:"track_id"`
	Kind    timeline.TrackKind `json:"kind"`
	Nodes   []*OffsetNode      `json:"nodes"`
}

// Scene is a composition tree for a whole timeline.
type Scene struct {
	ID         string  `json:"id"`
	Duration   float64 `json:"duration"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Background string  `json:"background"`
	Layers     []Layer `json:"layers"` // back-to-front
}

// FrameCount is the number of frames needed to cover the duration.
func (s *Scene) FrameCount() int {
	return FrameCount(s.Duration, s.FPS)
}

// FrameCount returns ceil(duration*fps), ignoring float noise.
func FrameCount(duration, fps float64) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(duration*fps - 1e-9))
}

// TimeOf returns the timeline time of a frame index.
func (s *Scene) TimeOf(frame int) float64 {
	return float64(frame) / s.FPS
}

// FrameAt returns the frame index showing time t.
func (s *Scene) FrameAt(t float64) int {
	return int(math.Floor(t*s.FPS + 1e-9))
}

// Active returns the nodes covering t, back-to-front.
func (s *Scene) Active(t float64) []*OffsetNode {
	var out []*OffsetNode
	for _, l := range s.Layers {
		for _, n := range l.Nodes {
			if n.Active(t) {
				out = append(out, n)
			}
		}
	}
	return out
}

// =============================================================================
// Build
// =============================================================================

// Build converts a timeline snapshot into a scene. Audio tracks carry no
// visual content and are skipped. Elements whose media cannot be resolved
// get an OffsetNode without a child.
func Build(snap *timeline.Snapshot, provider media.Provider, settings Settings) (*Scene, error) {
	settings.SetDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	sc := &Scene{
		Duration:   snap.TotalDuration(),
		FPS:        settings.FPS,
		Width:      settings.Width,
		Height:     settings.Height,
		Background: settings.Background,
	}
	for i := len(snap.Tracks) - 1; i >= 0; i-- {
		tr := snap.Tracks[i]
		if tr.Kind == timeline.TrackAudio {
			continue
		}
		layer := Layer{TrackID: tr.ID, Kind: tr.Kind}
		for _, el := range tr.Elements {
			b := el.Common()
			layer.Nodes = append(layer.Nodes, &OffsetNode{
				ElementID: b.ID,
				Start:     b.StartTime,
				Duration:  b.EffectiveDuration(),
				TrimStart: b.TrimStart,
				Child:     contentNode(el, provider),
			})
		}
		sc.Layers = append(sc.Layers, layer)
	}

	id, err := cache.HashJSON(sc)
	if err != nil {
		return nil, errors.Render(err, "hash scene")
	}
	sc.ID = id
	return sc, nil
}

func contentNode(el timeline.Element, provider media.Provider) Node {
	switch e := el.(type) {
	case *timeline.TextElement:
		return &TextNode{
			Content:         e.Content,
			FontSize:        e.FontSize,
			FontFamily:      e.FontFamily,
			Color:           e.Color,
			BackgroundColor: e.BackgroundColor,
			Align:           e.TextAlign,
			Bold:            e.Bold,
			Italic:          e.Italic,
			X:               e.X,
			Y:               e.Y,
			Rotation:        e.Rotation,
			Opacity:         e.Opacity,
		}
	case *timeline.MediaElement:
		if e.Orphaned || provider == nil {
			return nil
		}
		item, ok := provider.Media(e.MediaID)
		if !ok {
			return nil
		}
		switch item.Kind {
		case media.KindVideo:
			return &VideoNode{Media: item}
		case media.KindImage:
			return &ImageNode{Media: item}
		}
	}
	return nil
}
