package timeline

import "math"

// tolerance absorbs floating-point error in invariant comparisons.
const tolerance = 1e-9

// Element is a timeline item. The concrete type is either *MediaElement or
// *TextElement.
type Element interface {
	// Common returns a pointer to the shared timing fields.
	Common() *Base

	// Clone returns a deep copy.
	Clone() Element

	sealed()
}

// Base holds the fields shared by every element kind.
type Base struct {
	ID        string  `json:"id" toml:"id"`
	Name      string  `json:"name" toml:"name"`
	Duration  float64 `json:"duration" toml:"duration"`     // source length, seconds
	StartTime float64 `json:"start_time" toml:"start_time"` // timeline placement, seconds
	TrimStart float64 `json:"trim_start" toml:"trim_start"`
	TrimEnd   float64 `json:"trim_end" toml:"trim_end"`
	Muted     bool    `json:"muted,omitempty" toml:"muted,omitempty"`
}

// Common implements Element.
func (b *Base) Common() *Base { return b }

func (b *Base) sealed() {}

// EffectiveDuration is the visible span after trimming.
func (b *Base) EffectiveDuration() float64 {
	return b.Duration - b.TrimStart - b.TrimEnd
}

// End is the timeline time at which the element stops being active.
func (b *Base) End() float64 {
	return b.StartTime + b.EffectiveDuration()
}

// ActiveAt reports whether the element covers timeline time t.
func (b *Base) ActiveAt(t float64) bool {
	return b.StartTime <= t && t < b.End()
}

// SourceTime maps timeline time t to a position in the source, clamped to
// the trimmed range [TrimStart, Duration-TrimEnd].
func (b *Base) SourceTime(t float64) float64 {
	local := t - b.StartTime + b.TrimStart
	return math.Max(b.TrimStart, math.Min(local, b.Duration-b.TrimEnd))
}

// MediaElement places a media library item on the timeline.
type MediaElement struct {
	Base

	// MediaID is a weak reference into the media library.
	MediaID string `json:"media_id" toml:"media_id"`

	Volume float64 `json:"volume" toml:"volume"` // linear gain, 1 = unity
	Pan    float64 `json:"pan" toml:"pan"`       // -1 (left) to 1 (right)

	// Orphaned is set when the referenced media was removed from the
	// library. Orphaned elements are neither drawn nor mixed.
	Orphaned bool `json:"orphaned,omitempty" toml:"orphaned,omitempty"`
}

// Clone implements Element.
func (e *MediaElement) Clone() Element {
	c := *e
	return &c
}

// TextAlign is the horizontal alignment of a text element.
type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// TextElement is a synthetic text overlay. It has no source media, so its
// duration can be extended freely.
type TextElement struct {
	Base

	Content         string    `json:"content" toml:"content"`
	FontSize        float64   `json:"font_size" toml:"font_size"`
	FontFamily      string    `json:"font_family" toml:"font_family"`
	Color           string    `json:"color" toml:"color"`
	BackgroundColor string    `json:"background_color,omitempty" toml:"background_color,omitempty"`
	TextAlign       TextAlign `json:"text_align" toml:"text_align"`
	Bold            bool      `json:"bold,omitempty" toml:"bold,omitempty"`
	Italic          bool      `json:"italic,omitempty" toml:"italic,omitempty"`

	// X and Y offset the text anchor from the canvas centre, in pixels.
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`

	Rotation float64 `json:"rotation" toml:"rotation"` // degrees, clockwise
	Opacity  float64 `json:"opacity" toml:"opacity"`   // 0..1
}

// Clone implements Element.
func (e *TextElement) Clone() Element {
	c := *e
	return &c
}

// Default text element values.
const (
	DefaultTextDuration = 5.0
	DefaultFontSize     = 48.0
	DefaultFontFamily   = "Go"
	DefaultTextColor    = "#ffffff"
	DefaultImageLength  = 5.0
)

// NewText returns a text element with default styling.
func NewText(content string) *TextElement {
	return &TextElement{
		Base: Base{
			Name:     content,
			Duration: DefaultTextDuration,
		},
		Content:    content,
		FontSize:   DefaultFontSize,
		FontFamily: DefaultFontFamily,
		Color:      DefaultTextColor,
		TextAlign:  AlignCenter,
		Opacity:    1,
	}
}

// NewMedia returns a media element referencing mediaID with unity gain.
func NewMedia(mediaID, name string, duration float64) *MediaElement {
	return &MediaElement{
		Base: Base{
			Name:     name,
			Duration: duration,
		},
		MediaID: mediaID,
		Volume:  1,
	}
}
