package timeline

// TrackKind is the kind of elements a track holds.
type TrackKind string

const (
	TrackMedia TrackKind = "media"
	TrackText  TrackKind = "text"
	TrackAudio TrackKind = "audio"
)

// Valid reports whether k is a known track kind.
func (k TrackKind) Valid() bool {
	switch k {
	case TrackMedia, TrackText, TrackAudio:
		return true
	}
	return false
}

// Track is one lane of the timeline.
type Track struct {
	ID       string    `json:"id" toml:"id"`
	Name     string    `json:"name" toml:"name"`
	Kind     TrackKind `json:"kind" toml:"kind"`
	Elements []Element `json:"elements" toml:"-"`
	Muted    bool      `json:"muted,omitempty" toml:"muted,omitempty"`
	IsMain   bool      `json:"is_main,omitempty" toml:"is_main,omitempty"`

	// Volume scales every element on the track when mixing.
	Volume float64 `json:"volume" toml:"volume"`
}

// Clone returns a deep copy of the track and its elements.
func (t *Track) Clone() *Track {
	c := *t
	c.Elements = make([]Element, len(t.Elements))
	for i, el := range t.Elements {
		c.Elements[i] = el.Clone()
	}
	return &c
}

// index returns the position of element id on the track, or -1.
func (t *Track) index(id string) int {
	for i, el := range t.Elements {
		if el.Common().ID == id {
			return i
		}
	}
	return -1
}
