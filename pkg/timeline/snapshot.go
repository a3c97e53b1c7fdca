package timeline

import "math"

// Snapshot is an immutable-by-convention deep copy of timeline state.
// Consumers must not mutate it; take another snapshot instead.
type Snapshot struct {
	FPS    float64  `json:"fps"`
	Tracks []*Track `json:"tracks"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{FPS: s.FPS, Tracks: make([]*Track, len(s.Tracks))}
	for i, t := range s.Tracks {
		c.Tracks[i] = t.Clone()
	}
	return c
}

// FrameEpsilon is the minimum effective duration of an element: one frame.
func (s *Snapshot) FrameEpsilon() float64 {
	return frameEpsilon(s.FPS)
}

func frameEpsilon(fps float64) float64 {
	if fps <= 0 {
		return 1.0 / DefaultFPS
	}
	return 1.0 / fps
}

// TotalDuration is the end of the last element over all tracks.
// It is computed on every call.
func (s *Snapshot) TotalDuration() float64 {
	total := 0.0
	for _, t := range s.Tracks {
		for _, el := range t.Elements {
			total = math.Max(total, el.Common().End())
		}
	}
	return total
}

// Placed pairs an element with the track that holds it.
type Placed struct {
	Track   *Track
	Element Element
}

// ActiveAt returns the elements covering time t, in track order (top first).
func (s *Snapshot) ActiveAt(t float64) []Placed {
	var out []Placed
	for _, tr := range s.Tracks {
		for _, el := range tr.Elements {
			if el.Common().ActiveAt(t) {
				out = append(out, Placed{Track: tr, Element: el})
			}
		}
	}
	return out
}

// Elements returns every element in track order.
func (s *Snapshot) Elements() []Placed {
	var out []Placed
	for _, tr := range s.Tracks {
		for _, el := range tr.Elements {
			out = append(out, Placed{Track: tr, Element: el})
		}
	}
	return out
}

// Find returns the element with the given id and its track.
func (s *Snapshot) Find(id string) (Element, *Track, bool) {
	for _, tr := range s.Tracks {
		if i := tr.index(id); i >= 0 {
			return tr.Elements[i], tr, true
		}
	}
	return nil, nil, false
}

// Track returns the track with the given id.
func (s *Snapshot) Track(id string) (*Track, bool) {
	for _, tr := range s.Tracks {
		if tr.ID == id {
			return tr, true
		}
	}
	return nil, false
}

// MainTrack returns the main track, if any.
func (s *Snapshot) MainTrack() (*Track, bool) {
	for _, tr := range s.Tracks {
		if tr.IsMain {
			return tr, true
		}
	}
	return nil, false
}

func (s *Snapshot) trackIndex(id string) int {
	for i, tr := range s.Tracks {
		if tr.ID == id {
			return i
		}
	}
	return -1
}
