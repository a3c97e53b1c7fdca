package timeline

import (
	"math"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
)

// DropKind is the kind of item carried by a drag-and-drop payload.
type DropKind string

const (
	DropMedia DropKind = "media"
	DropText  DropKind = "text"
)

// DropPayload is what a media browser or text palette hands the timeline
// when the user drops an item on it.
type DropPayload struct {
	Kind DropKind `json:"kind"`
	ID   string   `json:"id"`   // media id for DropMedia, ignored for DropText
	Name string   `json:"name"` // display name; text content for DropText
}

// AddFromDrop instantiates a new element from p at timeline time t and
// returns its id. When trackID is empty the first compatible track is used,
// and one is created if none exists. Track creation and placement commit
// together or not at all.
func (m *Model) AddFromDrop(p DropPayload, trackID string, t float64) (string, error) {
	el, kind, err := m.elementFromDrop(p)
	if err != nil {
		return "", err
	}
	el.Common().ID = m.newID()
	el.Common().StartTime = math.Max(0, t)
	newTrackID := m.newID()

	err = m.mutate("drop", func(s *Snapshot) (Change, error) {
		var tr *Track
		if trackID != "" {
			var ok bool
			if tr, ok = s.Track(trackID); !ok {
				return Change{}, errors.Timeline("track %s not found", trackID)
			}
		} else {
			tr = findTrack(s, kind)
			if tr == nil {
				tr = &Track{ID: newTrackID, Name: defaultTrackName(kind), Kind: kind, Volume: 1}
				if kind == TrackMedia {
					if _, hasMain := s.MainTrack(); !hasMain {
						tr.IsMain = true
					}
				}
				insertTrack(s, tr)
			}
		}
		if err := m.checkNewMedia(tr, el); err != nil {
			return Change{}, err
		}
		tr.Elements = append(tr.Elements, el)
		return Change{Kind: ChangeElementAdded, TrackID: tr.ID, ElementID: el.Common().ID}, nil
	})
	if err != nil {
		return "", err
	}
	return el.Common().ID, nil
}

func (m *Model) elementFromDrop(p DropPayload) (Element, TrackKind, error) {
	switch p.Kind {
	case DropText:
		content := p.Name
		if content == "" {
			content = "Text"
		}
		return NewText(content), TrackText, nil

	case DropMedia:
		if m.media == nil {
			return nil, "", errors.Timeline("no media library attached")
		}
		item, ok := m.media.Media(p.ID)
		if !ok {
			return nil, "", errors.Timeline("media %s not found", p.ID)
		}
		name := p.Name
		if name == "" {
			name = item.Name()
		}
		duration := item.Duration
		if item.Kind == media.KindImage || duration <= 0 {
			duration = DefaultImageLength
		}
		kind := TrackMedia
		if item.Kind == media.KindAudio {
			kind = TrackAudio
		}
		return NewMedia(item.ID, name, duration), kind, nil

	default:
		return nil, "", errors.Timeline("unknown drop kind %q", p.Kind)
	}
}

// findTrack returns the track a new element of the given kind lands on:
// the main track for media when there is one, else the first track of that
// kind.
func findTrack(s *Snapshot, kind TrackKind) *Track {
	if kind == TrackMedia {
		if main, ok := s.MainTrack(); ok {
			return main
		}
	}
	for _, tr := range s.Tracks {
		if tr.Kind == kind {
			return tr
		}
	}
	return nil
}
