package timeline

import (
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
)

// DefaultFPS is the frame rate used when none is configured.
const DefaultFPS = 30.0

// ChangeKind describes a committed mutation.
type ChangeKind string

const (
	ChangeLoaded         ChangeKind = "loaded"
	ChangeTrackAdded     ChangeKind = "track-added"
	ChangeTrackRemoved   ChangeKind = "track-removed"
	ChangeTrackUpdated   ChangeKind = "track-updated"
	ChangeElementAdded   ChangeKind = "element-added"
	ChangeElementRemoved ChangeKind = "element-removed"
	ChangeElementMoved   ChangeKind = "element-moved"
	ChangeElementTrimmed ChangeKind = "element-trimmed"
	ChangeElementUpdated ChangeKind = "element-updated"
)

// Change is delivered to observers after every committed mutation.
type Change struct {
	Kind      ChangeKind
	TrackID   string
	ElementID string
}

// Observer receives change notifications. It is called synchronously after
// the mutation commits, outside the model lock, so it may read the model.
type Observer func(Change)

// Options configures a Model.
type Options struct {
	FPS    float64        // frames per second; defaults to DefaultFPS
	Media  media.Provider // optional; enables media-aware validation
	Logger *log.Logger    // optional
}

// Model is the single owner of timeline state. It is safe for concurrent use.
type Model struct {
	mu    sync.RWMutex
	state *Snapshot

	media  media.Provider
	logger *log.Logger
	newID  func() string

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewModel creates an empty timeline.
func NewModel(opts Options) *Model {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Model{
		state:     &Snapshot{FPS: opts.FPS},
		media:     opts.Media,
		logger:    opts.Logger,
		newID:     uuid.NewString,
		observers: make(map[int]Observer),
	}
}

// =============================================================================
// Reads
// =============================================================================

// Snapshot returns a deep copy of the current state.
func (m *Model) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// FPS returns the model frame rate.
func (m *Model) FPS() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FPS
}

// FrameEpsilon is the minimum effective duration of any element.
func (m *Model) FrameEpsilon() float64 {
	return frameEpsilon(m.FPS())
}

// TotalDuration returns max(StartTime + effective) over all elements,
// recomputed from current state on every call.
func (m *Model) TotalDuration() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.TotalDuration()
}

// ActiveAt returns copies of the elements active at time t.
func (m *Model) ActiveAt(t float64) []Placed {
	return m.Snapshot().ActiveAt(t)
}

// Element returns a copy of the element with the given id and its track id.
func (m *Model) Element(id string) (Element, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el, tr, ok := m.state.Find(id)
	if !ok {
		return nil, "", false
	}
	return el.Clone(), tr.ID, true
}

// Track returns a copy of the track with the given id.
func (m *Model) Track(id string) (*Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.state.Track(id)
	if !ok {
		return nil, false
	}
	return tr.Clone(), true
}

// Extensible reports whether el may grow beyond its source duration:
// text elements and still images can, video and audio cannot.
func (m *Model) Extensible(el Element) bool {
	switch e := el.(type) {
	case *TextElement:
		return true
	case *MediaElement:
		if m.media == nil {
			return false
		}
		item, ok := m.media.Media(e.MediaID)
		return ok && item.Kind == media.KindImage
	default:
		return false
	}
}

// MediaReferences lists the ids of elements that reference mediaID.
// It implements media.ReferenceChecker.
func (m *Model) MediaReferences(mediaID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, p := range m.state.Elements() {
		if e, ok := p.Element.(*MediaElement); ok && e.MediaID == mediaID && !e.Orphaned {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// =============================================================================
// Observers
// =============================================================================

// Subscribe registers an observer and returns a function that removes it.
func (m *Model) Subscribe(o Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = o
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Model) notify(ch Change) {
	m.obsMu.Lock()
	observers := make([]Observer, 0, len(m.observers))
	for i := 0; i < m.nextObs; i++ {
		if o, ok := m.observers[i]; ok {
			observers = append(observers, o)
		}
	}
	m.obsMu.Unlock()

	for _, o := range observers {
		o(ch)
	}
}

// =============================================================================
// Mutations
// =============================================================================

// mutate applies fn to a copy of the state and commits it only if fn and
// the full invariant check both succeed.
func (m *Model) mutate(op string, fn func(s *Snapshot) (Change, error)) error {
	m.mu.Lock()
	next := m.state.Clone()
	ch, err := fn(next)
	if err == nil {
		err = validateState(next)
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Debug("timeline mutation rejected", "op", op, "error", err)
		return err
	}
	m.state = next
	m.mu.Unlock()

	m.notify(ch)
	return nil
}

// Load replaces the whole state with s after validating it.
func (m *Model) Load(s *Snapshot) error {
	return m.mutate("load", func(next *Snapshot) (Change, error) {
		loaded := s.Clone()
		if loaded.FPS <= 0 {
			loaded.FPS = next.FPS
		}
		for _, p := range loaded.Elements() {
			if err := checkMedia(m.media, p.Track, p.Element); err != nil {
				return Change{}, err
			}
		}
		*next = *loaded
		return Change{Kind: ChangeLoaded}, nil
	})
}

// AddTrack creates a track and returns its id. Audio tracks are appended at
// the bottom; other tracks are inserted at the top.
func (m *Model) AddTrack(kind TrackKind, name string) (string, error) {
	id := m.newID()
	err := m.mutate("add-track", func(s *Snapshot) (Change, error) {
		if !kind.Valid() {
			return Change{}, errors.Timeline("unknown track kind %q", kind)
		}
		tr := &Track{ID: id, Name: name, Kind: kind, Volume: 1}
		if tr.Name == "" {
			tr.Name = defaultTrackName(kind)
		}
		insertTrack(s, tr)
		return Change{Kind: ChangeTrackAdded, TrackID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertTrack(s *Snapshot, tr *Track) {
	if tr.Kind == TrackAudio {
		s.Tracks = append(s.Tracks, tr)
		return
	}
	s.Tracks = append([]*Track{tr}, s.Tracks...)
}

func defaultTrackName(kind TrackKind) string {
	switch kind {
	case TrackText:
		return "Text"
	case TrackAudio:
		return "Audio"
	default:
		return "Media"
	}
}

// RemoveTrack deletes a track and all of its elements.
func (m *Model) RemoveTrack(id string) error {
	return m.mutate("remove-track", func(s *Snapshot) (Change, error) {
		i := s.trackIndex(id)
		if i < 0 {
			return Change{}, errors.Timeline("track %s not found", id)
		}
		s.Tracks = append(s.Tracks[:i], s.Tracks[i+1:]...)
		return Change{Kind: ChangeTrackRemoved, TrackID: id}, nil
	})
}

// SetMainTrack marks a media track as the main track and clears the flag on
// every other track.
func (m *Model) SetMainTrack(id string) error {
	return m.mutate("set-main-track", func(s *Snapshot) (Change, error) {
		if _, ok := s.Track(id); !ok {
			return Change{}, errors.Timeline("track %s not found", id)
		}
		for _, tr := range s.Tracks {
			tr.IsMain = tr.ID == id
		}
		return Change{Kind: ChangeTrackUpdated, TrackID: id}, nil
	})
}

// SetTrackMuted mutes or unmutes a track.
func (m *Model) SetTrackMuted(id string, muted bool) error {
	return m.updateTrack("mute-track", id, func(tr *Track) { tr.Muted = muted })
}

// SetTrackVolume sets the gain applied to every element on the track.
func (m *Model) SetTrackVolume(id string, volume float64) error {
	return m.updateTrack("track-volume", id, func(tr *Track) { tr.Volume = volume })
}

func (m *Model) updateTrack(op, id string, fn func(*Track)) error {
	return m.mutate(op, func(s *Snapshot) (Change, error) {
		tr, ok := s.Track(id)
		if !ok {
			return Change{}, errors.Timeline("track %s not found", id)
		}
		fn(tr)
		return Change{Kind: ChangeTrackUpdated, TrackID: id}, nil
	})
}

// AddElement places a copy of el on a track and returns the element id.
// An empty id is replaced with a generated one.
func (m *Model) AddElement(trackID string, el Element) (string, error) {
	el = el.Clone()
	if el.Common().ID == "" {
		el.Common().ID = m.newID()
	}
	id := el.Common().ID

	err := m.mutate("add-element", func(s *Snapshot) (Change, error) {
		tr, ok := s.Track(trackID)
		if !ok {
			return Change{}, errors.Timeline("track %s not found", trackID)
		}
		if err := m.checkNewMedia(tr, el); err != nil {
			return Change{}, err
		}
		tr.Elements = append(tr.Elements, el)
		return Change{Kind: ChangeElementAdded, TrackID: trackID, ElementID: id}, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// checkNewMedia rejects references to unknown media in addition to the
// checkMedia rules. It applies to elements entering a track.
func (m *Model) checkNewMedia(tr *Track, el Element) error {
	if e, ok := el.(*MediaElement); ok && m.media != nil {
		if _, found := m.media.Media(e.MediaID); !found {
			return errors.Timeline("media %s not found", e.MediaID)
		}
	}
	return checkMedia(m.media, tr, el)
}

// RemoveElement deletes an element.
func (m *Model) RemoveElement(id string) error {
	return m.mutate("remove-element", func(s *Snapshot) (Change, error) {
		for _, tr := range s.Tracks {
			if i := tr.index(id); i >= 0 {
				tr.Elements = append(tr.Elements[:i], tr.Elements[i+1:]...)
				return Change{Kind: ChangeElementRemoved, TrackID: tr.ID, ElementID: id}, nil
			}
		}
		return Change{}, errors.Timeline("element %s not found", id)
	})
}

// MoveElement changes an element's start time and, when toTrack is not
// empty, moves it to another track. Incompatible tracks are rejected.
func (m *Model) MoveElement(id string, startTime float64, toTrack string) error {
	return m.mutate("move-element", func(s *Snapshot) (Change, error) {
		el, from, ok := s.Find(id)
		if !ok {
			return Change{}, errors.Timeline("element %s not found", id)
		}
		el.Common().StartTime = startTime

		if toTrack == "" || toTrack == from.ID {
			return Change{Kind: ChangeElementMoved, TrackID: from.ID, ElementID: id}, nil
		}
		to, ok := s.Track(toTrack)
		if !ok {
			return Change{}, errors.Timeline("track %s not found", toTrack)
		}
		if err := checkMedia(m.media, to, el); err != nil {
			return Change{}, err
		}
		i := from.index(id)
		from.Elements = append(from.Elements[:i], from.Elements[i+1:]...)
		to.Elements = append(to.Elements, el)
		return Change{Kind: ChangeElementMoved, TrackID: to.ID, ElementID: id}, nil
	})
}

// UpdateTrim sets both trims of an element.
func (m *Model) UpdateTrim(id string, trimStart, trimEnd float64) error {
	return m.updateElement("update-trim", ChangeElementTrimmed, id, func(el Element) error {
		b := el.Common()
		b.TrimStart, b.TrimEnd = trimStart, trimEnd
		return nil
	})
}

// UpdateDuration changes the source duration of an extensible element.
func (m *Model) UpdateDuration(id string, duration float64) error {
	return m.updateElement("update-duration", ChangeElementTrimmed, id, func(el Element) error {
		if duration != el.Common().Duration && !m.Extensible(el) {
			return errors.Timeline("element %s cannot change duration: source length is fixed", id)
		}
		el.Common().Duration = duration
		return nil
	})
}

// Resize is the complete timing of an element after an edge drag.
type Resize struct {
	StartTime float64
	TrimStart float64
	TrimEnd   float64
	Duration  float64
}

// ApplyResize commits all timing fields of a resize in one validated step.
func (m *Model) ApplyResize(id string, r Resize) error {
	return m.updateElement("resize", ChangeElementTrimmed, id, func(el Element) error {
		b := el.Common()
		if r.Duration != b.Duration && !m.Extensible(el) {
			return errors.Timeline("element %s cannot change duration: source length is fixed", id)
		}
		b.StartTime, b.TrimStart, b.TrimEnd, b.Duration = r.StartTime, r.TrimStart, r.TrimEnd, r.Duration
		return nil
	})
}

// SetElementMuted mutes or unmutes an element.
func (m *Model) SetElementMuted(id string, muted bool) error {
	return m.updateElement("mute-element", ChangeElementUpdated, id, func(el Element) error {
		el.Common().Muted = muted
		return nil
	})
}

// SetVolumePan sets the gain and stereo position of a media element.
func (m *Model) SetVolumePan(id string, volume, pan float64) error {
	return m.updateElement("volume-pan", ChangeElementUpdated, id, func(el Element) error {
		e, ok := el.(*MediaElement)
		if !ok {
			return errors.Timeline("element %s has no audio", id)
		}
		e.Volume, e.Pan = volume, pan
		return nil
	})
}

// UpdateText edits a text element through fn, which receives a copy. The
// element id and timing cannot be changed this way.
func (m *Model) UpdateText(id string, fn func(*TextElement)) error {
	return m.updateElement("update-text", ChangeElementUpdated, id, func(el Element) error {
		e, ok := el.(*TextElement)
		if !ok {
			return errors.Timeline("element %s is not a text element", id)
		}
		base := e.Base
		fn(e)
		e.Base = Base{
			ID: base.ID, Duration: base.Duration, StartTime: base.StartTime,
			TrimStart: base.TrimStart, TrimEnd: base.TrimEnd,
			Name: e.Name, Muted: e.Muted,
		}
		return nil
	})
}

func (m *Model) updateElement(op string, kind ChangeKind, id string, fn func(Element) error) error {
	return m.mutate(op, func(s *Snapshot) (Change, error) {
		el, tr, ok := s.Find(id)
		if !ok {
			return Change{}, errors.Timeline("element %s not found", id)
		}
		if err := fn(el); err != nil {
			return Change{}, err
		}
		if err := checkMedia(m.media, tr, el); err != nil {
			return Change{}, err
		}
		return Change{Kind: kind, TrackID: tr.ID, ElementID: id}, nil
	})
}

// SplitElement cuts an element at timeline time t. The original keeps the
// left part; the right part becomes a new element whose id is returned.
// Both parts must be at least one frame long.
func (m *Model) SplitElement(id string, t float64) (string, error) {
	newID := m.newID()
	err := m.mutate("split-element", func(s *Snapshot) (Change, error) {
		el, tr, ok := s.Find(id)
		if !ok {
			return Change{}, errors.Timeline("element %s not found", id)
		}
		b := el.Common()
		eps := s.FrameEpsilon()
		if t-b.StartTime < eps-tolerance || b.End()-t < eps-tolerance {
			return Change{}, errors.Timeline("cannot split %s at %.4f: both parts need at least one frame", id, t)
		}

		right := el.Clone()
		rb := right.Common()
		rb.ID = newID
		rb.TrimStart += t - b.StartTime
		rb.StartTime = t
		b.TrimEnd += b.End() - t

		i := tr.index(id)
		tr.Elements = append(tr.Elements[:i+1], append([]Element{right}, tr.Elements[i+1:]...)...)
		return Change{Kind: ChangeElementAdded, TrackID: tr.ID, ElementID: newID}, nil
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

// OrphanMedia flags every element referencing mediaID as orphaned and
// returns how many were flagged. It implements media.Orphaner.
func (m *Model) OrphanMedia(mediaID string) int {
	if len(m.MediaReferences(mediaID)) == 0 {
		return 0
	}
	n := 0
	err := m.mutate("orphan-media", func(s *Snapshot) (Change, error) {
		n = 0
		for _, p := range s.Elements() {
			if e, ok := p.Element.(*MediaElement); ok && e.MediaID == mediaID && !e.Orphaned {
				e.Orphaned = true
				n++
			}
		}
		return Change{Kind: ChangeElementUpdated}, nil
	})
	if err != nil {
		m.logger.Warn("could not orphan elements", "media", mediaID, "error", err)
		return 0
	}
	m.logger.Debug("media removed, elements orphaned", "media", mediaID, "elements", n)
	return n
}
