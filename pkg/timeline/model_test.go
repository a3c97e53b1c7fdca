package timeline

import (
	"math"
	"reflect"
	"testing"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
)

func testLibrary() *media.Library {
	return media.NewLibrary(
		media.Item{ID: "clip", URL: "clip.mp4", Kind: media.KindVideo, Duration: 10, Width: 1280, Height: 720, HasAudio: true},
		media.Item{ID: "song", URL: "song.wav", Kind: media.KindAudio, Duration: 30, HasAudio: true},
		media.Item{ID: "logo", URL: "logo.png", Kind: media.KindImage, Width: 200, Height: 200},
	)
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	return NewModel(Options{FPS: 30, Media: testLibrary()})
}

func mustTrack(t *testing.T, m *Model, kind TrackKind) string {
	t.Helper()
	id, err := m.AddTrack(kind, "")
	if err != nil {
		t.Fatalf("AddTrack(%s): %v", kind, err)
	}
	return id
}

func mustAdd(t *testing.T, m *Model, trackID string, el Element) string {
	t.Helper()
	id, err := m.AddElement(trackID, el)
	if err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	return id
}

func clip(start, trimStart, trimEnd float64) *MediaElement {
	el := NewMedia("clip", "clip", 10)
	el.StartTime, el.TrimStart, el.TrimEnd = start, trimStart, trimEnd
	return el
}

func TestEffectiveDuration(t *testing.T) {
	el := clip(0, 2, 3)
	if got := el.EffectiveDuration(); got != 5 {
		t.Errorf("EffectiveDuration = %v, want 5", got)
	}
	if got := el.End(); got != 5 {
		t.Errorf("End = %v, want 5", got)
	}
	if got := el.SourceTime(1); got != 3 {
		t.Errorf("SourceTime(1) = %v, want 3", got)
	}
	if got := el.SourceTime(100); got != 7 {
		t.Errorf("SourceTime(100) = %v, want clamp to 7", got)
	}
	if got := el.SourceTime(-4); got != 2 {
		t.Errorf("SourceTime(-4) = %v, want clamp to 2", got)
	}
}

func TestTrackKindCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		track   TrackKind
		el      Element
		wantErr bool
	}{
		{"text on text", TrackText, NewText("hi"), false},
		{"text on media", TrackMedia, NewText("hi"), true},
		{"text on audio", TrackAudio, NewText("hi"), true},
		{"video on media", TrackMedia, NewMedia("clip", "c", 10), false},
		{"video on text", TrackText, NewMedia("clip", "c", 10), true},
		{"video on audio", TrackAudio, NewMedia("clip", "c", 10), true},
		{"audio on audio", TrackAudio, NewMedia("song", "s", 30), false},
		{"audio on media", TrackMedia, NewMedia("song", "s", 30), false},
		{"image on audio", TrackAudio, NewMedia("logo", "l", 5), true},
		{"image on media", TrackMedia, NewMedia("logo", "l", 5), false},
		{"unknown media", TrackMedia, NewMedia("ghost", "g", 5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t)
			tr := mustTrack(t, m, tt.track)
			before := m.Snapshot()

			_, err := m.AddElement(tr, tt.el)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddElement error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, errors.ErrCodeTimeline) {
					t.Errorf("code = %v, want TIMELINE", errors.GetCode(err))
				}
				if !reflect.DeepEqual(before, m.Snapshot()) {
					t.Error("rejected add changed the model")
				}
			}
		})
	}
}

func TestMoveRejectsIncompatibleTrack(t *testing.T) {
	m := newTestModel(t)
	media := mustTrack(t, m, TrackMedia)
	text := mustTrack(t, m, TrackText)
	audio := mustTrack(t, m, TrackAudio)
	video := mustAdd(t, m, media, clip(0, 0, 0))
	caption := mustAdd(t, m, text, NewText("hello"))

	for _, tc := range []struct{ el, to string }{{video, text}, {video, audio}, {caption, media}} {
		before := m.Snapshot()
		if err := m.MoveElement(tc.el, 1, tc.to); !errors.Is(err, errors.ErrCodeTimeline) {
			t.Errorf("MoveElement(%s -> %s) = %v, want TIMELINE error", tc.el, tc.to, err)
		}
		if !reflect.DeepEqual(before, m.Snapshot()) {
			t.Errorf("rejected move of %s changed the model", tc.el)
		}
	}

	// Same-kind moves are fine.
	other := mustTrack(t, m, TrackMedia)
	if err := m.MoveElement(video, 2, other); err != nil {
		t.Fatalf("MoveElement to media track: %v", err)
	}
	if _, tr, _ := m.Element(video); tr != other {
		t.Errorf("element on track %s, want %s", tr, other)
	}
}

func TestTotalDuration(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackMedia)
	text := mustTrack(t, m, TrackText)

	if got := m.TotalDuration(); got != 0 {
		t.Fatalf("empty TotalDuration = %v", got)
	}

	a := mustAdd(t, m, tr, clip(0, 2, 3)) // ends at 5
	assertTotal(t, m, 5)

	caption := NewText("hi")
	caption.StartTime = 4 // ends at 9
	b := mustAdd(t, m, text, caption)
	assertTotal(t, m, 9)

	if err := m.MoveElement(a, 6, ""); err != nil { // ends at 11
		t.Fatal(err)
	}
	assertTotal(t, m, 11)

	if err := m.UpdateTrim(a, 2, 5); err != nil { // ends at 9
		t.Fatal(err)
	}
	assertTotal(t, m, 9)

	if err := m.RemoveElement(b); err != nil {
		t.Fatal(err)
	}
	assertTotal(t, m, 9)

	if err := m.UpdateTrim(a, 0, 0); err != nil { // ends at 16
		t.Fatal(err)
	}
	assertTotal(t, m, 16)

	if err := m.RemoveElement(a); err != nil {
		t.Fatal(err)
	}
	assertTotal(t, m, 0)
}

func assertTotal(t *testing.T, m *Model, want float64) {
	t.Helper()
	if got := m.TotalDuration(); math.Abs(got-want) > 1e-9 {
		t.Errorf("TotalDuration = %v, want %v", got, want)
	}
	// The snapshot computes the same value independently.
	s := m.Snapshot()
	end := 0.0
	for _, p := range s.Elements() {
		end = math.Max(end, p.Element.Common().StartTime+p.Element.Common().EffectiveDuration())
	}
	if math.Abs(end-want) > 1e-9 {
		t.Errorf("max(start+effective) = %v, want %v", end, want)
	}
}

func TestUpdateTrimInvariants(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(0, 0, 0))

	tests := []struct {
		name      string
		trimStart float64
		trimEnd   float64
		wantErr   bool
	}{
		{"valid", 2, 3, false},
		{"negative start", -0.5, 0, true},
		{"negative end", 0, -0.1, true},
		{"exceeds duration", 6, 5, true},
		{"leaves less than a frame", 5, 4.99, true},
		{"leaves exactly a frame", 5, 5 - 1.0/30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.Snapshot()
			err := m.UpdateTrim(id, tt.trimStart, tt.trimEnd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateTrim error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !reflect.DeepEqual(before, m.Snapshot()) {
				t.Error("rejected trim changed the model")
			}
			assertInvariants(t, m.Snapshot())
		})
	}
}

func assertInvariants(t *testing.T, s *Snapshot) {
	t.Helper()
	for _, p := range s.Elements() {
		b := p.Element.Common()
		if b.TrimStart < 0 || b.TrimEnd < 0 {
			t.Errorf("%s: negative trim %v/%v", b.ID, b.TrimStart, b.TrimEnd)
		}
		if b.TrimStart+b.TrimEnd > b.Duration+1e-9 {
			t.Errorf("%s: trims exceed duration", b.ID)
		}
		if b.EffectiveDuration() < s.FrameEpsilon()-1e-9 {
			t.Errorf("%s: effective %v below one frame", b.ID, b.EffectiveDuration())
		}
		if b.StartTime < 0 {
			t.Errorf("%s: negative start", b.ID)
		}
	}
}

func TestUpdateDuration(t *testing.T) {
	m := newTestModel(t)
	media := mustTrack(t, m, TrackMedia)
	text := mustTrack(t, m, TrackText)
	video := mustAdd(t, m, media, clip(0, 0, 0))
	logo := mustAdd(t, m, media, NewMedia("logo", "logo", 5))
	caption := mustAdd(t, m, text, NewText("hi"))

	if err := m.UpdateDuration(video, 12); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("video UpdateDuration = %v, want TIMELINE error", err)
	}
	if err := m.UpdateDuration(logo, 20); err != nil {
		t.Errorf("image UpdateDuration: %v", err)
	}
	if err := m.UpdateDuration(caption, 8); err != nil {
		t.Errorf("text UpdateDuration: %v", err)
	}
	el, _, _ := m.Element(caption)
	if el.Common().Duration != 8 {
		t.Errorf("text duration = %v, want 8", el.Common().Duration)
	}
}

func TestTrackOrderingAndMain(t *testing.T) {
	m := newTestModel(t)
	audio := mustTrack(t, m, TrackAudio)
	media := mustTrack(t, m, TrackMedia)
	text := mustTrack(t, m, TrackText)

	s := m.Snapshot()
	got := []string{s.Tracks[0].ID, s.Tracks[1].ID, s.Tracks[2].ID}
	want := []string{text, media, audio}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("track order = %v, want %v", got, want)
	}

	if err := m.SetMainTrack(media); err != nil {
		t.Fatalf("SetMainTrack(media): %v", err)
	}
	if err := m.SetMainTrack(text); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("SetMainTrack(text) = %v, want TIMELINE error", err)
	}
	second := mustTrack(t, m, TrackMedia)
	if err := m.SetMainTrack(second); err != nil {
		t.Fatal(err)
	}
	mains := 0
	for _, tr := range m.Snapshot().Tracks {
		if tr.IsMain {
			mains++
		}
	}
	if mains != 1 {
		t.Errorf("main tracks = %d, want 1", mains)
	}

	bad := m.Snapshot()
	bad.Tracks[0].IsMain, bad.Tracks[1].IsMain = true, true
	bad.Tracks[0].Kind, bad.Tracks[1].Kind = TrackMedia, TrackMedia
	if err := m.Load(bad); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("Load with two main tracks = %v, want TIMELINE error", err)
	}
}

func TestObservers(t *testing.T) {
	m := newTestModel(t)
	var changes []Change
	unsubscribe := m.Subscribe(func(c Change) {
		// Observers may read the model.
		_ = m.TotalDuration()
		changes = append(changes, c)
	})

	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(0, 0, 0))
	_ = m.UpdateTrim(id, -1, 0) // rejected, no notification

	want := []Change{
		{Kind: ChangeTrackAdded, TrackID: tr},
		{Kind: ChangeElementAdded, TrackID: tr, ElementID: id},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %+v, want %+v", changes, want)
	}

	unsubscribe()
	_ = m.RemoveElement(id)
	if len(changes) != 2 {
		t.Errorf("observer called after unsubscribe")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(0, 0, 0))

	s := m.Snapshot()
	s.Tracks[0].Elements[0].Common().TrimStart = 9.9

	el, _, _ := m.Element(id)
	if el.Common().TrimStart != 0 {
		t.Error("mutating a snapshot leaked into the model")
	}
}

func TestActiveAt(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackMedia)
	a := mustAdd(t, m, tr, clip(0, 0, 5)) // [0,5)
	b := mustAdd(t, m, tr, clip(5, 0, 8)) // [5,7)
	_ = mustAdd(t, m, tr, clip(10, 0, 9)) // [10,11)

	tests := []struct {
		t    float64
		want []string
	}{
		{0, []string{a}},
		{4.99, []string{a}},
		{5, []string{b}},
		{7, nil},
		{8, nil},
	}
	for _, tt := range tests {
		var got []string
		for _, p := range m.ActiveAt(tt.t) {
			got = append(got, p.Element.Common().ID)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ActiveAt(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestSplitElement(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(1, 2, 3)) // [1,6), source [2,7]

	right, err := m.SplitElement(id, 4)
	if err != nil {
		t.Fatalf("SplitElement: %v", err)
	}

	l, _, _ := m.Element(id)
	r, _, _ := m.Element(right)
	lb, rb := l.Common(), r.Common()
	if lb.End() != 4 || lb.TrimEnd != 5 {
		t.Errorf("left = %+v", *lb)
	}
	if rb.StartTime != 4 || rb.TrimStart != 5 || rb.End() != 6 {
		t.Errorf("right = %+v", *rb)
	}
	assertTotal(t, m, 6)

	if _, err := m.SplitElement(id, 1.01); err == nil {
		t.Error("split leaving less than a frame should fail")
	}
}

func TestAddFromDrop(t *testing.T) {
	m := newTestModel(t)

	videoID, err := m.AddFromDrop(DropPayload{Kind: DropMedia, ID: "clip"}, "", 2)
	if err != nil {
		t.Fatalf("drop video: %v", err)
	}
	songID, err := m.AddFromDrop(DropPayload{Kind: DropMedia, ID: "song", Name: "Theme"}, "", -3)
	if err != nil {
		t.Fatalf("drop audio: %v", err)
	}
	textID, err := m.AddFromDrop(DropPayload{Kind: DropText, Name: "Title"}, "", 0)
	if err != nil {
		t.Fatalf("drop text: %v", err)
	}

	s := m.Snapshot()
	if len(s.Tracks) != 3 {
		t.Fatalf("tracks = %d, want 3", len(s.Tracks))
	}
	if s.Tracks[0].Kind != TrackText || s.Tracks[1].Kind != TrackMedia || s.Tracks[2].Kind != TrackAudio {
		t.Errorf("unexpected track kinds %s/%s/%s", s.Tracks[0].Kind, s.Tracks[1].Kind, s.Tracks[2].Kind)
	}
	if !s.Tracks[1].IsMain {
		t.Error("first media track should become main")
	}

	video, _, _ := s.Find(videoID)
	if video.Common().StartTime != 2 || video.Common().Duration != 10 || video.Common().Name != "clip.mp4" {
		t.Errorf("video element = %+v", *video.Common())
	}
	song, _, _ := s.Find(songID)
	if song.Common().StartTime != 0 || song.Common().Name != "Theme" {
		t.Errorf("song element = %+v", *song.Common())
	}
	text, _, _ := s.Find(textID)
	if te, ok := text.(*TextElement); !ok || te.Content != "Title" {
		t.Errorf("text element = %#v", text)
	}

	// A second video lands on the existing main track.
	if _, err := m.AddFromDrop(DropPayload{Kind: DropMedia, ID: "logo"}, "", 0); err != nil {
		t.Fatal(err)
	}
	if got := len(m.Snapshot().Tracks); got != 3 {
		t.Errorf("tracks = %d, want 3", got)
	}

	if _, err := m.AddFromDrop(DropPayload{Kind: DropMedia, ID: "missing"}, "", 0); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("drop of missing media = %v, want TIMELINE error", err)
	}
	if _, err := m.AddFromDrop(DropPayload{Kind: DropMedia, ID: "clip"}, s.Tracks[0].ID, 0); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("drop video on text track = %v, want TIMELINE error", err)
	}
}

func TestMediaRemovalGuard(t *testing.T) {
	lib := testLibrary()
	m := NewModel(Options{Media: lib})
	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(0, 0, 0))

	if err := lib.Remove("clip", m); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Fatalf("Remove referenced media = %v, want TIMELINE error", err)
	}

	n, err := lib.RemoveOrphaning("clip", m)
	if err != nil || n != 1 {
		t.Fatalf("RemoveOrphaning = %d, %v", n, err)
	}
	el, _, _ := m.Element(id)
	if !el.(*MediaElement).Orphaned {
		t.Error("element not flagged as orphaned")
	}
	if refs := m.MediaReferences("clip"); len(refs) != 0 {
		t.Errorf("orphaned elements still reported as references: %v", refs)
	}

	// The rest of the timeline stays editable.
	if err := m.UpdateTrim(id, 1, 1); err != nil {
		t.Errorf("UpdateTrim on orphaned element: %v", err)
	}
}

func TestOrphanMediaCountsCommittedElements(t *testing.T) {
	m := NewModel(Options{Media: testLibrary()})
	tr := mustTrack(t, m, TrackMedia)
	id := mustAdd(t, m, tr, clip(0, 0, 0))

	if n := m.OrphanMedia("song"); n != 0 {
		t.Errorf("OrphanMedia(unused) = %d, want 0", n)
	}

	// A state that no longer validates makes the orphaning mutation fail.
	m.mu.Lock()
	m.state.Tracks[0].Volume = -1
	m.mu.Unlock()
	if n := m.OrphanMedia("clip"); n != 0 {
		t.Errorf("OrphanMedia on rejected mutation = %d, want 0", n)
	}
	if el, _, _ := m.Element(id); el.(*MediaElement).Orphaned {
		t.Error("rejected mutation flagged the element")
	}

	m.mu.Lock()
	m.state.Tracks[0].Volume = 1
	m.mu.Unlock()
	if n := m.OrphanMedia("clip"); n != 1 {
		t.Errorf("OrphanMedia = %d, want 1", n)
	}
}

func TestUpdateText(t *testing.T) {
	m := newTestModel(t)
	tr := mustTrack(t, m, TrackText)
	id := mustAdd(t, m, tr, NewText("hi"))

	err := m.UpdateText(id, func(e *TextElement) {
		e.Content = "bye"
		e.Opacity = 0.5
		e.Duration = 99 // timing is not editable here
	})
	if err != nil {
		t.Fatal(err)
	}
	el, _, _ := m.Element(id)
	te := el.(*TextElement)
	if te.Content != "bye" || te.Opacity != 0.5 || te.Duration != DefaultTextDuration {
		t.Errorf("text = %+v", te)
	}

	if err := m.UpdateText(id, func(e *TextElement) { e.Color = "red" }); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("invalid color = %v, want TIMELINE error", err)
	}
	if err := m.SetVolumePan(id, 1, 0); !errors.Is(err, errors.ErrCodeTimeline) {
		t.Errorf("SetVolumePan on text = %v, want TIMELINE error", err)
	}
}
