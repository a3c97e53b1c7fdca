package cli

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/framecut/framecut/pkg/editor"
	"github.com/framecut/framecut/pkg/pipeline"
	"github.com/framecut/framecut/pkg/project"
	"github.com/framecut/framecut/pkg/timeline"
)

func newPreviewModel(t *testing.T) PreviewModel {
	t.Helper()
	p, err := project.New(project.Settings{FPS: 10, Width: 16, Height: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	track, err := p.Model.AddTrack(timeline.TrackText, "titles")
	if err != nil {
		t.Fatal(err)
	}
	title := timeline.NewText("Opening")
	title.StartTime = 1
	if _, err := p.Model.AddElement(track, title); err != nil {
		t.Fatal(err)
	}
	ed := editor.New(p, editor.Options{Negotiator: pipeline.NewNegotiator(nil, nil)})
	t.Cleanup(func() { ed.Close() })
	return NewPreviewModel(ed, "demo.toml")
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m PreviewModel, keys ...string) (PreviewModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(PreviewModel)
	}
	return m, cmd
}

func TestPreviewModelInterval(t *testing.T) {
	m := newPreviewModel(t)
	if m.Interval != 100*time.Millisecond {
		t.Errorf("Interval = %v, want one frame at 10 fps", m.Interval)
	}
}

func TestPreviewModelTransport(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		want    float64
		playing bool
	}{
		{"seek forward", []string{"right", "right"}, 2, false},
		{"seek clamps", []string{"right", "right", "right", "right", "right", "right", "right"}, 6, false},
		{"frame step", []string{"right", ".", "."}, 1.2, false},
		{"back to start", []string{"right", "g"}, 0, false},
		{"end", []string{"G"}, 6, false},
		{"play", []string{"right", " "}, 1, true},
		{"play at end restarts", []string{"G", " "}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPreviewModel(t)
			m, _ = press(m, tt.keys...)
			ed := m.Editor
			if got := ed.Playhead(); got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("Playhead = %v, want %v", got, tt.want)
			}
			if ed.Playing() != tt.playing {
				t.Errorf("Playing = %v, want %v", ed.Playing(), tt.playing)
			}
		})
	}
}

func TestPreviewModelTickAdvancesWhilePlaying(t *testing.T) {
	m := newPreviewModel(t)
	start := time.Now()

	// The first tick only records the wall clock.
	next, cmd := m.Update(tickMsg(start))
	m = next.(PreviewModel)
	if cmd == nil {
		t.Fatal("tick did not schedule the next tick")
	}
	m, _ = press(m, " ")
	next, _ = m.Update(tickMsg(start.Add(500 * time.Millisecond)))
	m = next.(PreviewModel)
	if got := m.Editor.Playhead(); got < 0.5-1e-9 || got > 0.5+1e-9 {
		t.Errorf("Playhead after 500ms = %v, want 0.5", got)
	}

	m, _ = press(m, "+")
	if got := m.Editor.Clock().Speed(); got != 2 {
		t.Errorf("speed = %v, want 2", got)
	}
	next, _ = m.Update(tickMsg(start.Add(1000 * time.Millisecond)))
	m = next.(PreviewModel)
	if got := m.Editor.Playhead(); got < 1.5-1e-9 || got > 1.5+1e-9 {
		t.Errorf("Playhead at double speed = %v, want 1.5", got)
	}
}

func TestPreviewModelQuit(t *testing.T) {
	m := newPreviewModel(t)
	m, _ = press(m, " ")
	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if m.Editor.Playing() {
		t.Error("quitting left playback running")
	}
}

func TestPreviewModelView(t *testing.T) {
	m := newPreviewModel(t)
	m, _ = press(m, "right", "right")
	view := m.View()
	for _, want := range []string{"demo.toml", "00:02.00", "00:06.00", "Opening", "paused"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}
