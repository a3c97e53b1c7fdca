package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/framecut/framecut/pkg/editor"
	"github.com/framecut/framecut/pkg/timeline"
)

// List styles
var (
	rowActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	rowIdleStyle   = lipgloss.NewStyle().Foreground(colorDim)
	keyHelpStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// PreviewModel - Interactive playback
// =============================================================================

// tickMsg drives the playback loop; one is scheduled per display frame.
type tickMsg time.Time

// PreviewModel is the bubbletea model for terminal playback. Each tick
// advances the editor clock by the elapsed wall time, so rendering stays
// one update per display frame however many clock events a tick produces.
type PreviewModel struct {
	Editor   *editor.Editor
	Title    string
	Interval time.Duration
	Width    int

	last time.Time
}

// NewPreviewModel creates a preview for ed ticking at the project frame rate.
func NewPreviewModel(ed *editor.Editor, title string) PreviewModel {
	fps := ed.Model().FPS()
	return PreviewModel{
		Editor:   ed,
		Title:    title,
		Interval: time.Duration(float64(time.Second) / fps),
		Width:    60,
	}
}

func (m PreviewModel) tick() tea.Cmd {
	return tea.Tick(m.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m PreviewModel) Init() tea.Cmd {
	return m.tick()
}

func (m PreviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ed := m.Editor
	switch msg := msg.(type) {
	case tickMsg:
		now := time.Time(msg)
		if !m.last.IsZero() && ed.Playing() {
			ed.Tick(now.Sub(m.last))
		}
		m.last = now
		return m, m.tick()
	case tea.KeyMsg:
		frame := 1 / ed.Model().FPS()
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			ed.Pause()
			return m, tea.Quit
		case " ", "space", "enter":
			if !ed.Playing() && ed.Playhead() >= ed.TotalDuration() {
				ed.Seek(0)
			}
			ed.Toggle()
		case "left", "h":
			ed.Seek(ed.Playhead() - 1)
		case "right", "l":
			ed.Seek(ed.Playhead() + 1)
		case ",":
			ed.Seek(ed.Playhead() - frame)
		case ".":
			ed.Seek(ed.Playhead() + frame)
		case "home", "g":
			ed.Seek(0)
		case "end", "G":
			ed.Seek(ed.TotalDuration())
		case "+", "=":
			_ = ed.SetSpeed(ed.Clock().Speed() * 2)
		case "-":
			_ = ed.SetSpeed(ed.Clock().Speed() / 2)
		}
	case tea.WindowSizeMsg:
		m.Width = max(20, msg.Width-20)
	}
	return m, nil
}

func (m PreviewModel) View() string {
	ed := m.Editor
	fps := ed.Model().FPS()
	t, total := ed.Playhead(), ed.TotalDuration()

	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(keyHelpStyle.Render("space play/pause  ←/→ 1s  ,/. frame  +/- speed  q quit"))
	b.WriteString("\n\n")

	frac := 0.0
	if total > 0 {
		frac = t / total
	}
	state := "paused"
	if ed.Playing() {
		state = "playing"
	}
	fmt.Fprintf(&b, "%s %s / %s  %s ×%.2g\n\n",
		progressBar(frac, m.Width),
		StyleValue.Render(formatTimecode(t, fps)),
		formatTimecode(total, fps),
		StyleDim.Render(state), ed.Clock().Speed())

	b.WriteString(m.tracks(t))
	return b.String()
}

// tracks renders one row per track with the element under the playhead.
func (m PreviewModel) tracks(t float64) string {
	snap := m.Editor.Model().Snapshot()
	rows := make([][]string, 0, len(snap.Tracks))
	active := make([]bool, 0, len(snap.Tracks))
	for _, tr := range snap.Tracks {
		name, span := "—", ""
		el := activeElement(tr, t)
		if el != nil {
			c := el.Common()
			name = truncateName(c.Name, 24)
			span = formatTimecode(c.StartTime, snap.FPS) + " " + iconArrow + " " + formatTimecode(c.End(), snap.FPS)
		}
		rows = append(rows, []string{string(tr.Kind), truncateName(tr.Name, 16), name, span})
		active = append(active, el != nil)
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Kind", "Track", "Element", "Span").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row >= 0 && row < len(active) && active[row] {
				return rowActiveStyle
			}
			return rowIdleStyle
		}).
		Render()
}

func activeElement(tr *timeline.Track, t float64) timeline.Element {
	for _, el := range tr.Elements {
		if el.Common().ActiveAt(t) {
			return el
		}
	}
	return nil
}
