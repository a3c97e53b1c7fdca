package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/framecut/framecut/pkg/project"
)

// infoCommand creates the info command that summarizes a project.
func (c *CLI) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info [project]",
		Short: "Summarize a project's settings, media and tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spinner := newSpinnerWithContext(cmd.Context(), "Loading project...")
			spinner.Start()
			ws, err := c.open(cmd.Context(), args[0])
			spinner.Stop()
			if err != nil {
				return err
			}
			defer ws.Close()

			printProject(ws.project)
			printNextStep("Preview it", "preview", args[0])
			return nil
		},
	}
}

func printProject(p *project.Project) {
	s := p.Settings
	snap := p.Model.Snapshot()

	fmt.Println(StyleTitle.Render(p.Path))
	elements := 0
	for _, tr := range snap.Tracks {
		elements += len(tr.Elements)
	}
	printTimelineStats(len(snap.Tracks), elements, snap.TotalDuration(), snap.FPS)
	fmt.Println()

	printKeyValue("canvas", fmt.Sprintf("%dx%d @ %s fps", s.Width, s.Height, strconv.FormatFloat(s.FPS, 'f', -1, 64)))
	printKeyValue("audio", fmt.Sprintf("%d Hz", s.SampleRate))
	printKeyValue("background", s.Background)
	fmt.Println()

	for _, it := range p.Library.Items() {
		printKeyValue(string(it.Kind), it.ID)
		printDetail("%s  %.2fs", it.URL, it.Duration)
	}
	fmt.Println()

	for _, tr := range snap.Tracks {
		name := tr.Name
		if tr.IsMain {
			name += " (main)"
		}
		if tr.Muted {
			name += " (muted)"
		}
		printKeyValue(string(tr.Kind), name)
		for _, el := range tr.Elements {
			b := el.Common()
			printDetail("%-20s %s %s %s  trim %.2f/%.2f",
				truncateName(b.Name, 20),
				formatTimecode(b.StartTime, snap.FPS), iconArrow,
				formatTimecode(b.End(), snap.FPS),
				b.TrimStart, b.TrimEnd)
		}
	}
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
