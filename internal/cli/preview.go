package cli

import (
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// previewCommand creates the interactive preview command.
func (c *CLI) previewCommand() *cobra.Command {
	var start float64

	cmd := &cobra.Command{
		Use:   "preview [project]",
		Short: "Play a project's timeline in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer ws.Close()

			ws.editor.Seek(start)
			m := NewPreviewModel(ws.editor, filepath.Base(args[0]))
			_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().Float64VarP(&start, "time", "t", 0, "start position in seconds")

	return cmd
}
