package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// trimCommand creates the trim command. Trims are validated against the
// element's source length; an invalid trim leaves the project untouched.
func (c *CLI) trimCommand() *cobra.Command {
	var trimStart, trimEnd float64
	var output string

	cmd := &cobra.Command{
		Use:   "trim [project] [element]",
		Short: "Set an element's trims and save the project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("start") && !flags.Changed("end") {
				return fmt.Errorf("nothing to do: pass --start and/or --end")
			}
			return c.runTrim(cmd.Context(), args[0], args[1], trimOpts{
				start:    trimStart,
				end:      trimEnd,
				setStart: flags.Changed("start"),
				setEnd:   flags.Changed("end"),
				output:   output,
			})
		},
	}

	cmd.Flags().Float64Var(&trimStart, "start", 0, "seconds cut from the beginning of the source")
	cmd.Flags().Float64Var(&trimEnd, "end", 0, "seconds cut from the end of the source")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the project here instead of in place")

	return cmd
}

type trimOpts struct {
	start, end       float64
	setStart, setEnd bool
	output           string
}

func (c *CLI) runTrim(ctx context.Context, path, id string, opts trimOpts) error {
	ws, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer ws.Close()

	el, _, ok := ws.project.Model.Element(id)
	if !ok {
		return fmt.Errorf("element %q not found in %s", id, path)
	}
	b := el.Common()
	start, end := b.TrimStart, b.TrimEnd
	if opts.setStart {
		start = opts.start
	}
	if opts.setEnd {
		end = opts.end
	}
	if err := ws.editor.Trim(id, start, end); err != nil {
		return err
	}

	out := opts.output
	if out == "" {
		out = path
	}
	if err := ws.project.Save(out); err != nil {
		return err
	}
	el, _, _ = ws.project.Model.Element(id)
	b = el.Common()
	printSuccess("Trimmed %s to %.3fs", b.Name, b.EffectiveDuration())
	printDetail("timeline now %s", formatTimecode(ws.editor.TotalDuration(), ws.project.Settings.FPS))
	printFile(out)
	printNextStep("Render it", "export", out)
	return nil
}
