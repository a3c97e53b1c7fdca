package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/pipeline"
)

// exportOpts holds the command-line flags for the export command.
type exportOpts struct {
	output     string
	format     string
	width      int
	height     int
	fps        float64
	sampleRate int
	strict     bool
	quiet      bool
}

// exportCommand creates the export command. Settings left unset come from
// the project. Interrupting the command cancels the export and removes the
// partial file.
func (c *CLI) exportCommand() *cobra.Command {
	var opts exportOpts

	cmd := &cobra.Command{
		Use:   "export [project]",
		Short: "Render a project to mp4, webm, mov, gif or wav",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExport(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: project name with the format's extension)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: mp4, webm, mov, gif, wav (default: from --output, else mp4)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "canvas width (default: project)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "canvas height (default: project)")
	cmd.Flags().Float64Var(&opts.fps, "fps", 0, "frame rate (default: project)")
	cmd.Flags().IntVar(&opts.sampleRate, "sample-rate", 0, "audio sample rate (default: project)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail instead of falling back to GIF when codecs are missing")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")

	return cmd
}

func (c *CLI) runExport(ctx context.Context, path string, opts exportOpts) error {
	logger := loggerFromContext(ctx)

	format := opts.format
	if format == "" && opts.output == "" {
		format = c.Config.ExportFormat
	}
	if format == "" && opts.output == "" {
		format = pipeline.DefaultFormat
	}
	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
	}

	ws, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer ws.Close()

	var bar *Spinner
	if !opts.quiet {
		bar = newSpinnerWithContext(ctx, "Exporting "+filepath.Base(output))
		bar.SetProgress(0)
		bar.Start()
	}

	watch := startStopwatch(logger)
	out, err := ws.editor.Export(ctx, pipeline.Settings{
		Format:     format,
		Path:       output,
		Width:      opts.width,
		Height:     opts.height,
		FPS:        opts.fps,
		SampleRate: opts.sampleRate,
		Strict:     opts.strict,
		Progress: func(st pipeline.Status) {
			if bar != nil {
				bar.SetProgress(st.Progress())
				bar.SetMessage(fmt.Sprintf("frame %d/%d", st.Frame, st.TotalFrames))
			}
		},
	})
	if bar != nil {
		bar.Stop()
	}
	if err != nil {
		if errors.Is(err, errors.ErrCodeCanceled) {
			printWarning("Export canceled")
			return context.Canceled
		}
		printError("%s", errors.UserMessage(err))
		return fmt.Errorf("export %s: %w", path, err)
	}
	watch.done("export finished", "frames", out.Frames, "format", out.Format)

	if out.Fallback {
		printWarning("Requested format has no encoder here, wrote %s instead", out.Format)
	}
	printSuccess("Exported %s", formatTimecode(out.Duration, ws.project.Settings.FPS))
	printFile(out.Path)
	if out.VideoCodec != "" {
		printDetail("%s · %s · %s", out.Format, out.VideoCodec, formatBytes(out.Size))
	} else {
		printDetail("%s · %s", out.Format, formatBytes(out.Size))
	}
	return nil
}

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
