package cli

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/scene"
)

// frameCommand creates the frame command that writes one composited frame.
func (c *CLI) frameCommand() *cobra.Command {
	var output string
	var at float64

	cmd := &cobra.Command{
		Use:   "frame [project]",
		Short: "Write the frame at a given time as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".png"
			}
			return c.runFrame(cmd.Context(), args[0], at, output)
		},
	}

	cmd.Flags().Float64VarP(&at, "time", "t", 0, "timeline time in seconds")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG (default: project name with .png)")

	return cmd
}

func (c *CLI) runFrame(ctx context.Context, path string, t float64, output string) error {
	ws, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer ws.Close()

	sc, err := ws.editor.Scene()
	if err != nil {
		return err
	}
	// Previews fall back to the last good frame; a one-off frame must not.
	img, err := scene.NewRenderer(ws.sources, c.Logger).RenderTime(ctx, sc, t)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return errors.Render(err, "encode png")
	}
	if err := writeOutput(output, buf.Bytes()); err != nil {
		return err
	}
	printSuccess("Frame %d at %s", sc.FrameAt(t), formatTimecode(t, sc.FPS))
	printFile(output)
	return nil
}

// sceneCommand creates the scene command that prints the composition tree.
func (c *CLI) sceneCommand() *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "scene [project]",
		Short: "Print the composition tree as DOT or SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "dot", "svg":
			default:
				return fmt.Errorf("invalid format: %s (must be 'dot' or 'svg')", format)
			}
			return c.runScene(cmd.Context(), args[0], format, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "output format: dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func (c *CLI) runScene(ctx context.Context, path, format, output string) error {
	ws, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer ws.Close()

	sc, err := ws.editor.Scene()
	if err != nil {
		return err
	}
	data := []byte(scene.ToDOT(sc))
	if format == "svg" {
		spinner := newSpinnerWithContext(ctx, "Laying out scene graph...")
		spinner.Start()
		data, err = scene.RenderSVG(string(data))
		spinner.Stop()
		if err != nil {
			return errors.Render(err, "render scene graph")
		}
	}
	if output == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := writeOutput(output, data); err != nil {
		return err
	}
	printFile(output)
	return nil
}

// writeOutput writes data to path, creating parent directories.
func writeOutput(path string, data []byte) error {
	if err := errors.ValidateOutputPath(path); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
