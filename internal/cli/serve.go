package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/framecut/framecut/internal/api"
)

// serveCommand creates the serve command that exposes a project over HTTP.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	var save bool

	cmd := &cobra.Command{
		Use:   "serve [project]",
		Short: "Serve the editor API for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), args[0], addr, save)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "listen address")
	cmd.Flags().BoolVar(&save, "save", false, "save the project on shutdown")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, path, addr string, save bool) error {
	ws, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	defer ws.Close()

	printInfo("Serving %s", path)
	printKeyValue("address", StyleLink.Render("http://"+addr))
	err = api.New(ws.editor, c.Logger).ListenAndServe(ctx, addr)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if save {
		if err := ws.project.Save(path); err != nil {
			return err
		}
		printSuccess("Saved %s", path)
	}
	return nil
}
