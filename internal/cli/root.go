package cli

import (
	"github.com/spf13/cobra"

	"github.com/framecut/framecut/pkg/buildinfo"
)

// RootCommand creates the root cobra command with all subcommands registered.
//
// The persistent pre-run loads the configuration (--config, else the XDG
// location), applies flag overrides and attaches the logger to the command
// context, so every subcommand sees a ready CLI.
func (c *CLI) RootCommand() *cobra.Command {
	var ffmpeg, ffprobe, redisAddr string

	root := &cobra.Command{
		Use:           appName,
		Short:         "framecut edits and renders multi-track video timelines",
		Long:          `framecut is a non-linear video editor core: it composes media clips and text overlays from a project file into frames, mixes their audio and encodes the result.`,
		Version:       buildinfo.Resolved(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, explicit := c.configFile, c.configFile != ""
			if !explicit {
				path, _ = configPath()
			}
			cfg, err := loadConfig(path, explicit)
			if err != nil {
				return err
			}
			if ffmpeg != "" {
				cfg.FFmpeg = ffmpeg
			}
			if ffprobe != "" {
				cfg.FFprobe = ffprobe
			}
			if redisAddr != "" {
				cfg.Redis.Addr = redisAddr
			}
			c.Config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/framecut/config.toml)")
	flags.StringVar(&ffmpeg, "ffmpeg", "", "ffmpeg binary (overrides config and "+envFFmpeg+")")
	flags.StringVar(&ffprobe, "ffprobe", "", "ffprobe binary (overrides config and "+envFFprobe+")")
	flags.StringVar(&redisAddr, "redis", "", "redis address for a shared decode cache")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the decode cache")

	// Register all subcommands
	root.AddCommand(c.infoCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.frameCommand())
	root.AddCommand(c.sceneCommand())
	root.AddCommand(c.trimCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
