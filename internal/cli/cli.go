// Package cli implements the framecut command-line interface.
//
// Commands operate on a project file (see package project). The main
// commands are:
//   - info: Summarize a project's settings, media and tracks
//   - export: Render a project to a video, GIF or WAV file
//   - frame: Write a single composited frame as PNG
//   - scene: Print the composition tree as DOT or SVG
//   - trim: Change an element's trims and save the project
//   - preview: Interactive terminal playback
//   - serve: Expose the editor over HTTP
//   - cache: Manage the decode cache
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/editor"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/project"
	"github.com/framecut/framecut/pkg/scene"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "framecut"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config *Config

	// Flags shared by every command.
	configFile string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: &Config{},
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// =============================================================================
// Factories
// =============================================================================

// newCache opens the configured cache: redis when an address is set, else
// the XDG file cache. Failures degrade to no caching.
func (c *CLI) newCache(ctx context.Context) cache.Cache {
	if c.noCache {
		return cache.NewNullCache()
	}
	if c.Config.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
			Prefix:   c.Config.Redis.Prefix,
		})
		if err == nil {
			c.Logger.Debug("using redis cache", "addr", c.Config.Redis.Addr)
			if ttl := c.Config.Redis.TTL.Duration; ttl > 0 {
				return &cappedTTL{Cache: rc, max: ttl}
			}
			return rc
		}
		c.Logger.Warn("redis unavailable, falling back to file cache", "error", err)
	}
	dir := c.Config.CacheDir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache()
		}
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		c.Logger.Warn("file cache unavailable", "dir", dir, "error", err)
		return cache.NewNullCache()
	}
	return fc
}

// cappedTTL shortens entry lifetimes to at most max.
type cappedTTL struct {
	cache.Cache
	max time.Duration
}

func (c *cappedTTL) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.max {
		ttl = c.max
	}
	return c.Cache.Set(ctx, key, data, ttl)
}

// workspace is an opened project with its editor.
type workspace struct {
	project *project.Project
	editor  *editor.Editor
	cache   cache.Cache
	sources scene.FrameSource
}

func (w *workspace) Close() {
	w.editor.Close()
	w.cache.Close()
}

// open loads the project at path and builds an editor around it.
func (c *CLI) open(ctx context.Context, path string) (*workspace, error) {
	store := c.newCache(ctx)
	prober := media.NewProber(c.Config.FFprobe, store, c.Logger)

	p, err := project.Load(ctx, path, project.Options{Prober: prober, Logger: c.Logger})
	if err != nil {
		store.Close()
		return nil, err
	}
	sources := scene.DefaultSources(c.Config.FFmpeg, store)
	ed := editor.New(p, editor.Options{
		FFmpegPath: c.Config.FFmpeg,
		Cache:      store,
		Sources:    sources,
		Snap:       c.Config.Snap,
		Logger:     c.Logger,
	})
	return &workspace{project: p, editor: ed, cache: store, sources: sources}, nil
}
