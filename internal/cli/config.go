package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/framecut/framecut/pkg/pipeline"
	"github.com/framecut/framecut/pkg/snap"
)

// Environment variables that override the config file.
const (
	envFFmpeg    = "FRAMECUT_FFMPEG"
	envFFprobe   = "FRAMECUT_FFPROBE"
	envRedisAddr = "FRAMECUT_REDIS_ADDR"
)

// Config is the optional user configuration read from config.toml.
//
//	ffmpeg = "/opt/ffmpeg/bin/ffmpeg"
//	export_format = "webm"
//
//	[redis]
//	addr = "localhost:6379"
//	ttl = "24h"
//
//	[snap]
//	enabled = true
//	threshold = 10
type Config struct {
	FFmpeg       string       `toml:"ffmpeg"`
	FFprobe      string       `toml:"ffprobe"`
	CacheDir     string       `toml:"cache_dir"`
	ExportFormat string       `toml:"export_format"`
	Redis        RedisConfig  `toml:"redis"`
	Snap         snap.Options `toml:"snap"`
}

// RedisConfig selects a shared cache. An empty Addr keeps the file cache.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      Duration `toml:"ttl"`
}

// Duration decodes TOML strings such as "90s" or "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.ExportFormat != "" {
		if err := pipeline.ValidateFormat(c.ExportFormat); err != nil {
			return fmt.Errorf("export_format: %w", err)
		}
	}
	if c.Snap.Threshold < 0 {
		return fmt.Errorf("snap.threshold: must not be negative")
	}
	if c.Redis.TTL.Duration < 0 {
		return fmt.Errorf("redis.ttl: must not be negative")
	}
	return nil
}

// loadConfig reads the config file at path. A missing file yields the zero
// config unless the path was given explicitly. Environment variables are
// applied on top.
func loadConfig(path string, explicit bool) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case err != nil:
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envFFmpeg); v != "" {
		c.FFmpeg = v
	}
	if v := os.Getenv(envFFprobe); v != "" {
		c.FFprobe = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		c.Redis.Addr = v
	}
}

// =============================================================================
// Paths
// =============================================================================

// configPath returns the config file location using XDG standard
// (~/.config/framecut/config.toml).
func configPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/framecut/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
