package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{envFFmpeg, envFFprobe, envRedisAddr} {
		t.Setenv(k, "")
	}
	path := writeFile(t, t.TempDir(), "config.toml", `
ffmpeg = "/opt/ffmpeg"
export_format = "webm"

[redis]
addr = "cache:6379"
ttl = "36h"

[snap]
enabled = true
threshold = 12
`)

	cfg, err := loadConfig(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FFmpeg != "/opt/ffmpeg" || cfg.ExportFormat != "webm" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Redis.Addr != "cache:6379" || cfg.Redis.TTL.Duration != 36*time.Hour {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if !cfg.Snap.Enabled || cfg.Snap.Threshold != 12 {
		t.Errorf("snap = %+v", cfg.Snap)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(envFFmpeg, "/env/ffmpeg")
	t.Setenv(envFFprobe, "/env/ffprobe")
	t.Setenv(envRedisAddr, "env:6379")
	path := writeFile(t, t.TempDir(), "config.toml", `ffmpeg = "/file/ffmpeg"`)

	cfg, err := loadConfig(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FFmpeg != "/env/ffmpeg" || cfg.FFprobe != "/env/ffprobe" || cfg.Redis.Addr != "env:6379" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		content  string
		explicit bool
		missing  bool
		wantErr  bool
	}{
		{name: "missing default", missing: true},
		{name: "missing explicit", missing: true, explicit: true, wantErr: true},
		{name: "bad toml", content: `ffmpeg = `, wantErr: true},
		{name: "bad format", content: `export_format = "avi"`, wantErr: true},
		{name: "bad ttl", content: "[redis]\nttl = \"soon\"", wantErr: true},
		{name: "negative threshold", content: "[snap]\nthreshold = -1", wantErr: true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "absent.toml")
			if !tt.missing {
				path = writeFile(t, dir, filepath.Base(t.Name())+".toml", tt.content)
			}
			_, err := loadConfig(path, tt.explicit)
			if (err != nil) != tt.wantErr {
				t.Errorf("case %d: err = %v, wantErr %v", i, err, tt.wantErr)
			}
		})
	}
}

func TestCappedTTL(t *testing.T) {
	rec := &recordingCache{}
	c := &cappedTTL{Cache: rec, max: time.Hour}
	for _, ttl := range []time.Duration{0, time.Minute, 48 * time.Hour} {
		if err := c.Set(t.Context(), "k", nil, ttl); err != nil {
			t.Fatal(err)
		}
	}
	want := []time.Duration{time.Hour, time.Minute, time.Hour}
	for i, got := range rec.ttls {
		if got != want[i] {
			t.Errorf("ttl[%d] = %v, want %v", i, got, want[i])
		}
	}
}
