package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache.Get should always return a nil miss")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ = c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "nested", "cache"))
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()

	payload := []byte{0, 1, 2, 3, 0xff}
	if err := c.Set(ctx, "audio:a", payload, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, hit, err := c.Get(ctx, "audio:a")
	if err != nil || !hit {
		t.Fatalf("Get = hit %v err %v, want hit", hit, err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %v, want %v", got, payload)
	}

	if err := c.Delete(ctx, "audio:a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "audio:a"); hit {
		t.Error("entry still present after Delete")
	}
	if err := c.Delete(ctx, "audio:a"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry returned as hit")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry file not removed")
	}
}

func TestFileCacheTruncatedEntry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path := c.path("broken")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{1, 2}, 0644); err != nil {
		t.Fatal(err)
	}

	if _, hit, err := c.Get(ctx, "broken"); hit || err != nil {
		t.Errorf("Get = hit %v err %v, want clean miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 0 {
		t.Errorf("Clear left %d entries", len(entries))
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}

	j1, err := HashJSON(map[string]int{"fps": 30})
	if err != nil {
		t.Fatal(err)
	}
	j2, _ := HashJSON(map[string]int{"fps": 60})
	if j1 == j2 {
		t.Error("HashJSON should differ for different values")
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	a1 := k.AudioKey("m1", "file:///a.wav", 48000, 2)
	a2 := k.AudioKey("m1", "file:///a.wav", 44100, 2)
	if a1 == a2 {
		t.Error("sample rate should be part of the audio key")
	}
	if !strings.HasPrefix(a1, "audio:") {
		t.Errorf("AudioKey = %q, want audio: prefix", a1)
	}

	if k.ProbeKey("a.mp4") == k.ProbeKey("b.mp4") {
		t.Error("ProbeKey should depend on the url")
	}
	if k.FrameKey("a.mp4", 1, 640, 360) == k.FrameKey("a.mp4", 2, 640, 360) {
		t.Error("FrameKey should depend on the frame")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "project:trailer:")

	key := scoped.ProbeKey("clip.mp4")
	if !strings.HasPrefix(key, "project:trailer:probe:") {
		t.Errorf("ScopedKeyer ProbeKey should be prefixed: %s", key)
	}

	// nil inner falls back to the default layout
	bare := NewScopedKeyer(nil, "p:")
	if got, want := bare.AudioKey("m", "u", 1, 1), "p:"+NewDefaultKeyer().AudioKey("m", "u", 1, 1); got != want {
		t.Errorf("AudioKey = %q, want %q", got, want)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("FRAMECUT_TEST_REDIS")
	if addr == "" {
		t.Skip("FRAMECUT_TEST_REDIS not set")
	}

	ctx := context.Background()
	c, err := NewRedisCache(ctx, RedisOptions{Addr: addr, Prefix: "framecut-test:"})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(got) != "v" {
		t.Errorf("Get = %q hit %v err %v", got, hit, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("entry present after Delete")
	}
}

func TestRetry(t *testing.T) {
	transient := &RetryableError{Err: fmt.Errorf("connection refused")}
	fatal := fmt.Errorf("auth failed")

	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"success first try", []error{nil}, 3, 1, nil},
		{"recovers", []error{transient, transient, nil}, 3, 3, nil},
		{"gives up", []error{transient, transient, transient}, 3, 3, transient},
		{"not retryable", []error{fatal, nil}, 3, 1, fatal},
		{"zero attempts runs once", []error{transient}, 0, 1, transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.attempts, time.Millisecond, func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			if err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, time.Hour, func() error {
		return &RetryableError{Err: fmt.Errorf("down")}
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
