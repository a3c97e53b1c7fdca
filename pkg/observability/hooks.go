// Package observability provides hooks for metrics and tracing.
//
// The editor core emits events about exports, playback and cache use through
// small hook interfaces. No backend is linked in: a binary that wants
// Prometheus counters or traces registers its own implementation at startup,
// and everything else gets the no-op defaults.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetExportHooks(&myExportHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Export().OnExportStart(ctx, "mp4", totalFrames)
//	// ... render and encode ...
//	observability.Export().OnExportComplete(ctx, "mp4", elapsed, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Export Hooks
// =============================================================================

// ExportHooks receives events from the encode pipeline.
type ExportHooks interface {
	// OnNegotiated records the container/codec pair chosen for a request.
	OnNegotiated(ctx context.Context, requested, container, videoCodec string, fallback bool)

	// OnExportStart records the start of a frame loop.
	OnExportStart(ctx context.Context, format string, totalFrames int)

	// OnFrame records one rendered and encoded frame.
	OnFrame(ctx context.Context, frame int, renderTime time.Duration)

	// OnExportComplete records the terminal state of an export.
	OnExportComplete(ctx context.Context, format string, duration time.Duration, err error)
}

// =============================================================================
// Playback Hooks
// =============================================================================

// PlaybackHooks receives events from the playback synchronizer.
type PlaybackHooks interface {
	// OnSeek records a seek of the timeline clock.
	OnSeek(ctx context.Context, from, to float64)

	// OnDriftCorrection records a renderer reseek because drift exceeded
	// the tolerance.
	OnDriftCorrection(ctx context.Context, elementID string, drift float64)

	// OnFrameSkipped records a preview frame dropped after a render error.
	OnFrameSkipped(ctx context.Context, frame int, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopExportHooks is a no-op implementation of ExportHooks.
type NoopExportHooks struct{}

func (NoopExportHooks) OnNegotiated(context.Context, string, string, string, bool)     {}
func (NoopExportHooks) OnExportStart(context.Context, string, int)                     {}
func (NoopExportHooks) OnFrame(context.Context, int, time.Duration)                    {}
func (NoopExportHooks) OnExportComplete(context.Context, string, time.Duration, error) {}

// NoopPlaybackHooks is a no-op implementation of PlaybackHooks.
type NoopPlaybackHooks struct{}

func (NoopPlaybackHooks) OnSeek(context.Context, float64, float64)           {}
func (NoopPlaybackHooks) OnDriftCorrection(context.Context, string, float64) {}
func (NoopPlaybackHooks) OnFrameSkipped(context.Context, int, error)         {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	exportHooks   ExportHooks   = NoopExportHooks{}
	playbackHooks PlaybackHooks = NoopPlaybackHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	hooksMu       sync.RWMutex
)

// SetExportHooks registers custom export hooks.
// This should be called once at application startup before any export.
func SetExportHooks(h ExportHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		exportHooks = h
	}
}

// SetPlaybackHooks registers custom playback hooks.
func SetPlaybackHooks(h PlaybackHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		playbackHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Export returns the registered export hooks.
func Export() ExportHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return exportHooks
}

// Playback returns the registered playback hooks.
func Playback() PlaybackHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return playbackHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	exportHooks = NoopExportHooks{}
	playbackHooks = NoopPlaybackHooks{}
	cacheHooks = NoopCacheHooks{}
}
