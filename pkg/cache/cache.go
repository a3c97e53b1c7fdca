// Package cache provides byte-oriented caches for expensive editor work.
//
// Decoding an audio source or probing a media file is far more expensive
// than reading back its result, so the editor keeps those results in a
// [Cache]. Three backends are provided:
//
//   - [FileCache]: sharded files under the user cache directory (CLI default)
//   - [RedisCache]: a shared Redis instance, for render hosts that export
//     the same media repeatedly
//   - [NullCache]: stores nothing (tests, --no-cache)
//
// Keys are derived by a [Keyer] so every backend agrees on their layout.
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with optional expiry.
//
// Get reports a miss as (nil, false, nil); errors are reserved for
// backend failures. A ttl of zero means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
