package audio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
)

// DefaultBufferTTL is how long decoded PCM stays in a persistent cache.
const DefaultBufferTTL = 7 * 24 * time.Hour

// BufferCache decodes each source once per sample rate. Concurrent requests
// for the same source share one decode. Decoded buffers are kept in memory
// and, when a backing cache is set, persisted there too.
type BufferCache struct {
	decoder Decoder
	store   cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	logger  *log.Logger

	group singleflight.Group

	mu  sync.RWMutex
	mem map[string]*Buffer
}

// NewBufferCache wraps decoder. store may be nil for memory-only caching.
func NewBufferCache(decoder Decoder, store cache.Cache, keyer cache.Keyer, logger *log.Logger) *BufferCache {
	if store == nil {
		store = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &BufferCache{
		decoder: decoder,
		store:   store,
		keyer:   keyer,
		ttl:     DefaultBufferTTL,
		logger:  logger,
		mem:     make(map[string]*Buffer),
	}
}

// Get returns the decoded buffer for item at sampleRate. The returned buffer
// is shared and must not be modified.
func (c *BufferCache) Get(ctx context.Context, item media.Item, sampleRate int) (*Buffer, error) {
	key := c.keyer.AudioKey(item.ID, item.URL, sampleRate, Channels)

	c.mu.RLock()
	b, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		b, ok := c.mem[key]
		c.mu.RUnlock()
		if ok {
			return b, nil
		}
		if b := c.load(ctx, key); b != nil {
			c.remember(key, b)
			return b, nil
		}

		start := time.Now()
		b, err := c.decoder.Decode(ctx, item, sampleRate)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("decoded audio", "media", item.ID, "frames", b.Frames(), "elapsed", time.Since(start))
		c.remember(key, b)
		c.persist(ctx, key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Buffer), nil
}

// Len returns the number of buffers held in memory.
func (c *BufferCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}

func (c *BufferCache) remember(key string, b *Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem[key] = b
}

func (c *BufferCache) load(ctx context.Context, key string) *Buffer {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Debug("audio cache read failed", "error", err)
		return nil
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, "audio")
		return nil
	}
	var b Buffer
	if err := b.UnmarshalBinary(data); err != nil {
		c.logger.Debug("audio cache entry corrupt", "error", err)
		return nil
	}
	observability.Cache().OnCacheHit(ctx, "audio")
	return &b
}

func (c *BufferCache) persist(ctx context.Context, key string, b *Buffer) {
	data, err := b.MarshalBinary()
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Debug("audio cache write failed", "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "audio", len(data))
}
