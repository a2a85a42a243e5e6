// Package cache keeps the most recent dataset read per file pattern so API
// reads do not hit the disk on every request. One Cache is built at start-up
// and passed to whatever needs it.
package cache

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
)

// Entry is one cached latest-file read.
type Entry struct {
	Path   string                   `json:"path"`
	Result *models.NormalizedResult `json:"result"`
}

// Backend stores entries with an expiry. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Loader produces the entry for a pattern on a miss.
type Loader func(ctx context.Context, pattern string) (path string, result *models.NormalizedResult, err error)

// Cache is a TTL cache keyed by dataset file pattern.
type Cache struct {
	backend Backend
	ttl     time.Duration
}

// New wraps backend with the given TTL. A non-positive TTL disables caching.
func New(backend Backend, ttl time.Duration) *Cache {
	return &Cache{backend: backend, ttl: ttl}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the live entry for pattern. Backend errors count as a miss.
func (c *Cache) Get(ctx context.Context, pattern string) (*Entry, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	e, ok, err := c.backend.Get(ctx, pattern)
	if err != nil {
		slog.Warn("cache get failed", "pattern", pattern, "error", err)
		return nil, false
	}
	return e, ok
}

// Set stores e for pattern.
func (c *Cache) Set(ctx context.Context, pattern string, e *Entry) {
	if c.ttl <= 0 || e == nil {
		return
	}
	if err := c.backend.Set(ctx, pattern, e, c.ttl); err != nil {
		slog.Warn("cache set failed", "pattern", pattern, "error", err)
	}
}

// Invalidate drops the entry for pattern.
func (c *Cache) Invalidate(ctx context.Context, pattern string) {
	if err := c.backend.Delete(ctx, pattern); err != nil {
		slog.Warn("cache invalidate failed", "pattern", pattern, "error", err)
	}
}

// InvalidateAll drops every entry. It runs after a successful re-scrape.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if err := c.backend.Clear(ctx); err != nil {
		slog.Warn("cache clear failed", "error", err)
		return
	}
	slog.Debug("cache cleared")
}

// GetOrLoad returns the cached entry for pattern or fills it from load.
// Load errors are returned as is and nothing is cached.
func (c *Cache) GetOrLoad(ctx context.Context, pattern string, load Loader) (*Entry, error) {
	if e, ok := c.Get(ctx, pattern); ok {
		return e, nil
	}
	path, result, err := load(ctx, pattern)
	if err != nil {
		return nil, err
	}
	e := &Entry{Path: path, Result: result}
	c.Set(ctx, pattern, e)
	return e, nil
}

// sweepInterval is how often the memory backend drops expired entries.
const sweepInterval = 5 * time.Minute

// FromConfig builds the cache described by cfg: redis when a URL is set,
// memory otherwise. The closer releases the backend.
func FromConfig(cfg config.CacheConfig) (*Cache, io.Closer, error) {
	if cfg.RedisURL != "" {
		r, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return New(r, cfg.TTL), r, nil
	}
	m := NewMemory(cfg.MaxEntries, sweepInterval)
	return New(m, cfg.TTL), m, nil
}
