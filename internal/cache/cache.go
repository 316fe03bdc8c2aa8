// Package cache stores rendered search pages for a short TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-search/internal/models"
)

// PageCache is consulted by the listing service before hitting the store.
type PageCache interface {
	Get(ctx context.Context, key string) (models.SearchResultPage, bool, error)
	Set(ctx context.Context, key string, page models.SearchResultPage) error
}

// Key derives the cache key of a search from its normalized filters.
func Key(f models.SearchFilters) string {
	return "rides:search:" + f.Normalize().Values().Encode()
}

// MemoryCache is an in-process PageCache with per-entry expiry.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	page models.SearchResultPage
	ts   time.Time
}

// NewMemoryCache creates a cache with the provided TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

// Get returns the cached page and true if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (models.SearchResultPage, bool, error) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.SearchResultPage{}, false, nil
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return models.SearchResultPage{}, false, nil
	}
	return e.page, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, page models.SearchResultPage) error {
	c.mu.Lock()
	c.store[key] = cacheEntry{page: page, ts: c.now()}
	c.mu.Unlock()
	return nil
}
