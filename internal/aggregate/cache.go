package aggregate

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

// Cache holds computed rollups for a bounded time. Entries are only ever
// expired by TTL; nothing invalidates them when new observations arrive.
type Cache interface {
	Get(ctx context.Context, key string) ([]kitchen.Aggregate, bool, error)
	Set(ctx context.Context, key string, aggs []kitchen.Aggregate, ttl time.Duration) error
}

type cacheEntry struct {
	aggs    []kitchen.Aggregate
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]kitchen.Aggregate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return slices.Clone(e.aggs), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, aggs []kitchen.Aggregate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		aggs:    slices.Clone(aggs),
		expires: c.now().Add(ttl),
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
