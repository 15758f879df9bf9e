// Package cache provides caching implementations for ClaimHawk.
package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache.
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache. Returns nil, nil on a miss.
func (c *MemoryCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if val, found := c.cache.Get(makeKey(tenantID, key)); found {
		if b, ok := val.([]byte); ok {
			return b, nil
		}
	}
	return nil, nil
}

// Set stores a value in the cache with the given TTL.
func (c *MemoryCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(makeKey(tenantID, key), value, ttl)
	return nil
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	c.cache.Delete(makeKey(tenantID, key))
	return nil
}

// IncrementCounter increments a fixed-window counter. The window starts at
// the first increment.
func (c *MemoryCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}

	fullKey := makeKey(tenantID, "counter:"+key)
	for attempt := 0; attempt < 3; attempt++ {
		if err := c.cache.Add(fullKey, int64(1), window); err == nil {
			return 1, nil
		}
		n, err := c.cache.IncrementInt64(fullKey, 1)
		if err == nil {
			return n, nil
		}
		// expired between Add and Increment, start a new window
	}
	return 0, fmt.Errorf("counter %s is contended", key)
}

// Ping always succeeds for the in-process cache.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (c *MemoryCache) Close() error {
	c.cache.Flush()
	return nil
}

// Len returns the number of stored items, including expired ones not yet cleaned up.
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}

func makeKey(tenantID, key string) string {
	return "claimhawk:" + tenantID + ":" + key
}
