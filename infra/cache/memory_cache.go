package cache

import (
	"context"
	"sync"
	"time"

	"github.com/numgate/numgate/pkg/cache"
	"github.com/numgate/numgate/pkg/money"
)

type memoryEntry struct {
	price     money.Money
	expiresAt time.Time
}

// MemoryPriceCache implements cache.PriceCache using in-memory storage.
// Used in tests and as the fallback when Redis is unavailable.
type MemoryPriceCache struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	done    chan struct{}
}

// NewMemoryPriceCache creates a new in-memory price cache.
func NewMemoryPriceCache() *MemoryPriceCache {
	c := &MemoryPriceCache{
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Close stops the background expiry sweep.
func (c *MemoryPriceCache) Close() {
	close(c.done)
}

// Get retrieves a price from the cache. Expired entries are misses.
func (c *MemoryPriceCache) Get(_ context.Context, key string) (money.Money, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return money.Money{}, false, nil
	}
	return entry.price, true, nil
}

// Set stores a price with a TTL.
func (c *MemoryPriceCache) Set(_ context.Context, key string, price money.Money, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{price: price, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a cached price.
func (c *MemoryPriceCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryPriceCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		now := time.Now()
		c.mu.Lock()
		for key, entry := range c.entries {
			if now.After(entry.expiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

var _ cache.PriceCache = (*MemoryPriceCache)(nil)
