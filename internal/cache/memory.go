package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type guardEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache keeps guards in process memory.
type MemoryCache struct {
	mu     sync.Mutex
	guards map[string]guardEntry
	now    func() time.Time
}

// NewMemoryCache creates an empty in-process guard store.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		guards: make(map[string]guardEntry),
		now:    time.Now,
	}
}

// SetNX takes key unless a live guard holds it. Expired guards are swept on
// the way so the map only holds keys that are still taken.
func (c *MemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, g := range c.guards {
		if !now.Before(g.expiresAt) {
			delete(c.guards, k)
		}
	}
	if _, held := c.guards[key]; held {
		return false, nil
	}
	c.guards[key] = guardEntry{value: bytes.Clone(value), expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops key if it still holds value.
func (c *MemoryCache) Release(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, held := c.guards[key]; held && bytes.Equal(g.value, value) {
		delete(c.guards, key)
	}
	return nil
}

// Close is a no-op; nothing runs in the background.
func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.guards)
}

var _ Cache = (*MemoryCache)(nil)
