package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when no Redis URL is configured.
// Expired entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	clock   timex.Clock
	entries map[string]memoryEntry
}

func NewMemoryCache(clock timex.Clock) *MemoryCache {
	return &MemoryCache{clock: clock, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}

	now := c.clock.Now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return false, nil
	}

	env, err := open(e.data)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	ttl := env.remaining(now)
	if ttl <= 0 {
		delete(c.entries, key)
		return false, nil
	}
	if err := decMode.Unmarshal(env.Payload, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	e.expiresAt = now.Add(ttl)
	c.entries[key] = e
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, opts Options) error {
	if !opts.valid() {
		return ErrInvalidOptions
	}

	now := c.clock.Now()
	data, err := seal(value, opts, now)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, expiresAt: now.Add(firstExpiry(opts))}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}
