package cache

import (
	"bytes"
	"time"
)

type ttlEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// TTLCache is an in-memory byte cache with per-entry expiry.
type TTLCache struct {
	items *Cache[string, ttlEntry]
	now   func() time.Time
}

func NewTTLCache() *TTLCache {
	return &TTLCache{
		items: NewCache[string, ttlEntry](),
		now:   time.Now,
	}
}

func (c *TTLCache) Get(key string) ([]byte, bool) {
	entry, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.items.Delete(key)
		return nil, false
	}
	return bytes.Clone(entry.value), true
}

// Set stores value under key. A ttl <= 0 keeps the entry until it is overwritten.
func (c *TTLCache) Set(key string, value []byte, ttl time.Duration) {
	entry := ttlEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.items.Set(key, entry)
}

func (c *TTLCache) Delete(key string) {
	c.items.Delete(key)
}
