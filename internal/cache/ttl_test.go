package cache

import (
	"testing"
	"time"
)

func newTestTTLCache() (*TTLCache, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestTTLCache(t *testing.T) {
	t.Run("Get before Set", func(t *testing.T) {
		c, _ := newTestTTLCache()
		if _, ok := c.Get("main"); ok {
			t.Error("Expected miss on empty cache")
		}
	})

	t.Run("Entry expires", func(t *testing.T) {
		c, now := newTestTTLCache()
		c.Set("main", []byte("# Scratchpad\n\nhello"), time.Minute)

		if val, ok := c.Get("main"); !ok || string(val) != "# Scratchpad\n\nhello" {
			t.Fatalf("Expected hit, got %q (ok=%v)", val, ok)
		}

		*now = now.Add(time.Minute)
		if _, ok := c.Get("main"); ok {
			t.Error("Expected entry to be expired")
		}
		if c.items.Len() != 0 {
			t.Error("Expected expired entry to be evicted on read")
		}
	})

	t.Run("Zero ttl never expires", func(t *testing.T) {
		c, now := newTestTTLCache()
		c.Set("main", []byte("x"), 0)
		*now = now.Add(24 * 365 * time.Hour)
		if _, ok := c.Get("main"); !ok {
			t.Error("Expected entry without ttl to persist")
		}
	})

	t.Run("Values are copied", func(t *testing.T) {
		c, _ := newTestTTLCache()
		value := []byte("abc")
		c.Set("main", value, 0)
		value[0] = 'z'

		got, _ := c.Get("main")
		if string(got) != "abc" {
			t.Errorf("Expected stored value to be isolated from caller, got %q", got)
		}
		got[1] = 'z'
		again, _ := c.Get("main")
		if string(again) != "abc" {
			t.Errorf("Expected returned value to be a copy, got %q", again)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c, _ := newTestTTLCache()
		c.Set("main", []byte("a"), 0)
		c.Delete("main")
		if _, ok := c.Get("main"); ok {
			t.Error("Expected deleted entry to be gone")
		}
	})
}
