package cache

import (
	"sort"
	"sync"
	"testing"
)

func TestNewCache(t *testing.T) {
	c := NewCache[string, int]()
	if c == nil {
		t.Fatal("NewCache returned nil")
	}
	if c.items == nil {
		t.Error("Cache items map is nil")
	}
	if c.Len() != 0 {
		t.Errorf("Expected empty cache, got %d items", c.Len())
	}
}

func TestCacheBasicOperations(t *testing.T) {
	c := NewCache[string, string]()

	t.Run("Get non-existent key", func(t *testing.T) {
		val, ok := c.Get("missing")
		if ok {
			t.Error("Expected false for non-existent key")
		}
		if val != "" {
			t.Errorf("Expected zero value, got %q", val)
		}
	})

	t.Run("Set and Get", func(t *testing.T) {
		c.Set("main", "# Scratchpad")
		val, ok := c.Get("main")
		if !ok {
			t.Fatal("Expected true for existing key")
		}
		if val != "# Scratchpad" {
			t.Errorf("Expected '# Scratchpad', got %q", val)
		}
	})

	t.Run("Overwrite existing key", func(t *testing.T) {
		c.Set("main", "updated")
		val, _ := c.Get("main")
		if val != "updated" {
			t.Errorf("Expected 'updated', got %q", val)
		}
	})
}

func TestCacheDelete(t *testing.T) {
	c := NewCache[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Expected 'a' to be deleted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Expected 'b' to remain")
	}

	// Deleting a missing key is a no-op
	c.Delete("missing")
	if c.Len() != 1 {
		t.Errorf("Expected 1 item, got %d", c.Len())
	}
}

func TestCacheKeys(t *testing.T) {
	c := NewCache[string, bool]()
	c.Set("work", true)
	c.Set("main", true)

	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "main" || keys[1] != "work" {
		t.Errorf("Expected [main work], got %v", keys)
	}
}

func TestCacheConcurrency(t *testing.T) {
	c := NewCache[int, int]()
	var wg sync.WaitGroup

	const goroutines = 50
	const ops = 100

	for g := range goroutines {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range ops {
				key := g*ops + i
				c.Set(key, i)
				c.Get(key)
				if i%10 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ops {
				_ = c.Len()
				_ = c.Keys()
			}
		}()
	}

	wg.Wait()

	expected := goroutines * (ops - ops/10)
	if c.Len() != expected {
		t.Errorf("Expected %d items, got %d", expected, c.Len())
	}
}

func TestCacheTypeSafety(t *testing.T) {
	type doc struct {
		body    []byte
		version int64
	}

	c := NewCache[string, doc]()
	c.Set("main", doc{body: []byte("hi"), version: 3})

	got, ok := c.Get("main")
	if !ok {
		t.Fatal("Expected struct value to be found")
	}
	if got.version != 3 || string(got.body) != "hi" {
		t.Errorf("Unexpected value: %+v", got)
	}
}
