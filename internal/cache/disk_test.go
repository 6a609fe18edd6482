package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestDiskCache(t *testing.T) (*DiskCache, *time.Time) {
	t.Helper()
	c, err := NewDiskCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestDiskCache(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		content := "# Scratchpad\n\n" + strings.Repeat("- [ ] item\n", 50)
		c.Set("scratchpad:main", []byte(content), time.Hour)

		got, ok := c.Get("scratchpad:main")
		if !ok {
			t.Fatal("Expected cache hit")
		}
		if string(got) != content {
			t.Errorf("Expected %q, got %q", content, got)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		if _, ok := c.Get("missing"); ok {
			t.Error("Expected miss")
		}
	})

	t.Run("Persists across instances", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		c.Set("main", []byte("hello"), 0)

		reopened, err := NewDiskCache(c.dir)
		if err != nil {
			t.Fatalf("NewDiskCache failed: %v", err)
		}
		if got, ok := reopened.Get("main"); !ok || string(got) != "hello" {
			t.Errorf("Expected 'hello' from reopened cache, got %q (ok=%v)", got, ok)
		}
	})

	t.Run("Expired entries are removed", func(t *testing.T) {
		c, now := newTestDiskCache(t)
		c.Set("main", []byte("hello"), time.Minute)

		*now = now.Add(2 * time.Minute)
		if _, ok := c.Get("main"); ok {
			t.Error("Expected expired entry to miss")
		}
		if _, err := os.Stat(c.path("main")); !os.IsNotExist(err) {
			t.Errorf("Expected expired file to be removed, stat err: %v", err)
		}
	})

	t.Run("Corrupt entries are removed", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		if err := os.WriteFile(c.path("main"), []byte("bogus-header-and-payload"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Get("main"); ok {
			t.Error("Expected corrupt entry to miss")
		}
		if _, err := os.Stat(c.path("main")); !os.IsNotExist(err) {
			t.Error("Expected corrupt file to be removed")
		}
	})

	t.Run("Truncated entries are removed", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		if err := os.WriteFile(c.path("main"), []byte{1, 2}, 0o600); err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Get("main"); ok {
			t.Error("Expected truncated entry to miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		c.Set("main", []byte("x"), 0)
		c.Delete("main")
		if _, ok := c.Get("main"); ok {
			t.Error("Expected deleted entry to miss")
		}
	})

	t.Run("No temp files left behind", func(t *testing.T) {
		c, _ := newTestDiskCache(t)
		c.Set("a", []byte("1"), 0)
		c.Set("b", []byte("2"), 0)

		entries, err := os.ReadDir(c.dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".entry-") {
				t.Errorf("Unexpected temp file %s", e.Name())
			}
		}
		if len(entries) != 2 {
			t.Errorf("Expected 2 entries, got %d", len(entries))
		}
	})
}
