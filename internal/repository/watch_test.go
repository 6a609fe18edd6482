package repository

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/debemdeboas/scratchpad/internal/model"
)

type change struct {
	id      model.DocumentID
	version model.Version
}

type recorder struct {
	mu      sync.Mutex
	changes []change
	signal  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 100)}
}

func (r *recorder) notify(id model.DocumentID, version model.Version) {
	r.mu.Lock()
	r.changes = append(r.changes, change{id, version})
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) Changes() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}

func (r *recorder) wait(t *testing.T) change {
	t.Helper()
	select {
	case <-r.signal:
		changes := r.Changes()
		return changes[len(changes)-1]
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change notification")
		return change{}
	}
}

func TestFSStoreWatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "scratchpads")
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, "main", []byte("from put"), model.WriteReplace); err != nil {
		t.Fatal(err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	rec := newRecorder()
	done := make(chan error, 1)
	go func() { done <- store.Watch(watchCtx, rec.notify) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Replace the file in one step, the way editors save.
	staged := filepath.Join(t.TempDir(), "main.md")
	if err := os.WriteFile(staged, []byte("edited by hand"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(staged, filepath.Join(dir, "main.md")); err != nil {
		t.Fatal(err)
	}

	got := rec.wait(t)
	if got.id != "main" || got.version != 2 {
		t.Errorf("Expected main at version 2, got %+v", got)
	}

	doc, err := store.Get(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != 2 || string(doc.Content) != "edited by hand" {
		t.Errorf("Unexpected document after external edit %+v", doc)
	}

	// Writes through the store are not reported.
	if _, err := store.Put(ctx, "main", []byte("from put again"), model.WriteReplace); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	for _, c := range rec.Changes()[1:] {
		t.Errorf("Unexpected notification for store write: %+v", c)
	}
}

func TestFSStoreHandWrittenFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := store.Get(ctx, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != 1 || string(doc.Content) != "hi" {
		t.Errorf("Unexpected document %+v", doc)
	}

	doc, err = store.Put(ctx, "notes", []byte("there"), model.WriteAppend)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Version != 2 || string(doc.Content) != "hi\nthere" {
		t.Errorf("Unexpected document after append %+v", doc)
	}
}

// hashOnlyStore lets a test change content without a version bump.
type hashOnlyStore struct {
	*MemoryStore
	override map[model.DocumentID]string
	mu       sync.Mutex
}

func (s *hashOnlyStore) List(ctx context.Context) ([]model.DocumentInfo, error) {
	infos, err := s.MemoryStore.List(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range infos {
		if h, ok := s.override[infos[i].ID]; ok {
			infos[i].ContentHash = h
		}
	}
	return infos, err
}

func TestPoller(t *testing.T) {
	ctx := context.Background()
	store := &hashOnlyStore{MemoryStore: NewMemoryStore(), override: make(map[model.DocumentID]string)}
	if _, err := store.Put(ctx, "main", []byte("a"), model.WriteReplace); err != nil {
		t.Fatal(err)
	}

	poller := NewPoller(store, time.Hour)
	rec := newRecorder()

	poller.poll(ctx, rec.notify)
	if n := len(rec.Changes()); n != 0 {
		t.Fatalf("Expected baseline poll to be silent, got %d changes", n)
	}

	t.Run("Version change", func(t *testing.T) {
		if _, err := store.Put(ctx, "main", []byte("b"), model.WriteReplace); err != nil {
			t.Fatal(err)
		}
		poller.poll(ctx, rec.notify)
		changes := rec.Changes()
		if len(changes) != 1 || changes[0] != (change{"main", 2}) {
			t.Errorf("Expected main@2, got %+v", changes)
		}
	})

	t.Run("New document", func(t *testing.T) {
		if _, err := store.Put(ctx, "work", []byte("w"), model.WriteReplace); err != nil {
			t.Fatal(err)
		}
		poller.poll(ctx, rec.notify)
		changes := rec.Changes()
		if len(changes) != 2 || changes[1] != (change{"work", 1}) {
			t.Errorf("Expected work@1, got %+v", changes)
		}
	})

	t.Run("Hash change without version bump", func(t *testing.T) {
		store.mu.Lock()
		store.override["main"] = "different"
		store.mu.Unlock()

		poller.poll(ctx, rec.notify)
		changes := rec.Changes()
		if len(changes) != 3 || changes[2] != (change{"main", 0}) {
			t.Errorf("Expected main@0, got %+v", changes)
		}
	})

	t.Run("No change", func(t *testing.T) {
		poller.poll(ctx, rec.notify)
		if n := len(rec.Changes()); n != 3 {
			t.Errorf("Expected no new changes, got %d total", n)
		}
	})
}

func TestPollerWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	poller := NewPoller(NewMemoryStore(), 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- poller.Watch(ctx, func(model.DocumentID, model.Version) {}) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop")
	}
}
