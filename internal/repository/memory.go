package repository

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/debemdeboas/scratchpad/internal/cache"
	"github.com/debemdeboas/scratchpad/internal/model"
)

type MemoryStore struct { // implements Store
	mu   sync.Mutex // serializes writers
	docs *cache.Cache[model.DocumentID, *model.Scratchpad]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: cache.NewCache[model.DocumentID, *model.Scratchpad](),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error) {
	if doc, ok := m.docs.Get(id); ok {
		return copyScratchpad(doc), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, _ := m.docs.Get(id)
	next := nextRevision(current, id, content, mode, time.Now().UTC())
	m.docs.Set(id, next)

	return copyScratchpad(next), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]model.DocumentInfo, error) {
	ids := m.docs.Keys()
	infos := make([]model.DocumentInfo, 0, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs.Get(id); ok {
			infos = append(infos, model.DocumentInfo{ID: id, Version: doc.Version, ContentHash: doc.ContentHash})
		}
	}
	sortInfos(infos)
	return infos, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func copyScratchpad(doc *model.Scratchpad) *model.Scratchpad {
	c := *doc
	c.Content = bytes.Clone(doc.Content)
	return &c
}

func sortInfos(infos []model.DocumentInfo) {
	slices.SortFunc(infos, func(a, b model.DocumentInfo) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
