// Package repository stores scratchpad documents and reports out-of-band changes.
package repository

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/util"
)

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

var ErrNotFound = errors.New("scratchpad not found")

// Store persists scratchpad documents. Every Put bumps the document version by one.
type Store interface {
	Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error)
	Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error)
	List(ctx context.Context) ([]model.DocumentInfo, error)
	Close() error
}

// Watcher is implemented by stores that can push changes made outside this process.
// Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, notify func(model.DocumentID, model.Version)) error
}

// nextRevision applies a write to current, which may be nil for a new document.
func nextRevision(current *model.Scratchpad, id model.DocumentID, content []byte, mode model.WriteMode, now time.Time) *model.Scratchpad {
	next := &model.Scratchpad{
		ID:         id,
		Version:    1,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if current == nil {
		next.Content = bytes.Clone(content)
	} else {
		next.Content = bytes.Clone(current.Apply(content, mode))
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
	}
	if next.Content == nil {
		next.Content = []byte{}
	}
	next.ContentHash = util.ContentHash(next.Content)
	return next
}

// GetOrEmpty returns id from store, or an empty document at version 0 if it was never
// written. Scratchpads exist implicitly.
func GetOrEmpty(ctx context.Context, store Store, id model.DocumentID) (*model.Scratchpad, error) {
	doc, err := store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &model.Scratchpad{
			ID:          id,
			Content:     []byte{},
			ContentHash: util.ContentHash(nil),
		}, nil
	}
	return doc, err
}
