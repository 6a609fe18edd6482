// Package scratchpad keeps a local scratchpad draft in sync with a remote document.
//
// A Controller debounces user edits into full-replace saves, never lets a remote change
// overwrite unsaved local edits, and hides the document's title heading from the editing
// surface while keeping it on every save.
package scratchpad

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/model"
)

var ErrClosed = errors.New("scratchpad controller closed")

// ContentProvider reads and writes the remote document.
type ContentProvider interface {
	FetchContent(ctx context.Context) (*model.Scratchpad, error)
	UpdateContent(ctx context.Context, payload []byte, mode model.WriteMode) (*model.Scratchpad, error)
}

// Cache is an optional local store used to show content before the first fetch returns.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateClean
	StateDirty
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// Resolution picks the winner when a remote change arrived while local edits were unsaved.
type Resolution int

const (
	KeepLocal Resolution = iota
	TakeRemote
)

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	Text         string
	Heading      string
	Version      model.Version
	State        State
	IsSaving     bool
	HasUserEdits bool
	HasConflict  bool
	ErrorMessage string
}

const DefaultDebounce = 900 * time.Millisecond

// DefaultSaveTimeout bounds a save started by the debounce timer.
const DefaultSaveTimeout = 30 * time.Second

type Option func(*Controller)

// WithCache enables optimistic display from cache under key. Fetched content is written
// back with ttl.
func WithCache(cache Cache, key string, ttl time.Duration) Option {
	return func(c *Controller) {
		c.cache = cache
		c.cacheKey = key
		c.cacheTTL = ttl
	}
}

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		c.debounce = d
	}
}

// WithSaveTimeout bounds saves started by the debounce timer. Flush and Close use the
// caller's context instead.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.saveTimeout = d
	}
}

func WithHeadings(headings []string) Option {
	return func(c *Controller) {
		c.headings = headings
	}
}

func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		c.scheduler = s
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}
