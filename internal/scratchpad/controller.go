package scratchpad

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/model"
)

const (
	msgLoadFailed = "Couldn't load the scratchpad. Retrying on the next change."
	msgSaveFailed = "Couldn't save the scratchpad. Your edits are kept and will be retried."
)

// Controller owns the local draft of one scratchpad document. All methods are safe for
// concurrent use; provider calls are never made while holding the state lock.
type Controller struct {
	provider    ContentProvider
	cache       Cache
	cacheKey    string
	cacheTTL    time.Duration
	debounce    time.Duration
	saveTimeout time.Duration
	headings    []string
	scheduler   Scheduler
	logger      zerolog.Logger

	mu sync.Mutex

	draft     string // heading-stripped
	heading   string
	lastSaved string
	version   model.Version
	// Version announced by a remote change that was not applied because of local edits.
	pendingVersion model.Version

	loading      bool
	loaded       bool
	cacheApplied bool
	hasUserEdits bool
	isSaving     bool
	closed       bool
	errorMessage string

	editSeq  uint64
	timer    Timer
	timerGen uint64
	saveDone chan struct{}

	subscribers map[int]func(Snapshot)
	nextSubID   int
}

func New(provider ContentProvider, opts ...Option) *Controller {
	c := &Controller{
		provider:    provider,
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
		headings:    DefaultHeadings,
		scheduler:   ClockScheduler,
		logger:      zerolog.Nop(),
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the document. On the first call a cached copy, if any, is shown before the
// fetch returns. A failed fetch leaves the draft untouched and may be retried.
func (c *Controller) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.loading = true
	if c.cache != nil && !c.loaded && !c.cacheApplied {
		if raw, ok := c.cache.Get(c.cacheKey); ok {
			c.applyRemoteLocked(string(raw), c.version)
			c.cacheApplied = true
			c.logger.Debug().Str("key", c.cacheKey).Msg("Applied cached scratchpad")
		}
	}
	c.mu.Unlock()
	c.publish()

	doc, err := c.provider.FetchContent(ctx)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.errorMessage = msgLoadFailed
		draft := c.draft
		c.mu.Unlock()
		c.publish()
		c.logger.Warn().Err(err).Msg("Error loading scratchpad")
		return draft, fmt.Errorf("error loading scratchpad: %w", err)
	}

	c.errorMessage = ""
	applied := c.reconcileLocked(doc)
	c.loaded = true
	draft := c.draft
	c.mu.Unlock()
	c.publish()

	if applied && c.cache != nil {
		c.cache.Set(c.cacheKey, doc.Content, c.cacheTTL)
	}
	return draft, nil
}

// OnUserEdit replaces the draft with text and restarts the debounce timer. Edits made
// before the first successful Load or after Close are ignored.
func (c *Controller) OnUserEdit(text string) {
	c.mu.Lock()
	if !c.loaded || c.closed {
		c.mu.Unlock()
		return
	}
	c.draft = text
	c.hasUserEdits = true
	c.editSeq++
	c.scheduleLocked()
	c.mu.Unlock()
	c.publish()
}

// Flush saves the draft. Unless force is set, nothing is written without user edits.
// A call made while another save is in flight is dropped.
func (c *Controller) Flush(ctx context.Context, force bool) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := c.flush(ctx, force)
	return err
}

// flush reports dropped when another save was in flight.
func (c *Controller) flush(ctx context.Context, force bool) (dropped bool, err error) {
	c.mu.Lock()
	if c.isSaving {
		c.mu.Unlock()
		return true, nil
	}
	if !c.loaded || (!force && !c.hasUserEdits) {
		c.mu.Unlock()
		return false, nil
	}

	payload := AttachHeading(Normalize(c.draft), c.heading)
	if payload == c.lastSaved {
		changed := c.hasUserEdits
		c.hasUserEdits = false
		c.mu.Unlock()
		if changed {
			c.publish()
		}
		return false, nil
	}

	seq := c.editSeq
	done := make(chan struct{})
	c.isSaving = true
	c.saveDone = done
	c.mu.Unlock()
	c.publish()

	doc, err := c.provider.UpdateContent(ctx, []byte(payload), model.WriteReplace)

	c.mu.Lock()
	c.isSaving = false
	c.saveDone = nil
	close(done)
	// A debounce tick may have been dropped while the save was in flight.
	editedDuringSave := c.editSeq != seq
	if editedDuringSave {
		c.rescheduleLocked()
	}

	if err != nil {
		c.errorMessage = msgSaveFailed
		c.mu.Unlock()
		c.publish()
		c.logger.Warn().Err(err).Msg("Error saving scratchpad")
		return false, fmt.Errorf("error saving scratchpad: %w", err)
	}

	c.lastSaved = payload
	c.errorMessage = ""
	if doc != nil && doc.Version > c.version {
		c.version = doc.Version
	}
	if c.pendingVersion != 0 && c.pendingVersion <= c.version {
		c.pendingVersion = 0
	}
	if !editedDuringSave {
		c.hasUserEdits = false
	}
	version := c.version
	c.mu.Unlock()
	c.publish()

	if c.cache != nil {
		c.cache.Set(c.cacheKey, []byte(payload), c.cacheTTL)
	}
	c.logger.Debug().Int64("version", int64(version)).Int("bytes", len(payload)).Msg("Saved scratchpad")
	return false, nil
}

// OnExternalVersionChanged reacts to a remote change notification. Without local edits
// the remote content replaces the draft. With local edits the change is held back and
// reported through Snapshot.HasConflict.
func (c *Controller) OnExternalVersionChanged(ctx context.Context, version model.Version) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// The initial Load will pick the change up.
	if !c.loaded {
		c.mu.Unlock()
		return nil
	}
	if version != 0 && version <= c.version {
		c.mu.Unlock()
		return nil
	}
	if c.hasUserEdits {
		c.deferRemoteLocked(version)
		c.mu.Unlock()
		c.publish()
		return nil
	}
	seq := c.editSeq
	c.mu.Unlock()

	doc, err := c.provider.FetchContent(ctx)
	if err != nil {
		c.mu.Lock()
		c.errorMessage = msgLoadFailed
		c.mu.Unlock()
		c.publish()
		c.logger.Warn().Err(err).Int64("version", int64(version)).Msg("Error reloading scratchpad")
		return fmt.Errorf("error reloading scratchpad: %w", err)
	}

	c.mu.Lock()
	applied := false
	if c.editSeq != seq {
		if doc.Version > c.version {
			c.deferRemoteLocked(doc.Version)
		}
	} else {
		c.errorMessage = ""
		applied = c.reconcileLocked(doc)
	}
	c.mu.Unlock()
	c.publish()

	if applied && c.cache != nil {
		c.cache.Set(c.cacheKey, doc.Content, c.cacheTTL)
	}
	return nil
}

// ResolveConflict settles a held-back remote change. KeepLocal saves the draft over the
// remote document; TakeRemote drops the local edits and reloads.
func (c *Controller) ResolveConflict(ctx context.Context, resolution Resolution) error {
	switch resolution {
	case KeepLocal:
		return c.Flush(ctx, true)
	case TakeRemote:
		c.mu.Lock()
		for {
			if c.closed {
				c.mu.Unlock()
				return ErrClosed
			}
			// Stopped before every wait so no debounce tick can start a save behind us.
			c.stopTimerLocked()
			if !c.isSaving {
				break
			}
			done := c.saveDone
			c.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			c.mu.Lock()
		}
		c.hasUserEdits = false
		c.pendingVersion = 0
		c.editSeq++
		c.mu.Unlock()
		_, err := c.Load(ctx)
		return err
	default:
		return fmt.Errorf("unknown conflict resolution: %d", resolution)
	}
}

// Close stops the debounce timer, waits for an in-flight save and then saves any
// remaining edits. Later edits are ignored.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	for {
		if err := c.waitForSave(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		dirty := c.hasUserEdits
		c.mu.Unlock()
		if !dirty {
			return nil
		}
		dropped, err := c.flush(ctx, true)
		if !dropped {
			return err
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to be called with a fresh Snapshot after every state change.
// Callbacks run outside the controller lock and may call back into the controller.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) Text() string {
	return c.Snapshot().Text
}

func (c *Controller) IsSaving() bool {
	return c.Snapshot().IsSaving
}

func (c *Controller) ErrorMessage() string {
	return c.Snapshot().ErrorMessage
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Text:         c.draft,
		Heading:      c.heading,
		Version:      c.version,
		State:        c.stateLocked(),
		IsSaving:     c.isSaving,
		HasUserEdits: c.hasUserEdits,
		HasConflict:  c.pendingVersion != 0,
		ErrorMessage: c.errorMessage,
	}
}

func (c *Controller) stateLocked() State {
	switch {
	case !c.loaded && c.loading:
		return StateLoading
	case !c.loaded:
		return StateUninitialized
	case c.isSaving:
		return StateSaving
	case c.hasUserEdits:
		return StateDirty
	default:
		return StateClean
	}
}

func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// reconcileLocked applies fetched content and reports whether it did. Fetches older than
// the shown version are dropped, and while edits are pending or a save is in flight a
// newer version is only recorded as a conflict.
func (c *Controller) reconcileLocked(doc *model.Scratchpad) bool {
	if doc.Version < c.version {
		c.logger.Debug().
			Int64("fetched", int64(doc.Version)).
			Int64("version", int64(c.version)).
			Msg("Ignoring stale scratchpad fetch")
		return false
	}
	if c.hasUserEdits || c.isSaving {
		if doc.Version > c.version {
			c.deferRemoteLocked(doc.Version)
		}
		return false
	}
	c.applyRemoteLocked(string(doc.Content), doc.Version)
	return true
}

func (c *Controller) applyRemoteLocked(content string, version model.Version) {
	c.heading, c.draft = StripHeading(content, c.headings)
	c.lastSaved = content
	c.version = version
	c.pendingVersion = 0
}

func (c *Controller) deferRemoteLocked(version model.Version) {
	if version > c.pendingVersion {
		c.pendingVersion = version
	}
	c.logger.Info().Int64("version", int64(version)).Msg("Remote scratchpad changed while editing, keeping local draft")
}

func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.timer = c.scheduler.AfterFunc(c.debounce, func() {
		c.debounceFire(gen)
	})
}

// rescheduleLocked arms the timer again when edits remain unsaved and no tick is pending.
func (c *Controller) rescheduleLocked() {
	if c.closed || c.timer != nil || !c.hasUserEdits {
		return
	}
	c.scheduleLocked()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) debounceFire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	if _, err := c.flush(ctx, false); err != nil {
		c.logger.Debug().Err(err).Msg("Debounced save failed")
	}
}

func (c *Controller) waitForSave(ctx context.Context) error {
	c.mu.Lock()
	done := c.saveDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
