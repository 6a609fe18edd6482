package repository

import (
	"context"
	"time"

	"github.com/debemdeboas/scratchpad/internal/model"
)

// Poller detects changes on stores without push notifications by listing them at a
// fixed interval and comparing versions and content hashes.
type Poller struct { // implements Watcher
	store    Store
	interval time.Duration
	known    map[model.DocumentID]model.DocumentInfo
}

func NewPoller(store Store, interval time.Duration) *Poller {
	return &Poller{
		store:    store,
		interval: interval,
	}
}

// WatcherFor returns store itself when it can push changes, a Poller otherwise.
func WatcherFor(store Store, interval time.Duration) Watcher {
	if w, ok := store.(Watcher); ok {
		return w
	}
	return NewPoller(store, interval)
}

// Watch reports changed documents. A document whose content changed without a version
// bump is reported with version 0.
func (p *Poller) Watch(ctx context.Context, notify func(model.DocumentID, model.Version)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, notify)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, notify func(model.DocumentID, model.Version)) {
	infos, err := p.store.List(ctx)
	if err != nil {
		if ctx.Err() == nil {
			repoLogger.Error().Err(err).Msg("Error listing scratchpads")
		}
		return
	}

	current := make(map[model.DocumentID]model.DocumentInfo, len(infos))
	for _, info := range infos {
		current[info.ID] = info
	}

	// The first listing only establishes the baseline.
	if p.known == nil {
		p.known = current
		return
	}

	for _, info := range infos {
		prev, exists := p.known[info.ID]
		switch {
		case !exists:
			repoLogger.Info().Str("id", string(info.ID)).Msg("New scratchpad detected")
			notify(info.ID, info.Version)
		case info.Version != prev.Version:
			repoLogger.Info().Str("id", string(info.ID)).Int64("version", int64(info.Version)).Msg("Scratchpad changed")
			notify(info.ID, info.Version)
		case info.ContentHash != prev.ContentHash:
			repoLogger.Info().Str("id", string(info.ID)).Msg("Scratchpad content changed without a version bump")
			notify(info.ID, 0)
		default:
			repoLogger.Debug().Str("id", string(info.ID)).Msg("No change")
		}
	}

	p.known = current
}
