package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/util"
)

const (
	contentExt = ".md"
	versionExt = ".version"
)

// FSStore keeps each document as <dir>/<id>.md, editable by hand, with the version and
// content hash in a <id>.version sidecar. Edits made outside the store are detected by
// Watch through the hash.
type FSStore struct { // implements Store, Watcher
	dir string
	mu  sync.Mutex
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating scratchpad directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

type sidecar struct {
	version model.Version
	hash    string
}

func (r *FSStore) contentPath(id model.DocumentID) string {
	return filepath.Join(r.dir, string(id)+contentExt)
}

func (r *FSStore) versionPath(id model.DocumentID) string {
	return filepath.Join(r.dir, string(id)+versionExt)
}

func (r *FSStore) Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(id)
}

func (r *FSStore) read(id model.DocumentID) (*model.Scratchpad, error) {
	path := r.contentPath(id)
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading scratchpad: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scratchpad: %w", err)
	}

	meta, err := r.readSidecar(id)
	if err != nil {
		return nil, err
	}

	return &model.Scratchpad{
		ID:          id,
		Content:     content,
		ContentHash: util.ContentHash(content),
		Version:     meta.version,
		CreatedAt:   info.ModTime().UTC(),
		ModifiedAt:  info.ModTime().UTC(),
	}, nil
}

// readSidecar returns version 1 for documents created by hand without a sidecar.
func (r *FSStore) readSidecar(id model.DocumentID) (sidecar, error) {
	data, err := os.ReadFile(r.versionPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return sidecar{version: 1}, nil
	}
	if err != nil {
		return sidecar{}, fmt.Errorf("error reading version: %w", err)
	}

	versionStr, hash, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		return sidecar{}, fmt.Errorf("error parsing version %q: %w", versionStr, err)
	}
	return sidecar{version: model.Version(version), hash: hash}, nil
}

func (r *FSStore) writeSidecar(id model.DocumentID, meta sidecar) error {
	data := fmt.Sprintf("%d %s\n", meta.version, meta.hash)
	return writeFileAtomic(r.versionPath(id), []byte(data))
}

func (r *FSStore) Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := nextRevision(current, id, content, mode, time.Now().UTC())

	if err := writeFileAtomic(r.contentPath(id), next.Content); err != nil {
		return nil, fmt.Errorf("error writing scratchpad: %w", err)
	}
	if err := r.writeSidecar(id, sidecar{version: next.Version, hash: next.ContentHash}); err != nil {
		return nil, fmt.Errorf("error writing version: %w", err)
	}

	repoLogger.Debug().Str("id", string(id)).Int64("version", int64(next.Version)).Msg("Scratchpad written")
	return next, nil
}

func (r *FSStore) List(ctx context.Context) ([]model.DocumentInfo, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("error listing scratchpads: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]model.DocumentInfo, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), contentExt) {
			continue
		}
		id := model.DocumentID(strings.TrimSuffix(entry.Name(), contentExt))
		doc, err := r.read(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, model.DocumentInfo{ID: id, Version: doc.Version, ContentHash: doc.ContentHash})
	}
	sortInfos(infos)
	return infos, nil
}

func (r *FSStore) Close() error {
	return nil
}

// Watch reports documents whose files were changed by something other than Put. Such
// a change bumps the document version before notify is called.
func (r *FSStore) Watch(ctx context.Context, notify func(model.DocumentID, model.Version)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	repoLogger.Info().Str("dir", r.dir).Msg("Watching scratchpad directory")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, contentExt) || strings.HasPrefix(name, ".") {
				continue
			}
			id := model.DocumentID(strings.TrimSuffix(name, contentExt))

			version, changed, err := r.reconcileExternal(id)
			if err != nil {
				repoLogger.Error().Err(err).Str("id", string(id)).Msg("Error checking changed scratchpad")
				continue
			}
			if changed {
				repoLogger.Info().Str("id", string(id)).Int64("version", int64(version)).Msg("Scratchpad changed on disk")
				notify(id, version)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			repoLogger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// reconcileExternal bumps the version of id if its content no longer matches the hash
// recorded by the last Put.
func (r *FSStore) reconcileExternal(id model.DocumentID) (model.Version, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	content, err := os.ReadFile(r.contentPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("error reading scratchpad: %w", err)
	}

	meta, err := r.readSidecar(id)
	if err != nil {
		return 0, false, err
	}

	hash := util.ContentHash(content)
	if hash == meta.hash {
		return meta.version, false, nil
	}

	next := sidecar{version: meta.version + 1, hash: hash}
	if err := r.writeSidecar(id, next); err != nil {
		return 0, false, fmt.Errorf("error writing version: %w", err)
	}
	return next.version, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
