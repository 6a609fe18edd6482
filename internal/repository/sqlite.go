package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/debemdeboas/scratchpad/internal/db"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/util/compression"
)

type SQLiteStore struct { // implements Store
	db         db.DB
	compressor compression.Compressor
}

func NewSQLiteStore(db db.DB) *SQLiteStore {
	return &SQLiteStore{
		db: db,

		compressor: compression.ZstdCompressor{},
	}
}

func (r *SQLiteStore) Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error) {
	return r.get(ctx, r.db.QueryRowContext, id)
}

type queryRowFunc func(ctx context.Context, query string, args ...any) *sql.Row

func (r *SQLiteStore) get(ctx context.Context, queryRow queryRowFunc, id model.DocumentID) (*model.Scratchpad, error) {
	var doc model.Scratchpad
	var compressed []byte

	err := queryRow(ctx,
		`SELECT id, content, content_hash, version, created_at, modified_at FROM scratchpads WHERE id = ?`, id,
	).Scan(&doc.ID, &compressed, &doc.ContentHash, &doc.Version, &doc.CreatedAt, &doc.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning scratchpad: %w", err)
	}

	doc.Content, err = r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content: %w", err)
	}
	return &doc, nil
}

func (r *SQLiteStore) Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx.QueryRowContext, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := nextRevision(current, id, content, mode, time.Now().UTC())

	compressed, err := r.compressor.Compress(next.Content)
	if err != nil {
		return nil, fmt.Errorf("error compressing content: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO scratchpads (id, content, content_hash, version, created_at, modified_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    content = excluded.content,
    content_hash = excluded.content_hash,
    version = excluded.version,
    modified_at = excluded.modified_at`,
		next.ID, compressed, next.ContentHash, next.Version, next.CreatedAt, next.ModifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error saving scratchpad: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing scratchpad: %w", err)
	}

	repoLogger.Debug().
		Str("id", string(id)).
		Int64("version", int64(next.Version)).
		Int("compressed_bytes", len(compressed)).
		Msg("Scratchpad saved")

	return next, nil
}

func (r *SQLiteStore) List(ctx context.Context) ([]model.DocumentInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, version, content_hash FROM scratchpads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error querying scratchpads: %w", err)
	}
	defer rows.Close()

	infos := make([]model.DocumentInfo, 0)
	for rows.Next() {
		var info model.DocumentInfo
		if err := rows.Scan(&info.ID, &info.Version, &info.ContentHash); err != nil {
			return nil, fmt.Errorf("error scanning scratchpad: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (r *SQLiteStore) Close() error {
	return r.db.Close()
}
