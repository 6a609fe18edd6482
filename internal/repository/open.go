package repository

import (
	"context"
	"fmt"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/db"
)

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendSQLite:
		sqlite := db.NewSQLite(cfg.SQLitePath)
		if err := sqlite.InitDB(); err != nil {
			return nil, err
		}
		return NewSQLiteStore(sqlite), nil
	case config.BackendFS:
		return NewFSStore(cfg.FSDir)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
