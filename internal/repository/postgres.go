package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
)

// Channel carrying "<id>:<version>" payloads for every insert or update.
const changesChannel = "scratchpad_changes"

type PostgresStore struct { // implements Store, Watcher
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore connects to cfg.DSN and creates the table and its change trigger.
// cfg.Table must already be validated as a plain identifier.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresStore{pool: pool, table: cfg.Table}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresStore) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    version BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    modified_at TIMESTAMPTZ NOT NULL
);

CREATE OR REPLACE FUNCTION %[1]s_notify() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('%[2]s', NEW.id || ':' || NEW.version);
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[1]s_changes ON %[1]s;
CREATE TRIGGER %[1]s_changes AFTER INSERT OR UPDATE ON %[1]s
    FOR EACH ROW EXECUTE FUNCTION %[1]s_notify();
`, r.table, changesChannel)

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate scratchpad table: %w", err)
	}
	return nil
}

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresStore) get(ctx context.Context, q pgQueryRower, id model.DocumentID, forUpdate bool) (*model.Scratchpad, error) {
	query := fmt.Sprintf(`
		SELECT id, content, content_hash, version, created_at, modified_at
		FROM %s
		WHERE id = $1
	`, r.table)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var doc model.Scratchpad
	var content string
	err := q.QueryRow(ctx, query, string(id)).Scan(
		&doc.ID,
		&content,
		&doc.ContentHash,
		&doc.Version,
		&doc.CreatedAt,
		&doc.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scratchpad: %w", err)
	}
	doc.Content = []byte(content)
	return &doc, nil
}

func (r *PostgresStore) Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error) {
	return r.get(ctx, r.pool, id, false)
}

func (r *PostgresStore) Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			repoLogger.Warn().Err(err).Msg("Rollback failed")
		}
	}()

	// FOR UPDATE locks nothing while the row does not exist yet, so concurrent
	// first writes serialize on a per-document advisory lock instead.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.table+":"+string(id)); err != nil {
		return nil, fmt.Errorf("lock scratchpad: %w", err)
	}

	current, err := r.get(ctx, tx, id, true)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := nextRevision(current, id, content, mode, time.Now().UTC())

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, content_hash, version, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			version = EXCLUDED.version,
			modified_at = EXCLUDED.modified_at
	`, r.table)
	_, err = tx.Exec(ctx, query,
		string(next.ID),
		string(next.Content),
		next.ContentHash,
		int64(next.Version),
		next.CreatedAt,
		next.ModifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save scratchpad: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return next, nil
}

func (r *PostgresStore) List(ctx context.Context) ([]model.DocumentInfo, error) {
	query := fmt.Sprintf(`SELECT id, version, content_hash FROM %s ORDER BY id`, r.table)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scratchpads: %w", err)
	}
	defer rows.Close()

	infos := make([]model.DocumentInfo, 0)
	for rows.Next() {
		var info model.DocumentInfo
		if err := rows.Scan(&info.ID, &info.Version, &info.ContentHash); err != nil {
			return nil, fmt.Errorf("scan scratchpad: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

// Watch listens for change notifications, reconnecting after connection errors.
func (r *PostgresStore) Watch(ctx context.Context, notify func(model.DocumentID, model.Version)) error {
	for {
		err := r.listen(ctx, notify)
		if ctx.Err() != nil {
			return nil
		}
		repoLogger.Error().Err(err).Msg("Lost postgres notification connection, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (r *PostgresStore) listen(ctx context.Context, notify func(model.DocumentID, model.Version)) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changesChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	repoLogger.Info().Str("channel", changesChannel).Msg("Listening for scratchpad changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		id, version, err := parseChangeNotification(n.Payload)
		if err != nil {
			repoLogger.Warn().Err(err).Str("payload", n.Payload).Msg("Ignoring malformed notification")
			continue
		}
		notify(id, version)
	}
}

func parseChangeNotification(payload string) (model.DocumentID, model.Version, error) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("missing separator in %q", payload)
	}
	version, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid version in %q: %w", payload, err)
	}
	return model.DocumentID(payload[:i]), model.Version(version), nil
}
