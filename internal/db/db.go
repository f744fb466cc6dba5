// Package db stores run history in PostgreSQL.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool abstracts *pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool   DBPool
	logger *zap.Logger
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string, logger *zap.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// New wraps an existing pool after pinging it.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*DB, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool, logger: logger.Named("db")}, nil
}

// Close releases the pool.
func (d *DB) Close() {
	d.pool.Close()
}

// ErrNotFound is returned when a run is not stored.
var ErrNotFound = errors.New("run not found")

// Pool returns the underlying pool for read-only reporting queries.
func (d *DB) Pool() DBPool {
	return d.pool
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
    run_id           TEXT PRIMARY KEY,
    repo_url         TEXT NOT NULL,
    team_name        TEXT NOT NULL,
    leader_name      TEXT NOT NULL,
    branch_name      TEXT NOT NULL DEFAULT '',
    commit_sha       TEXT NOT NULL DEFAULT '',
    pr_url           TEXT NOT NULL DEFAULT '',
    language         TEXT NOT NULL DEFAULT 'unknown',
    status           TEXT NOT NULL CHECK(status IN ('success','partial','failed','running')),
    started_at       TIMESTAMPTZ NOT NULL,
    finished_at      TIMESTAMPTZ NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    retry_limit      INTEGER NOT NULL DEFAULT 0,
    total_tests      INTEGER NOT NULL DEFAULT 0,
    tests_passed     INTEGER NOT NULL DEFAULT 0,
    tests_failed     INTEGER NOT NULL DEFAULT 0,
    fixes_applied    INTEGER NOT NULL DEFAULT 0,
    total_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
    cicd_status      TEXT NOT NULL DEFAULT '',
    error_message    TEXT,
    record           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_language ON runs(language, status);

CREATE TABLE IF NOT EXISTS pipeline_events (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL,
    event       TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_run ON pipeline_events(run_id, id);
`

// Migrate applies the database schema.
func (d *DB) Migrate(ctx context.Context) error {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer d.rollback(ctx, tx)

	if _, err := tx.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	d.logger.Info("schema applied", zap.Int("version", 1))
	return nil
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	tables := []string{"pipeline_events", "runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}

func (d *DB) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		d.logger.Error("rollback failed", zap.Error(err))
	}
}
