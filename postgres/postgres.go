// Package postgres provides SQL-backed implementations of the weave store
// interfaces: checkpoints, approval requests and runs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open opens a postgres connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the weave tables if they do not exist. It is safe to
// call on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			workflow_id   TEXT        NOT NULL,
			checkpoint_id TEXT        NOT NULL,
			state         JSONB       NOT NULL,
			metadata      JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (workflow_id, checkpoint_id)
		)`,
		`CREATE INDEX IF NOT EXISTS workflow_checkpoints_created_at_idx
			ON workflow_checkpoints (workflow_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS approval_requests (
			id           TEXT        PRIMARY KEY,
			workflow_id  TEXT        NOT NULL,
			run_id       TEXT        NOT NULL,
			node_id      TEXT        NOT NULL DEFAULT '',
			request_type TEXT        NOT NULL,
			title        TEXT        NOT NULL DEFAULT '',
			description  TEXT        NOT NULL DEFAULT '',
			payload      JSONB,
			status       TEXT        NOT NULL,
			response     JSONB,
			created_at   TIMESTAMPTZ NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL,
			resolved_at  TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS approval_requests_pending_idx
			ON approval_requests (workflow_id, created_at DESC)
			WHERE status = 'pending'`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id           TEXT        PRIMARY KEY,
			workflow_id  TEXT        NOT NULL,
			status       TEXT        NOT NULL,
			input        JSONB,
			output       JSONB,
			log          JSONB,
			error        TEXT        NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS workflow_runs_created_at_idx
			ON workflow_runs (workflow_id, created_at DESC)`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
