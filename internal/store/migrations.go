package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all journal tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id              TEXT PRIMARY KEY,
		item_ids        TEXT NOT NULL,
		priority        TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'PENDING',
		created_at      TEXT NOT NULL,
		last_updated_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS batches (
		id            TEXT PRIMARY KEY,
		submission_id TEXT NOT NULL REFERENCES submissions(id),
		seq           INTEGER NOT NULL,
		item_ids      TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'PENDING',
		results       TEXT NOT NULL DEFAULT '{}',
		error         TEXT NOT NULL DEFAULT '',
		started_at    TEXT,
		completed_at  TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_submission_id ON batches(submission_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
