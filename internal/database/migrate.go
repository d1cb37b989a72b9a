package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT,
		model TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Processing',
		input_url TEXT,
		output_url TEXT,
		external_task_id TEXT NOT NULL DEFAULT '',
		error_msg TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_external ON tasks (model, external_task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS credit_accounts (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		credit BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS credit_entries (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		task_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		kind TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (task_id, kind)
	)`,
}

// Migrate applies the schema. Statements are idempotent so the command can
// run on every deploy.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
