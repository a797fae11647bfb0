package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_users.up.sql
var usersMigrationSQL string

// EnsureSchema applies the embedded migration. The SQL only uses
// IF NOT EXISTS statements, so running it on every start is safe.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasUsersTable(ctx)
	if err != nil {
		return fmt.Errorf("check users table: %w", err)
	}
	if !exists {
		slog.Info("users table missing; applying migration 001")
	}

	if _, err := db.Pool.Exec(ctx, usersMigrationSQL); err != nil {
		return fmt.Errorf("apply users migration: %w", err)
	}

	slog.Info("database schema ensured")
	return nil
}

func (db *DB) hasUsersTable(ctx context.Context) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'users'
		)
	`).Scan(&exists)
	return exists, err
}
