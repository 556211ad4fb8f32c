package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// Migration is a single schema change, applied once and recorded by ID
type Migration struct {
	ID  int
	Up  func(ctx context.Context, tx *sql.Tx) error
	Doc string
}

// migrations are applied in slice order; never renumber or edit an applied one
var migrations = []Migration{
	{
		ID:  1,
		Doc: "create documents table",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS documents (
					id TEXT NOT NULL,
					collection TEXT NOT NULL,
					content_hash TEXT NOT NULL,
					type TEXT NOT NULL DEFAULT '',
					subject TEXT NOT NULL DEFAULT '',
					sender_name TEXT NOT NULL DEFAULT '',
					folder_path TEXT NOT NULL DEFAULT '',
					ingested_at TEXT NOT NULL,
					PRIMARY KEY (collection, id)
				)
			`)
			return err
		},
	},
	{
		ID:  2,
		Doc: "index content hashes per collection",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS documents_collection_hash
				ON documents (collection, content_hash)
			`)
			return err
		},
	},
}

// ApplyMigrations applies all pending migrations, each in its own transaction
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *log.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		logger.Info("Applying migration", "id", m.ID, "doc", m.Doc)
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.ID, err)
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan migration id: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (id) VALUES (?)`, m.ID); err != nil {
		return err
	}
	return tx.Commit()
}
