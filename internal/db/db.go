// Package db keeps a SQLite ledger of every email stored in the vector index,
// so reloads can skip unchanged documents and collections can be summarised
// without scanning the index.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const fileName = "emails.db"

// DB represents a SQLite database connection
type DB struct {
	db     *sql.DB
	logger *log.Logger
}

// Record is one ingested email as tracked by the ledger
type Record struct {
	ID          string
	Collection  string
	ContentHash string
	Type        string
	Subject     string
	SenderName  string
	FolderPath  string
	IngestedAt  time.Time
}

// FolderCount is the number of emails ingested from a folder
type FolderCount struct {
	Folder string `json:"folder" yaml:"folder"`
	Count  int    `json:"count" yaml:"count"`
}

// Stats summarises a collection
type Stats struct {
	Collection   string        `json:"collection" yaml:"collection"`
	Total        int           `json:"total" yaml:"total"`
	Folders      []FolderCount `json:"folders" yaml:"folders"`
	LastIngested *time.Time    `json:"last_ingested,omitempty" yaml:"last_ingested,omitempty"`
}

// New opens (creating if needed) the ledger in dataDir and applies migrations
func New(ctx context.Context, dataDir string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, fileName)
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set database pragmas: %w", err)
	}

	if err := ApplyMigrations(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Debug("Opened ledger", "path", dbPath)
	return &DB{db: conn, logger: logger}, nil
}

// Store records a batch of ingested emails in one transaction.
// Re-storing an id in the same collection replaces the old row.
func (d *DB) Store(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (
			id, collection, content_hash, type, subject, sender_name, folder_path, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		ingested := r.IngestedAt
		if ingested.IsZero() {
			ingested = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Collection, r.ContentHash, r.Type, r.Subject, r.SenderName, r.FolderPath,
			ingested.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to store document %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}
	d.logger.Debug("Stored documents in ledger", "count", len(records))
	return nil
}

// FilterExisting returns the records whose content hash is not yet recorded
// for their collection, keeping input order
func (d *DB) FilterExisting(ctx context.Context, records []Record) ([]Record, error) {
	var filtered []Record
	for _, r := range records {
		exists, err := d.Has(ctx, r.Collection, r.ContentHash)
		if err != nil {
			return nil, err
		}
		if !exists {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Has reports whether content with the given hash was ingested into collection
func (d *DB) Has(ctx context.Context, collection, contentHash string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM documents WHERE collection = ? AND content_hash = ?)
	`, collection, contentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document existence: %w", err)
	}
	return exists, nil
}

// Collections returns the collections the ledger knows about, sorted by name
func (d *DB) Collections(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collections: %w", err)
	}
	return names, nil
}

// Stats counts the documents in a collection, broken down by folder
func (d *DB) Stats(ctx context.Context, collection string) (Stats, error) {
	stats := Stats{Collection: collection, Folders: []FolderCount{}}

	var last sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(ingested_at) FROM documents WHERE collection = ?
	`, collection).Scan(&stats.Total, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count documents: %w", err)
	}
	if last.Valid && last.String != "" {
		if t, err := time.Parse(time.RFC3339, last.String); err == nil {
			stats.LastIngested = &t
		} else {
			d.logger.Warn("Failed to parse ingestion time", "value", last.String, "error", err)
		}
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT folder_path, COUNT(*) AS count
		FROM documents
		WHERE collection = ?
		GROUP BY folder_path
		ORDER BY count DESC, folder_path ASC
	`, collection)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fc FolderCount
		if err := rows.Scan(&fc.Folder, &fc.Count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan folder row: %w", err)
		}
		if strings.TrimSpace(fc.Folder) == "" {
			fc.Folder = "(none)"
		}
		stats.Folders = append(stats.Folders, fc)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("error iterating folders: %w", err)
	}
	return stats, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
