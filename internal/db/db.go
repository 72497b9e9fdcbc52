// Package db provides the centralized database connection and schema for glowd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Sync state - a single row holding fetch mode, custom locator and the
	// last attempt timestamp. Recreated with defaults if it goes missing.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			fetch_mode TEXT NOT NULL,
			custom_url TEXT NOT NULL DEFAULT '',
			last_attempt_at INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_state table: %w", err)
	}

	// Sync attempts - append-only history of catalog sync attempts for
	// auditing and the status surface.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_attempts (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			source TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sync_attempts_started ON sync_attempts(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_attempts table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
