package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	// DefaultSQLiteFile is the database file name inside the data directory.
	DefaultSQLiteFile  = "autoreply.db"
	defaultBusyTimeout = 5000
	schemaVersion      = 1
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scopes (
		scope_key  TEXT PRIMARY KEY,
		record     TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string
	// WAL enables write-ahead logging. Nil means enabled.
	WAL *bool
	// BusyTimeout is in milliseconds. Zero means 5000.
	BusyTimeout int
}

// SQLite stores one row per scope holding the record JSON. Each flush
// rewrites the table in a single transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates) the database and migrates its schema.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	if cfg.BusyTimeout < 0 {
		return nil, fmt.Errorf("settings: busy_timeout must be non-negative, got %d", cfg.BusyTimeout)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("settings: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("settings: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if cfg.WAL == nil || *cfg.WAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("settings: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("settings: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("settings: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("settings: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("settings: migrate: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("settings: record schema version: %w", err)
	}
	return nil
}

// Load reads every row.
func (s *SQLite) Load(ctx context.Context) (Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT scope_key, record FROM scopes")
	if err != nil {
		return nil, fmt.Errorf("settings: load scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	doc := Document{}
	for rows.Next() {
		var key, record string
		if err := rows.Scan(&key, &record); err != nil {
			return nil, fmt.Errorf("settings: scan scope: %w", err)
		}
		doc[ScopeKey(key)] = json.RawMessage(record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: load scopes rows: %w", err)
	}
	return doc, nil
}

// Flush replaces the table contents with doc.
func (s *SQLite) Flush(ctx context.Context, doc Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settings: begin flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM scopes"); err != nil {
		return fmt.Errorf("settings: clear scopes: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO scopes (scope_key, record) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("settings: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, key := range doc.sortedKeys() {
		if _, err := stmt.ExecContext(ctx, string(key), string(doc[key])); err != nil {
			return fmt.Errorf("settings: insert scope %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settings: commit flush: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
