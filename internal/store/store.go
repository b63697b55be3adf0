// Package store persists items and chunks in SQLite, including the FTS5
// indexes used for lexical search.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db   *sqlx.DB
	path string
}

// New opens (and if needed creates) the database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, "later.db"))
}

// Open opens a database at an explicit path. Tests use a path under
// t.TempDir().
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "no such module: fts5") {
			return nil, fmt.Errorf("failed to initialize database (build with -tags sqlite_fts5): %w", err)
		}
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			url TEXT NOT NULL,
			canonical_url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			source_site TEXT NOT NULL DEFAULT '',
			favicon_url TEXT NOT NULL DEFAULT '',
			publication_date DATETIME,
			content_markdown TEXT NOT NULL DEFAULT '',
			content_text TEXT NOT NULL DEFAULT '',
			content_token_count INTEGER NOT NULL DEFAULT 0,
			client_status TEXT NOT NULL,
			server_status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			expiry_score REAL NOT NULL DEFAULT 0.5,
			embedding TEXT,
			client_status_at DATETIME NOT NULL,
			server_status_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_user_url
			ON items (user_id, url)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_user_canonical
			ON items (user_id, canonical_url) WHERE canonical_url != ''`,
		`CREATE INDEX IF NOT EXISTS idx_items_user_created
			ON items (user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS chunks (
			item_id TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			content_text TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding TEXT NOT NULL,
			PRIMARY KEY (item_id, position)
		)`,

		// fts5 requires building with -tags sqlite_fts5 (see Makefile)
		`CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			title, summary, content_text,
			content='items', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS items_fts_insert AFTER INSERT ON items BEGIN
			INSERT INTO items_fts (rowid, title, summary, content_text)
			VALUES (new.rowid, new.title, new.summary, new.content_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS items_fts_delete AFTER DELETE ON items BEGIN
			INSERT INTO items_fts (items_fts, rowid, title, summary, content_text)
			VALUES ('delete', old.rowid, old.title, old.summary, old.content_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS items_fts_update AFTER UPDATE ON items BEGIN
			INSERT INTO items_fts (items_fts, rowid, title, summary, content_text)
			VALUES ('delete', old.rowid, old.title, old.summary, old.content_text);
			INSERT INTO items_fts (rowid, title, summary, content_text)
			VALUES (new.rowid, new.title, new.summary, new.content_text);
		END`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content_text,
			content='chunks', content_rowid='rowid'
		)`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts (rowid, content_text)
			VALUES (new.rowid, new.content_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts (chunks_fts, rowid, content_text)
			VALUES ('delete', old.rowid, old.content_text);
		END`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

func marshalVector(vec []float64) (string, error) {
	if vec == nil {
		return "", nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(data), nil
}

func unmarshalVector(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var vec []float64
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return vec, nil
}
