// Package store persists dmscout's dataset in SQLite: account sessions,
// conversations, participants, memberships, send records, and raw
// capture archives. Per-identifier upserts are single atomic statements
// so independent runs against the same database never interleave
// partial writes.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dmscout/internal/logging"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding the scraped dataset.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("Store ready (accounts, conversations, participants, memberships, send_records, raw_captures)")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			username   TEXT PRIMARY KEY,
			cookies    TEXT NOT NULL DEFAULT '[]',
			tokens     TEXT NOT NULL DEFAULT '{}',
			proxy      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			account_username  TEXT NOT NULL DEFAULT '',
			name              TEXT NOT NULL DEFAULT '',
			create_time       INTEGER NOT NULL DEFAULT 0,
			creator_id        TEXT NOT NULL DEFAULT '',
			trust             TEXT NOT NULL DEFAULT 'unknown',
			participant_count INTEGER NOT NULL DEFAULT 0,
			source            TEXT NOT NULL DEFAULT '',
			custom_messages   TEXT NOT NULL DEFAULT '[]',
			first_seen        INTEGER NOT NULL,
			last_seen         INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_account ON conversations(account_username);
		CREATE INDEX IF NOT EXISTS idx_conversations_trust ON conversations(trust);`,

		`CREATE TABLE IF NOT EXISTS participants (
			id           TEXT PRIMARY KEY,
			screen_name  TEXT NOT NULL DEFAULT 'unknown',
			name         TEXT NOT NULL DEFAULT 'unknown',
			description  TEXT NOT NULL DEFAULT 'unknown',
			avatar_url   TEXT NOT NULL DEFAULT 'unknown',
			followers    INTEGER NOT NULL DEFAULT -1,
			following    INTEGER NOT NULL DEFAULT -1,
			posts        INTEGER NOT NULL DEFAULT -1,
			first_seen   INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS memberships (
			conversation_id TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			join_time       INTEGER NOT NULL DEFAULT 0,
			role            TEXT NOT NULL DEFAULT 'member',
			last_confirmed  INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships(user_id);`,

		`CREATE TABLE IF NOT EXISTS send_records (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			template        TEXT NOT NULL,
			outcome         TEXT NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_send_records_conversation ON send_records(conversation_id);`,

		`CREATE TABLE IF NOT EXISTS raw_captures (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           TEXT NOT NULL,
			account_username TEXT NOT NULL,
			url              TEXT NOT NULL,
			body             TEXT NOT NULL,
			captured_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_raw_captures_run ON raw_captures(run_id);`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}
