// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the audit schema on first use

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id   TEXT NOT NULL UNIQUE,
			agent_id   TEXT NOT NULL,
			event      TEXT NOT NULL,
			state      TEXT NOT NULL,
			session    TEXT,
			soft       INTEGER NOT NULL DEFAULT 0,
			ts         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_events_agent
			ON session_events(agent_id, seq);

		CREATE TABLE IF NOT EXISTS reloads (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			reload_id    TEXT NOT NULL UNIQUE,
			source       TEXT NOT NULL,
			trigger_name TEXT NOT NULL,
			success      INTEGER NOT NULL,
			error        TEXT,
			definitions  INTEGER NOT NULL DEFAULT 0,
			added        INTEGER NOT NULL DEFAULT 0,
			kept         INTEGER NOT NULL DEFAULT 0,
			resurrected  INTEGER NOT NULL DEFAULT 0,
			removed      INTEGER NOT NULL DEFAULT 0,
			deferred     INTEGER NOT NULL DEFAULT 0,
			skipped_json TEXT,
			duration_ms  INTEGER NOT NULL DEFAULT 0,
			ts           TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
