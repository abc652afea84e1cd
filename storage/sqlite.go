package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reactor_state (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

type sqliteConfig struct {
	busyTimeout time.Duration
	autoMigrate bool
}

// SQLiteOption configures a SQLite store
type SQLiteOption func(*sqliteConfig)

// WithBusyTimeout sets the SQLite busy timeout (default 5s).
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(c *sqliteConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithoutMigration disables automatic schema creation on open.
func WithoutMigration() SQLiteOption {
	return func(c *sqliteConfig) { c.autoMigrate = false }
}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB

	getStmt    *sql.Stmt
	setStmt    *sql.Stmt
	removeStmt *sql.Stmt
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (and, unless disabled, migrates) a SQLite-backed store at
// path. Use ":memory:" for an in-memory database.
func NewSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	// Prevent URI parameter injection through the path
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	cfg := sqliteConfig{busyTimeout: 5 * time.Second, autoMigrate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var dsn string
	if path == ":memory:" {
		// Shared cache keeps every pooled connection on the same database
		dsn = "file::memory:?mode=memory&cache=shared"
	} else {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d", path, cfg.busyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	if err := applyPragmas(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply pragmas: %w", err)
	}

	if cfg.autoMigrate {
		if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}
	return s, nil
}

func applyPragmas(db *sql.DB, cfg sqliteConfig) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds()),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) prepareStatements() error {
	type stmtDef struct {
		dest **sql.Stmt
		sql  string
	}

	stmts := []stmtDef{
		{&s.getStmt, "SELECT value FROM reactor_state WHERE key = ?"},
		{&s.setStmt, `INSERT INTO reactor_state (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`},
		{&s.removeStmt, "DELETE FROM reactor_state WHERE key = ?"},
	}

	for _, def := range stmts {
		stmt, err := s.db.Prepare(def.sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		*def.dest = stmt
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *SQLite) Get(key string) ([]byte, error) {
	var value []byte
	err := s.getStmt.QueryRow(key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, overwriting any previous value.
func (s *SQLite) Set(key string, value []byte) error {
	if _, err := s.setStmt.Exec(key, value); err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, err)
	}
	return nil
}

// Remove deletes the value stored under key.
func (s *SQLite) Remove(key string) error {
	result, err := s.removeStmt.Exec(key)
	if err != nil {
		return fmt.Errorf("sqlite: remove %q: %w", key, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection and releases resources. Prepared
// statement close errors are ignored; the driver handles cleanup when the
// connection closes.
func (s *SQLite) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.setStmt, s.removeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}
