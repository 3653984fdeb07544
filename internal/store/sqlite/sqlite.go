// Package sqlite implements the taskflow datastore on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/maloquacious/taskflow/internal/logger"
	"github.com/maloquacious/taskflow/internal/schema"
	"github.com/maloquacious/taskflow/internal/store"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// SQLiteStore implements the Store interface using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath      string
	db          *sqlx.DB
	migrations  []schema.Migration
	busyTimeout time.Duration
	log         logger.Logger
}

var _ store.Store = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithBusyTimeout sets how long a locked database is retried before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithLogger sets the logger used for migration progress.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a new SQLiteStore that will apply the given migrations.
func New(dbPath string, migrations []schema.Migration, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		dbPath:      dbPath,
		migrations:  migrations,
		busyTimeout: 5 * time.Second,
		log:         logger.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Open opens (creating if needed) the SQLite database with safe defaults.
func (s *SQLiteStore) Open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if _, err := store.CheckExists(s.dbPath); err != nil {
		return err
	}
	if dir := filepath.Dir(s.dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	// Apply safe defaults
	// busy_timeout first so the journal mode switch waits on a locked file
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s.db = sqlx.NewDb(db, driverName)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// DB exposes the query/execute handle to application code.
func (s *SQLiteStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLiteStore) ready() error {
	if s == nil || s.db == nil {
		return store.ErrNotOpen
	}
	return nil
}
