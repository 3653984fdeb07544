// Package app owns the process lifecycle: one Initialize per process, one Shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maloquacious/taskflow/internal/config"
	"github.com/maloquacious/taskflow/internal/logger"
	"github.com/maloquacious/taskflow/internal/schema"
	"github.com/maloquacious/taskflow/internal/store"
	"github.com/maloquacious/taskflow/internal/store/sqlite"
)

// App is a running application: an open, fully migrated datastore.
type App struct {
	store      *sqlite.SQLiteStore
	log        logger.Logger
	instanceID string
	startedAt  time.Time

	closeOnce sync.Once
	closeErr  error
}

// DBPath resolves the database file from configuration.
func DBPath(cfg *config.Config) string {
	return store.GetDBPath(cfg.Database.Dir, cfg.Database.Path)
}

// Initialize opens the datastore and applies pending migrations.
// Any error is a fatal startup failure; nothing is left open.
func Initialize(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.Discard
	}

	id := uuid.NewString()
	log = log.With("instance", id)
	path := DBPath(cfg)

	s := sqlite.New(path, schema.Migrations(),
		sqlite.WithBusyTimeout(cfg.Database.BusyTimeout()),
		sqlite.WithLogger(log),
	)
	if err := s.Open(ctx); err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	ran, err := s.Migrate(ctx)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database %s: %w", path, err)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	log.Info("database ready", "path", path, "schema_version", version, "applied", len(ran))

	return &App{
		store:      s,
		log:        log,
		instanceID: id,
		startedAt:  time.Now().UTC(),
	}, nil
}

// Store returns the datastore handle for application code.
func (a *App) Store() store.Store {
	return a.store
}

// InstanceID identifies this process run in logs and status output.
func (a *App) InstanceID() string {
	return a.instanceID
}

// StartedAt is when Initialize completed.
func (a *App) StartedAt() time.Time {
	return a.startedAt
}

// Logger returns the instance-scoped logger.
func (a *App) Logger() logger.Logger {
	return a.log
}

// Shutdown closes the datastore. It is safe to call more than once.
func (a *App) Shutdown() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.store.Close()
		a.log.Info("database closed")
	})
	return a.closeErr
}
