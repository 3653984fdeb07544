package store

import (
	"context"
	"time"
)

// StoreState represents the initialization state of the datastore.
type StoreState int

const (
	StateMissing         StoreState = iota // File doesn't exist
	StateUninitialized                     // File exists but no schema
	StatePending                           // Schema behind the registry
	StateVersionMismatch                   // Schema ahead of or diverged from the registry
	StateReady                             // Fully migrated
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StatePending:
		return "pending"
	case StateVersionMismatch:
		return "version_mismatch"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// AppliedMigration is one row of the migration tracking table.
type AppliedMigration struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Checksum    string    `json:"checksum"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Report summarizes a schema verification.
type Report struct {
	Path          string             `json:"path"`
	State         string             `json:"state"`
	SchemaVersion int                `json:"schema_version"`
	LatestVersion int                `json:"latest_version"`
	Applied       []AppliedMigration `json:"applied"`
	Pending       []string           `json:"pending,omitempty"`
	Tables        []string           `json:"tables"`
}

// Migrator is the schema half of the datastore contract.
type Migrator interface {
	// Migrate applies every pending migration and returns the ones it ran.
	Migrate(ctx context.Context) ([]int, error)

	// MigrateTo applies pending migrations up to and including target.
	MigrateTo(ctx context.Context, target int) ([]int, error)

	// SchemaVersion returns the watermark: the highest applied version.
	SchemaVersion(ctx context.Context) (int, error)

	// CheckState returns the current state of the datastore
	CheckState(ctx context.Context) (StoreState, error)

	// Verify reports on the schema without changing it.
	Verify(ctx context.Context) (Report, error)
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, in ProjectInput) (Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	UpdateProject(ctx context.Context, id int64, in ProjectInput) (Project, error)
	DeleteProject(ctx context.Context, id int64) error
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, in TaskInput) (Task, error)
	GetTask(ctx context.Context, id int64) (Task, error)
	ListTasks(ctx context.Context, projectID int64) ([]Task, error)
	UpdateTask(ctx context.Context, id int64, in TaskInput) (Task, error)
	UpdateTaskPosition(ctx context.Context, id int64, x, y float64) error
	DeleteTask(ctx context.Context, id int64) error
}

// Store defines the taskflow datastore contract.
// Implementations must be safe for concurrent use.
type Store interface {
	Migrator
	ProjectStore
	TaskStore

	// Open opens the datastore connection
	Open(ctx context.Context) error

	// Close closes the datastore connection
	Close() error
}
