package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotOpen         = errors.New("database not opened")
	ErrProjectNotFound = errors.New("project not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaTooNew means the file was migrated by a newer build.
	ErrSchemaTooNew = errors.New("database schema is newer than this build")
	// ErrSchemaDrift means a recorded migration no longer matches the registry.
	ErrSchemaDrift = errors.New("recorded migration does not match registry")
)

// MigrationError reports a migration that could not be applied.
// Earlier migrations in the same run stay applied.
type MigrationError struct {
	Version     int
	Description string
	Err         error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// invalid wraps ErrInvalidArgument with a field-specific message.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
