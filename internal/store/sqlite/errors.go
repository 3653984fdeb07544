package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maloquacious/taskflow/internal/store"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// classifyConstraint maps a constraint failure that reached SQLite to a store error.
// It returns nil for anything that is not a constraint failure.
func classifyConstraint(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", store.ErrProjectNotFound, err)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
		}
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "foreign key constraint failed"):
		return fmt.Errorf("%w: %v", store.ErrProjectNotFound, err)
	case strings.Contains(message, "check constraint failed"),
		strings.Contains(message, "not null constraint failed"):
		return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}
	return nil
}

// isDuplicateVersion reports whether an insert into schema_migrations hit an
// existing version.
func isDuplicateVersion(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed: schema_migrations.version")
}
