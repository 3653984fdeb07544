// Package schema holds the migration registry for the taskflow database.
//
// The registry is data, not code: an ordered list of versioned records that a
// storage implementation applies. Shipped records are never edited; new schema
// changes are appended with a higher version.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Kind is the direction of a migration.
type Kind int

const (
	KindUp   Kind = iota + 1 // forward
	KindDown                 // reserved; not shipped
)

func (k Kind) String() string {
	switch k {
	case KindUp:
		return "up"
	case KindDown:
		return "down"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	Kind        Kind
	SQL         string
}

// Checksum is the hex SHA-256 of the statement text. A recorded checksum that
// no longer matches means a shipped migration was edited.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

var (
	ErrInvalidVersion   = errors.New("invalid migration version")
	ErrVersionOrder     = errors.New("migration versions must be strictly increasing")
	ErrEmptyDescription = errors.New("migration description is required")
	ErrEmptyStatement   = errors.New("migration statement is required")
	ErrUnsupportedKind  = errors.New("unsupported migration kind")
)

// registry is the shipped migration list. Append only.
var registry = []Migration{
	{
		Version:     1,
		Description: "create_projects_table",
		Kind:        KindUp,
		SQL: `CREATE TABLE projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    description TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "create_tasks_table",
		Kind:        KindUp,
		SQL: `CREATE TABLE tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER REFERENCES projects(id),
    name TEXT NOT NULL,
    description TEXT,
    status TEXT CHECK(status IN ('not_started', 'in_progress', 'completed', 'blocked')) DEFAULT 'not_started',
    priority TEXT CHECK(priority IN ('low', 'medium', 'high', 'critical')) DEFAULT 'medium',
    start_date DATE,
    end_date DATE,
    duration_days INTEGER,
    position_x REAL DEFAULT 100,
    position_y REAL DEFAULT 100,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
}

// Migrations returns a copy of the shipped migrations in ascending version order.
func Migrations() []Migration {
	out := make([]Migration, len(registry))
	copy(out, registry)
	return out
}

// Validate checks that a migration list can be applied in order.
// Gaps between versions are allowed; duplicates are not.
func Validate(migrations []Migration) error {
	prev := 0
	for i, m := range migrations {
		if m.Version < 1 {
			return fmt.Errorf("migration #%d: %w: %d", i, ErrInvalidVersion, m.Version)
		}
		if m.Version <= prev {
			return fmt.Errorf("migration %d after %d: %w", m.Version, prev, ErrVersionOrder)
		}
		if strings.TrimSpace(m.Description) == "" {
			return fmt.Errorf("migration %d: %w", m.Version, ErrEmptyDescription)
		}
		if strings.TrimSpace(m.SQL) == "" {
			return fmt.Errorf("migration %d: %w", m.Version, ErrEmptyStatement)
		}
		if m.Kind != KindUp {
			return fmt.Errorf("migration %d: %w: %s", m.Version, ErrUnsupportedKind, m.Kind)
		}
		prev = m.Version
	}
	return nil
}

// Latest returns the highest version in the list, or 0 if it is empty.
func Latest(migrations []Migration) int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// Pending returns the migrations above the watermark, in list order.
func Pending(migrations []Migration, watermark int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > watermark {
			out = append(out, m)
		}
	}
	return out
}

// Find returns the migration with the given version.
func Find(migrations []Migration, version int) (Migration, bool) {
	for _, m := range migrations {
		if m.Version == version {
			return m, true
		}
	}
	return Migration{}, false
}
