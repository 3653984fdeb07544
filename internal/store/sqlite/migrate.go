package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maloquacious/taskflow/internal/schema"
	"github.com/maloquacious/taskflow/internal/store"
)

// Migrate applies every pending migration in ascending version order.
// It returns the versions applied by this call; none when already current.
func (s *SQLiteStore) Migrate(ctx context.Context) ([]int, error) {
	return s.MigrateTo(ctx, schema.Latest(s.migrations))
}

// MigrateTo applies pending migrations whose version does not exceed target.
// Each migration runs in its own transaction together with its tracking row,
// so a failure leaves the watermark at the last migration that committed.
func (s *SQLiteStore) MigrateTo(ctx context.Context, target int) ([]int, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := schema.Validate(s.migrations); err != nil {
		return nil, fmt.Errorf("invalid migration registry: %w", err)
	}
	if latest := schema.Latest(s.migrations); target > latest {
		return nil, fmt.Errorf("%w: target version %d is above latest %d", store.ErrInvalidArgument, target, latest)
	}

	if _, err := s.db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkDrift(applied); err != nil {
		return nil, err
	}

	watermark := watermarkOf(applied)
	var ran []int
	for _, m := range schema.Pending(s.migrations, watermark) {
		if m.Version > target {
			break
		}
		ok, err := s.apply(ctx, m)
		if err != nil {
			s.log.Error("migration failed", "version", m.Version, "description", m.Description, "error", err)
			return ran, &store.MigrationError{Version: m.Version, Description: m.Description, Err: err}
		}
		if !ok {
			s.log.Debug("migration already applied", "version", m.Version, "description", m.Description)
			continue
		}
		s.log.Info("applied migration", "version", m.Version, "description", m.Description)
		ran = append(ran, m.Version)
	}
	return ran, nil
}

// apply runs one migration and its tracking row in a single transaction.
// It reports false when another connection recorded the version first.
func (s *SQLiteStore) apply(ctx context.Context, m schema.Migration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The tracking row is written first so the write lock is held before the
	// DDL runs; a concurrent starter waits here and then sees the duplicate.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description, checksum, applied_at) VALUES (?, ?, ?, strftime('%s', 'now'))`,
		m.Version, m.Description, m.Checksum())
	if err != nil {
		if isDuplicateVersion(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record migration: %w", err)
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return false, fmt.Errorf("failed to execute migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// checkDrift refuses a file whose recorded history disagrees with the registry.
func (s *SQLiteStore) checkDrift(applied []store.AppliedMigration) error {
	latest := schema.Latest(s.migrations)
	recorded := make(map[int]bool, len(applied))
	for _, a := range applied {
		recorded[a.Version] = true
		if a.Version > latest {
			return fmt.Errorf("%w: database is at version %d, this build knows up to %d", store.ErrSchemaTooNew, a.Version, latest)
		}
		m, ok := schema.Find(s.migrations, a.Version)
		if !ok {
			return fmt.Errorf("%w: version %d (%s) is not in the registry", store.ErrSchemaDrift, a.Version, a.Description)
		}
		if m.Description != a.Description {
			return fmt.Errorf("%w: version %d recorded as %q, registry has %q", store.ErrSchemaDrift, a.Version, a.Description, m.Description)
		}
		if a.Checksum != m.Checksum() {
			return fmt.Errorf("%w: version %d (%s) was edited after it was applied", store.ErrSchemaDrift, a.Version, a.Description)
		}
	}

	watermark := watermarkOf(applied)
	for _, m := range s.migrations {
		if m.Version < watermark && !recorded[m.Version] {
			return fmt.Errorf("%w: version %d (%s) is below the watermark %d but was never applied", store.ErrSchemaDrift, m.Version, m.Description, watermark)
		}
	}
	return nil
}

func watermarkOf(applied []store.AppliedMigration) int {
	watermark := 0
	for _, a := range applied {
		if a.Version > watermark {
			watermark = a.Version
		}
	}
	return watermark
}

func (s *SQLiteStore) hasMigrationsTable(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}
	return count > 0, nil
}

// AppliedMigrations returns the tracking rows in ascending version order.
// A file without the tracking table has no applied migrations.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]store.AppliedMigration, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	exists, err := s.hasMigrationsTable(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version, description, checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var out []store.AppliedMigration
	for rows.Next() {
		var (
			a         store.AppliedMigration
			appliedAt int64
		)
		if err := rows.Scan(&a.Version, &a.Description, &a.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan applied migration: %w", err)
		}
		a.AppliedAt = time.Unix(appliedAt, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SchemaVersion returns the current watermark; 0 for a fresh file.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	exists, err := s.hasMigrationsTable(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return int(version.Int64), nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState(ctx context.Context) (store.StoreState, error) {
	if err := s.ready(); err != nil {
		return store.StateMissing, err
	}

	exists, err := s.hasMigrationsTable(ctx)
	if err != nil {
		return store.StateUninitialized, err
	}
	if !exists {
		return store.StateUninitialized, nil
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return store.StateUninitialized, err
	}
	if err := s.checkDrift(applied); err != nil {
		return store.StateVersionMismatch, nil
	}
	if watermarkOf(applied) < schema.Latest(s.migrations) {
		return store.StatePending, nil
	}
	return store.StateReady, nil
}

// Verify reports the schema state without changing the file.
func (s *SQLiteStore) Verify(ctx context.Context) (store.Report, error) {
	report := store.Report{
		Path:          s.dbPath,
		LatestVersion: schema.Latest(s.migrations),
	}

	state, err := s.CheckState(ctx)
	if err != nil {
		return report, err
	}
	report.State = state.String()

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return report, err
	}
	report.Applied = applied
	report.SchemaVersion = watermarkOf(applied)

	for _, m := range schema.Pending(s.migrations, report.SchemaVersion) {
		report.Pending = append(report.Pending, fmt.Sprintf("%d_%s", m.Version, m.Description))
	}

	tables, err := s.userTables(ctx)
	if err != nil {
		return report, err
	}
	report.Tables = tables
	return report, nil
}

// userTables lists application tables, excluding SQLite internals and the tracking table.
func (s *SQLiteStore) userTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.db.SelectContext(ctx, &tables, `
		SELECT name FROM sqlite_master
		 WHERE type = 'table'
		   AND name NOT LIKE 'sqlite_%'
		   AND name != 'schema_migrations'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}
