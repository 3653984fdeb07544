package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/taskflow/internal/schema"
	"github.com/maloquacious/taskflow/internal/store"
)

type columnInfo struct {
	Name    string
	Type    string
	NotNull bool
	Default sql.NullString
	PK      bool
}

func openStore(t *testing.T, path string, migrations []schema.Migration) *SQLiteStore {
	t.Helper()
	s := New(path, migrations)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), store.DefaultDBFile)
}

func tableInfo(t *testing.T, s *SQLiteStore, table string) []columnInfo {
	t.Helper()
	rows, err := s.DB().Query(`PRAGMA table_info(` + table + `)`)
	require.NoError(t, err)
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid     int
			c       columnInfo
			notNull int
			pk      int
		)
		require.NoError(t, rows.Scan(&cid, &c.Name, &c.Type, &notNull, &c.Default, &pk))
		c.NotNull = notNull != 0
		c.PK = pk != 0
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())
	return cols
}

func tableSQL(t *testing.T, s *SQLiteStore, table string) string {
	t.Helper()
	var ddl string
	require.NoError(t, s.DB().QueryRow(`SELECT sql FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&ddl))
	return ddl
}

func def(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}

func TestMigrateFreshFileCreatesSchema(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDBPath(t), schema.Migrations())

	ran, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ran)

	tables, err := s.userTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"projects", "tasks"}, tables)

	assert.Equal(t, []columnInfo{
		{Name: "id", Type: "INTEGER", PK: true},
		{Name: "name", Type: "TEXT", NotNull: true},
		{Name: "description", Type: "TEXT"},
		{Name: "created_at", Type: "DATETIME", Default: def("CURRENT_TIMESTAMP")},
		{Name: "updated_at", Type: "DATETIME", Default: def("CURRENT_TIMESTAMP")},
	}, tableInfo(t, s, "projects"))

	assert.Equal(t, []columnInfo{
		{Name: "id", Type: "INTEGER", PK: true},
		{Name: "project_id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT", NotNull: true},
		{Name: "description", Type: "TEXT"},
		{Name: "status", Type: "TEXT", Default: def("'not_started'")},
		{Name: "priority", Type: "TEXT", Default: def("'medium'")},
		{Name: "start_date", Type: "DATE"},
		{Name: "end_date", Type: "DATE"},
		{Name: "duration_days", Type: "INTEGER"},
		{Name: "position_x", Type: "REAL", Default: def("100")},
		{Name: "position_y", Type: "REAL", Default: def("100")},
		{Name: "created_at", Type: "DATETIME", Default: def("CURRENT_TIMESTAMP")},
		{Name: "updated_at", Type: "DATETIME", Default: def("CURRENT_TIMESTAMP")},
	}, tableInfo(t, s, "tasks"))

	ddl := tableSQL(t, s, "tasks")
	assert.Contains(t, ddl, "CHECK(status IN ('not_started', 'in_progress', 'completed', 'blocked'))")
	assert.Contains(t, ddl, "CHECK(priority IN ('low', 'medium', 'high', 'critical'))")
	assert.Contains(t, ddl, "REFERENCES projects(id)")

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestMigrateTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)
	s := openStore(t, path, schema.Migrations())

	_, err := s.Migrate(ctx)
	require.NoError(t, err)

	ran, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	// a new process against the same file
	require.NoError(t, s.Close())
	reopened := openStore(t, path, schema.Migrations())
	ran, err = reopened.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	applied, err := reopened.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "create_projects_table", applied[0].Description)
	assert.Equal(t, "create_tasks_table", applied[1].Description)
	assert.False(t, applied[0].AppliedAt.IsZero())
}

func TestMigrateIncrementalMatchesOnePass(t *testing.T) {
	ctx := context.Background()

	onePass := openStore(t, tempDBPath(t), schema.Migrations())
	_, err := onePass.Migrate(ctx)
	require.NoError(t, err)

	stepped := openStore(t, tempDBPath(t), schema.Migrations())
	ran, err := stepped.MigrateTo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ran)

	state, err := stepped.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatePending, state)

	ran, err = stepped.MigrateTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ran)

	for _, table := range []string{"projects", "tasks"} {
		assert.Equal(t, tableInfo(t, onePass, table), tableInfo(t, stepped, table), table)
		assert.Equal(t, tableSQL(t, onePass, table), tableSQL(t, stepped, table), table)
	}
}

func TestMigrateToRejectsUnknownTarget(t *testing.T) {
	s := openStore(t, tempDBPath(t), schema.Migrations())
	_, err := s.MigrateTo(context.Background(), 3)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestMigrateFailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)
	good := schema.Migrations()

	broken := []schema.Migration{
		good[0],
		{Version: 2, Description: "create_tasks_table", Kind: schema.KindUp, SQL: "CREAT TABLE tasks (id INTEGER);"},
	}
	s := openStore(t, path, broken)
	ran, err := s.Migrate(ctx)
	require.Error(t, err)
	assert.Equal(t, []int{1}, ran)

	var migErr *store.MigrationError
	require.True(t, errors.As(err, &migErr))
	assert.Equal(t, 2, migErr.Version)
	assert.Equal(t, "create_tasks_table", migErr.Description)

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	require.NoError(t, s.Close())

	fixed := openStore(t, path, good)
	ran, err = fixed.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ran)
}

func TestMigrateRefusesNewerDatabase(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	current := openStore(t, path, schema.Migrations())
	_, err := current.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, current.Close())

	older := openStore(t, path, schema.Migrations()[:1])
	_, err = older.Migrate(ctx)
	assert.ErrorIs(t, err, store.ErrSchemaTooNew)

	state, err := older.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateVersionMismatch, state)
}

func TestMigrateRefusesEditedMigration(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	current := openStore(t, path, schema.Migrations())
	_, err := current.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, current.Close())

	edited := schema.Migrations()
	edited[0].Description = "create_projects_table_v2"
	s := openStore(t, path, edited)
	_, err = s.Migrate(ctx)
	assert.ErrorIs(t, err, store.ErrSchemaDrift)
}

func TestMigrateRefusesEditedStatement(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	current := openStore(t, path, schema.Migrations())
	_, err := current.Migrate(ctx)
	require.NoError(t, err)

	applied, err := current.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, schema.Migrations()[0].Checksum(), applied[0].Checksum)
	require.NoError(t, current.Close())

	edited := schema.Migrations()
	edited[0].SQL = "CREATE TABLE projects (id INTEGER PRIMARY KEY, title TEXT);"
	s := openStore(t, path, edited)
	_, err = s.Migrate(ctx)
	assert.ErrorIs(t, err, store.ErrSchemaDrift)

	state, err := s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateVersionMismatch, state)
}

func TestApplySkipsVersionRecordedElsewhere(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	// both processes read watermark 0 before either applies anything
	early := openStore(t, path, schema.Migrations())
	late := openStore(t, path, schema.Migrations())
	_, err := late.DB().ExecContext(ctx, migrationsTable)
	require.NoError(t, err)

	_, err = early.Migrate(ctx)
	require.NoError(t, err)

	ok, err := late.apply(ctx, schema.Migrations()[0])
	require.NoError(t, err)
	assert.False(t, ok)

	applied, err := late.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
}

func TestConcurrentMigrateOnFreshFile(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	stores := []*SQLiteStore{
		openStore(t, path, schema.Migrations()),
		openStore(t, path, schema.Migrations()),
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(stores))
		runs = make([][]int, len(stores))
	)
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *SQLiteStore) {
			defer wg.Done()
			runs[i], errs[i] = s.Migrate(ctx)
		}(i, s)
	}
	wg.Wait()

	for i := range stores {
		require.NoError(t, errs[i], "store %d", i)
	}
	assert.ElementsMatch(t, []int{1, 2}, append(append([]int{}, runs[0]...), runs[1]...))

	state, err := stores[0].CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)
}

func TestMigrateRefusesInsertedMigration(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	gapped := []schema.Migration{
		{Version: 1, Description: "create_projects_table", Kind: schema.KindUp, SQL: schema.Migrations()[0].SQL},
		{Version: 3, Description: "create_tasks_table", Kind: schema.KindUp, SQL: schema.Migrations()[1].SQL},
	}
	first := openStore(t, path, gapped)
	_, err := first.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	inserted := []schema.Migration{
		gapped[0],
		{Version: 2, Description: "late_addition", Kind: schema.KindUp, SQL: "CREATE TABLE late (id INTEGER);"},
		gapped[1],
	}
	s := openStore(t, path, inserted)
	_, err = s.Migrate(ctx)
	assert.ErrorIs(t, err, store.ErrSchemaDrift)
}

func TestMigrateRejectsInvalidRegistry(t *testing.T) {
	dup := []schema.Migration{
		{Version: 1, Description: "a", Kind: schema.KindUp, SQL: "CREATE TABLE a (id INTEGER);"},
		{Version: 1, Description: "b", Kind: schema.KindUp, SQL: "CREATE TABLE b (id INTEGER);"},
	}
	s := openStore(t, tempDBPath(t), dup)
	_, err := s.Migrate(context.Background())
	assert.ErrorIs(t, err, schema.ErrVersionOrder)

	tables, err := s.userTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestCheckStateTransitions(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDBPath(t), schema.Migrations())

	state, err := s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateUninitialized, state)

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	_, err = s.Migrate(ctx)
	require.NoError(t, err)

	state, err = s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)
}

func TestVerifyReport(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, tempDBPath(t), schema.Migrations())

	_, err := s.MigrateTo(ctx, 1)
	require.NoError(t, err)

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pending", report.State)
	assert.Equal(t, 1, report.SchemaVersion)
	assert.Equal(t, 2, report.LatestVersion)
	assert.Equal(t, []string{"2_create_tasks_table"}, report.Pending)
	assert.Equal(t, []string{"projects"}, report.Tables)
}

func TestStoreNotOpened(t *testing.T) {
	s := New(tempDBPath(t), schema.Migrations())
	_, err := s.Migrate(context.Background())
	assert.ErrorIs(t, err, store.ErrNotOpen)
	_, err = s.GetProject(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotOpen)
	assert.NoError(t, s.Close())
}

func TestOpenRejectsDirectory(t *testing.T) {
	s := New(t.TempDir(), schema.Migrations())
	assert.Error(t, s.Open(context.Background()))
}

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New("mock.db", schema.Migrations())
	s.db = sqlx.NewDb(db, "sqlmock")
	return s, mock
}

func expectWatermark(mock sqlmock.Sqlmock, applied ...string) {
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sqlite_master`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	registry := schema.Migrations()
	rows := sqlmock.NewRows([]string{"version", "description", "checksum", "applied_at"})
	for i, d := range applied {
		rows.AddRow(i+1, d, registry[i].Checksum(), int64(1760000000))
	}
	mock.ExpectQuery(`SELECT version, description, checksum, applied_at FROM schema_migrations`).WillReturnRows(rows)
}

func TestMigrateCommitFailureLeavesWatermark(t *testing.T) {
	s, mock := newMockStore(t)

	expectWatermark(mock, "create_projects_table")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(2, "create_tasks_table", schema.Migrations()[1].Checksum()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(`CREATE TABLE tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	ran, err := s.Migrate(context.Background())
	assert.Empty(t, ran)

	var migErr *store.MigrationError
	require.True(t, errors.As(err, &migErr))
	assert.Equal(t, 2, migErr.Version)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateExecFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	expectWatermark(mock)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(1, "create_projects_table", schema.Migrations()[0].Checksum()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`CREATE TABLE projects`).WillReturnError(errors.New("near \"CREAT\": syntax error"))
	mock.ExpectRollback()

	ran, err := s.Migrate(context.Background())
	assert.Empty(t, ran)

	var migErr *store.MigrationError
	require.True(t, errors.As(err, &migErr))
	assert.Equal(t, 1, migErr.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
