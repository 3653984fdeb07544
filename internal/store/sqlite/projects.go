package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maloquacious/taskflow/internal/store"
)

const projectColumns = `id, name, COALESCE(description, '') AS description, created_at, updated_at`

// CreateProject inserts a project and returns it with its assigned id.
func (s *SQLiteStore) CreateProject(ctx context.Context, in store.ProjectInput) (store.Project, error) {
	if err := s.ready(); err != nil {
		return store.Project{}, err
	}
	in, err := in.Normalize()
	if err != nil {
		return store.Project{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description) VALUES (?, NULLIF(?, ''))`,
		in.Name, in.Description)
	if err != nil {
		if cerr := classifyConstraint(err); cerr != nil {
			return store.Project{}, cerr
		}
		return store.Project{}, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return s.GetProject(ctx, id)
}

// GetProject returns one project by id.
func (s *SQLiteStore) GetProject(ctx context.Context, id int64) (store.Project, error) {
	if err := s.ready(); err != nil {
		return store.Project{}, err
	}

	var p store.Project
	err := s.db.GetContext(ctx, &p, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Project{}, store.ErrProjectNotFound
		}
		return store.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns every project, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	out := []store.Project{}
	err := s.db.SelectContext(ctx, &out, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// UpdateProject replaces the writable fields and refreshes updated_at.
func (s *SQLiteStore) UpdateProject(ctx context.Context, id int64, in store.ProjectInput) (store.Project, error) {
	if err := s.ready(); err != nil {
		return store.Project{}, err
	}
	in, err := in.Normalize()
	if err != nil {
		return store.Project{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects
		    SET name = ?,
		        description = NULLIF(?, ''),
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		in.Name, in.Description, id)
	if err != nil {
		if cerr := classifyConstraint(err); cerr != nil {
			return store.Project{}, cerr
		}
		return store.Project{}, fmt.Errorf("update project: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return store.Project{}, store.ErrProjectNotFound
	}
	return s.GetProject(ctx, id)
}

// DeleteProject removes a project and its tasks in one transaction.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete project: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project tasks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return store.ErrProjectNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete project: commit: %w", err)
	}
	return nil
}
