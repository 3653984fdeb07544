package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/maloquacious/taskflow/internal/store"
)

const taskColumns = `id, project_id, name, COALESCE(description, '') AS description,
	COALESCE(status, '') AS status, COALESCE(priority, '') AS priority,
	start_date, end_date, duration_days, position_x, position_y, created_at, updated_at`

// CreateTask inserts a task. Fields the caller leaves unset take the schema defaults.
func (s *SQLiteStore) CreateTask(ctx context.Context, in store.TaskInput) (store.Task, error) {
	if err := s.ready(); err != nil {
		return store.Task{}, err
	}
	in, err := in.Normalize()
	if err != nil {
		return store.Task{}, err
	}

	cols := []string{"project_id", "name", "description", "start_date", "end_date", "duration_days"}
	vals := []string{"?", "?", "NULLIF(?, '')", "?", "?", "?"}
	args := []any{in.ProjectID, in.Name, in.Description, in.StartDate, in.EndDate, in.DurationDays}
	if in.Status != "" {
		cols, vals, args = append(cols, "status"), append(vals, "?"), append(args, string(in.Status))
	}
	if in.Priority != "" {
		cols, vals, args = append(cols, "priority"), append(vals, "?"), append(args, string(in.Priority))
	}
	if in.PositionX != nil {
		cols, vals, args = append(cols, "position_x"), append(vals, "?"), append(args, *in.PositionX)
	}
	if in.PositionY != nil {
		cols, vals, args = append(cols, "position_y"), append(vals, "?"), append(args, *in.PositionY)
	}

	q := fmt.Sprintf(`INSERT INTO tasks (%s) VALUES (%s)`, strings.Join(cols, ", "), strings.Join(vals, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		if cerr := classifyConstraint(err); cerr != nil {
			return store.Task{}, cerr
		}
		return store.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask returns one task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (store.Task, error) {
	if err := s.ready(); err != nil {
		return store.Task{}, err
	}

	var t store.Task
	err := s.db.GetContext(ctx, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Task{}, store.ErrTaskNotFound
		}
		return store.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns the tasks of a project, newest first.
// A projectID of 0 lists the tasks that belong to no project.
func (s *SQLiteStore) ListTasks(ctx context.Context, projectID int64) ([]store.Task, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		where = `project_id = ?`
		args  = []any{projectID}
	)
	if projectID == 0 {
		where, args = `project_id IS NULL`, nil
	}

	out := []store.Task{}
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// UpdateTask writes the fields the caller set and refreshes updated_at.
// Empty status or priority and nil pointers keep their stored values; fields
// named in Clear are set to NULL.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id int64, in store.TaskInput) (store.Task, error) {
	if err := s.ready(); err != nil {
		return store.Task{}, err
	}
	in, err := in.Normalize()
	if err != nil {
		return store.Task{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
		    SET project_id = CASE WHEN ? THEN NULL ELSE COALESCE(?, project_id) END,
		        name = ?,
		        description = NULLIF(?, ''),
		        status = COALESCE(NULLIF(?, ''), status),
		        priority = COALESCE(NULLIF(?, ''), priority),
		        start_date = CASE WHEN ? THEN NULL ELSE COALESCE(?, start_date) END,
		        end_date = CASE WHEN ? THEN NULL ELSE COALESCE(?, end_date) END,
		        duration_days = CASE WHEN ? THEN NULL ELSE COALESCE(?, duration_days) END,
		        position_x = COALESCE(?, position_x),
		        position_y = COALESCE(?, position_y),
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		in.Clears(store.FieldProjectID), in.ProjectID,
		in.Name, in.Description, string(in.Status), string(in.Priority),
		in.Clears(store.FieldStartDate), in.StartDate,
		in.Clears(store.FieldEndDate), in.EndDate,
		in.Clears(store.FieldDurationDays), in.DurationDays,
		in.PositionX, in.PositionY, id)
	if err != nil {
		if cerr := classifyConstraint(err); cerr != nil {
			return store.Task{}, cerr
		}
		return store.Task{}, fmt.Errorf("update task: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return store.Task{}, store.ErrTaskNotFound
	}
	return s.GetTask(ctx, id)
}

// UpdateTaskPosition moves a task on the layout canvas.
func (s *SQLiteStore) UpdateTaskPosition(ctx context.Context, id int64, x, y float64) error {
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET position_x = ?, position_y = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		x, y, id)
	if err != nil {
		return fmt.Errorf("update task position: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes one task.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}
