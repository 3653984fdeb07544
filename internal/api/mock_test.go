package api_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/maloquacious/taskflow/internal/store"
)

// MockStore stands in for the SQLite datastore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateProject(ctx context.Context, in store.ProjectInput) (store.Project, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(store.Project), args.Error(1)
}

func (m *MockStore) GetProject(ctx context.Context, id int64) (store.Project, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Project), args.Error(1)
}

func (m *MockStore) ListProjects(ctx context.Context) ([]store.Project, error) {
	args := m.Called(ctx)
	return args.Get(0).([]store.Project), args.Error(1)
}

func (m *MockStore) UpdateProject(ctx context.Context, id int64, in store.ProjectInput) (store.Project, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(store.Project), args.Error(1)
}

func (m *MockStore) DeleteProject(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) CreateTask(ctx context.Context, in store.TaskInput) (store.Task, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(store.Task), args.Error(1)
}

func (m *MockStore) GetTask(ctx context.Context, id int64) (store.Task, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Task), args.Error(1)
}

func (m *MockStore) ListTasks(ctx context.Context, projectID int64) ([]store.Task, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]store.Task), args.Error(1)
}

func (m *MockStore) UpdateTask(ctx context.Context, id int64, in store.TaskInput) (store.Task, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(store.Task), args.Error(1)
}

func (m *MockStore) UpdateTaskPosition(ctx context.Context, id int64, x, y float64) error {
	return m.Called(ctx, id, x, y).Error(0)
}

func (m *MockStore) DeleteTask(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) CheckState(ctx context.Context) (store.StoreState, error) {
	args := m.Called(ctx)
	return args.Get(0).(store.StoreState), args.Error(1)
}

func (m *MockStore) SchemaVersion(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
