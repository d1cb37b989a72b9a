package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fluxhive/fluxhive/internal/models"
	"github.com/fluxhive/fluxhive/internal/tasksync"
)

type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepository) Get(ctx context.Context, id int64) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) GetForUser(ctx context.Context, id int64, userID string) (*models.Task, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) ListForUser(ctx context.Context, userID, model string, page, pageSize int) ([]*models.Task, int, error) {
	args := m.Called(ctx, userID, model, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.Task), args.Int(1), args.Error(2)
}

func (m *MockTaskRepository) Update(ctx context.Context, id int64, update tasksync.TaskUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockTaskRepository) FindByExternalID(ctx context.Context, model, externalID string) (*models.Task, error) {
	args := m.Called(ctx, model, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) ListProcessing(ctx context.Context, since time.Time, limit int) ([]*models.Task, error) {
	args := m.Called(ctx, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockTaskRepository) CountForUserModelSince(ctx context.Context, userID, model string, since time.Time) (int, error) {
	args := m.Called(ctx, userID, model, since)
	return args.Int(0), args.Error(1)
}

func (m *MockTaskRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
