package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fluxhive/fluxhive/internal/tasksync"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) GetStatus(ctx context.Context, externalID string) (tasksync.StatusInfo, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(tasksync.StatusInfo), args.Error(1)
}

func (m *MockProvider) GetResult(ctx context.Context, externalID string) (tasksync.Result, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(tasksync.Result), args.Error(1)
}
