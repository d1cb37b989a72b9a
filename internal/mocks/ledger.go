package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fluxhive/fluxhive/internal/credits"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetOrCreateAccount(ctx context.Context, userID string) (*credits.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credits.Account), args.Error(1)
}

func (m *MockLedger) Charge(ctx context.Context, userID string, taskID int64, amount int64) error {
	args := m.Called(ctx, userID, taskID, amount)
	return args.Error(0)
}

func (m *MockLedger) Refund(ctx context.Context, userID string, taskID int64) error {
	args := m.Called(ctx, userID, taskID)
	return args.Error(0)
}
