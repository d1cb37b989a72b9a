package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Relocate(ctx context.Context, srcURL string, taskID int64) (string, error) {
	args := m.Called(ctx, srcURL, taskID)
	return args.String(0), args.Error(1)
}
