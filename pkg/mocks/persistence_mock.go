package mocks

import (
	"context"

	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface. WithTx
// returns the configured error without running fn.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) WithTx(ctx context.Context, _ func(ctx context.Context, tx persistence.Tx) error) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
