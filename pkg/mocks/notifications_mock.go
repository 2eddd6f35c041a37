package mocks

import (
	"context"

	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notifications.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, notification notifications.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

func (m *MockNotifier) Push(ctx context.Context, notification notifications.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

// MockAnalytics is a mock implementation of notifications.Analytics interface.
type MockAnalytics struct {
	mock.Mock
}

func (m *MockAnalytics) Track(ctx context.Context, event notifications.AnalyticsEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

// MockWebhooks is a mock implementation of notifications.Webhooks interface.
type MockWebhooks struct {
	mock.Mock
}

func (m *MockWebhooks) Dispatch(ctx context.Context, event notifications.WebhookEvent) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

// MockGuestCache is a mock implementation of notifications.GuestCache interface.
type MockGuestCache struct {
	mock.Mock
}

func (m *MockGuestCache) Activate(ctx context.Context, taskID, userID int64) error {
	args := m.Called(ctx, taskID, userID)

	return args.Error(0)
}

func (m *MockGuestCache) Deactivate(ctx context.Context, taskID, userID int64) error {
	args := m.Called(ctx, taskID, userID)

	return args.Error(0)
}

var (
	_ notifications.Notifier   = (*MockNotifier)(nil)
	_ notifications.Analytics  = (*MockAnalytics)(nil)
	_ notifications.Webhooks   = (*MockWebhooks)(nil)
	_ notifications.GuestCache = (*MockGuestCache)(nil)
)
