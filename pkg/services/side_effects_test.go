package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/dukex/flowdesk/pkg/mocks"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/persistence/memory"
	"github.com/dukex/flowdesk/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func isKind(kind notifications.Kind) func(notifications.Notification) bool {
	return func(n notifications.Notification) bool { return n.Kind == kind }
}

func TestSideEffects_FailuresDoNotFailTheOperation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	tpl := f.singleTaskTemplate(t, bob)

	notifier := &mocks.MockNotifier{}
	notifier.On("Send", mock.Anything, mock.MatchedBy(isKind(notifications.KindNewTask))).
		Return(errors.New("smtp unavailable")).Once()

	analytics := &mocks.MockAnalytics{}
	analytics.On("Track", mock.Anything, mock.Anything).Return(nil)

	webhooks := &mocks.MockWebhooks{}
	webhooks.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("receiver timed out"))

	deps := f.deps
	deps.Notifier = notifier
	deps.Analytics = analytics
	deps.Webhooks = webhooks

	workflow, err := NewWorkflowRun(deps).Run(t.Context(), f.rc(f.owner), RunRequest{TemplateID: tpl.ID})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusActive, f.tasks(t, workflow.ID)[0].Status)

	notifier.AssertExpectations(t)
	analytics.AssertCalled(t, "Track", mock.Anything, mock.MatchedBy(func(e notifications.AnalyticsEvent) bool {
		return e.Name == notifications.AnalyticsWorkflowStarted && e.WorkflowID == workflow.ID
	}))
	webhooks.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestSideEffects_DroppedOnRollback(t *testing.T) {
	t.Parallel()

	var failing atomic.Bool

	store, err := memory.Restore(nil, func(context.Context, []byte) error {
		if failing.Load() {
			return errors.New("disk full")
		}

		return nil
	})
	require.NoError(t, err)

	owner := testutil.NewUser(testAccountID, "owner@example.com", testutil.AsOwner())
	require.NoError(t, testutil.Seed(t.Context(), store, owner))

	tpl := testutil.NewTemplate(testAccountID, owner.ID, testutil.NewTask(1, "review", testutil.StarterPerformer()))
	require.NoError(t, testutil.Seed(t.Context(), store, tpl))

	notifier := &mocks.MockNotifier{}
	webhooks := &mocks.MockWebhooks{}

	deps := Dependencies{
		Persistence: store,
		Notifier:    notifier,
		Webhooks:    webhooks,
		Logger:      slog.New(slog.DiscardHandler),
	}

	failing.Store(true)

	_, err = NewWorkflowRun(deps).Run(t.Context(), RequestContext{User: owner}, RunRequest{TemplateID: tpl.ID})
	require.Error(t, err)

	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	webhooks.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)

	// The workflow was never stored
	failing.Store(false)

	_, err = NewComments(deps).Watched(t.Context(), RequestContext{User: owner}, 1)
	assert.True(t, IsNotFound(err))
}

func TestSideEffects_StoreUnavailable(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("connection refused")

	store := &mocks.MockPersistence{}
	store.On("WithTx", mock.Anything).Return(unavailable)

	notifier := &mocks.MockNotifier{}
	owner := testutil.NewUser(testAccountID, "owner@example.com", testutil.AsOwner())
	owner.ID = 1

	taskID := int64(10)
	_, err := NewComments(Dependencies{Persistence: store, Notifier: notifier}).Create(t.Context(), RequestContext{User: owner}, CreateCommentRequest{
		TaskID: &taskID,
		Text:   "hello",
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, unavailable)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "comments.create", serviceErr.Op)

	store.AssertExpectations(t)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
