package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/persistence/memory"
	"github.com/dukex/flowdesk/pkg/testutil"
	"github.com/stretchr/testify/require"
)

const testAccountID int64 = 1

type fixture struct {
	store    *memory.Persistence
	recorder *testutil.Recorder
	deps     Dependencies
	now      time.Time
	owner    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	recorder := testutil.NewRecorder()

	f := &fixture{
		store:    store,
		recorder: recorder,
		now:      time.Date(2025, 3, 14, 9, 30, 45, 0, time.UTC),
		owner:    testutil.NewUser(testAccountID, "owner@example.com", testutil.AsOwner()),
		deps: Dependencies{
			Persistence: store,
			Notifier:    recorder,
			Analytics:   recorder,
			Webhooks:    recorder,
			GuestCache:  recorder,
			Logger:      slog.New(slog.DiscardHandler),
		},
	}

	f.seed(t, f.owner)

	return f
}

func (f *fixture) seed(t *testing.T, entities ...any) {
	t.Helper()

	require.NoError(t, testutil.Seed(t.Context(), f.store, entities...))
}

func (f *fixture) user(t *testing.T, email string, overrides ...func(*models.User)) *models.User {
	t.Helper()

	user := testutil.NewUser(testAccountID, email, overrides...)
	f.seed(t, user)

	return user
}

func (f *fixture) rc(user *models.User) RequestContext {
	return RequestContext{
		User:     user,
		AuthType: AuthTypeUser,
		Now:      func() time.Time { return f.now },
	}
}

// run starts a workflow of the template as the account owner.
func (f *fixture) run(t *testing.T, tpl *models.Template, kickoff map[string]any) *models.Workflow {
	t.Helper()

	workflow, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(f.owner), RunRequest{TemplateID: tpl.ID, Kickoff: kickoff})
	require.NoError(t, err)

	return workflow
}

func (f *fixture) read(t *testing.T, fn func(ctx context.Context, tx persistence.Tx) error) {
	t.Helper()

	require.NoError(t, f.store.WithTx(t.Context(), fn))
}

func (f *fixture) workflow(t *testing.T, id int64) *models.Workflow {
	t.Helper()

	var workflow *models.Workflow

	f.read(t, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		workflow, err = tx.Workflows().ByID(ctx, testAccountID, id)

		return err
	})

	return workflow
}

func (f *fixture) tasks(t *testing.T, workflowID int64) []*models.Task {
	t.Helper()

	var tasks []*models.Task

	f.read(t, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		tasks, err = tx.Tasks().ByWorkflow(ctx, workflowID)

		return err
	})

	return tasks
}

func (f *fixture) rows(t *testing.T, taskID int64) []*models.TaskPerformer {
	t.Helper()

	var rows []*models.TaskPerformer

	f.read(t, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		rows, err = tx.Performers().ByTask(ctx, taskID)

		return err
	})

	return rows
}

func (f *fixture) events(t *testing.T, workflowID int64) []*models.WorkflowEvent {
	t.Helper()

	var events []*models.WorkflowEvent

	f.read(t, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		events, err = tx.Events().ByWorkflow(ctx, workflowID)

		return err
	})

	return events
}

func (f *fixture) event(t *testing.T, id int64) *models.WorkflowEvent {
	t.Helper()

	var event *models.WorkflowEvent

	f.read(t, func(ctx context.Context, tx persistence.Tx) error {
		var err error
		event, err = tx.Events().ByID(ctx, testAccountID, id)

		return err
	})

	return event
}

func eventTypes(events []*models.WorkflowEvent) []models.EventType {
	types := make([]models.EventType, 0, len(events))

	for _, event := range events {
		types = append(types, event.Type)
	}

	return types
}

func taskStatuses(tasks []*models.Task) []models.TaskStatus {
	statuses := make([]models.TaskStatus, 0, len(tasks))

	for _, task := range tasks {
		statuses = append(statuses, task.Status)
	}

	return statuses
}

func rowUserIDs(rows []*models.TaskPerformer) []int64 {
	ids := make([]int64, 0, len(rows))

	for _, row := range rows {
		if row.UserID != nil && !row.IsDeleted() {
			ids = append(ids, *row.UserID)
		}
	}

	return ids
}

// singleTaskTemplate seeds an active template with one task performed by the users.
func (f *fixture) singleTaskTemplate(t *testing.T, performers ...*models.User) *models.Template {
	t.Helper()

	raw := make([]models.RawPerformer, 0, len(performers))
	for _, user := range performers {
		raw = append(raw, testutil.UserPerformer(user.ID))
	}

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, testutil.NewTask(1, "review", raw...))
	f.seed(t, tpl)

	return tpl
}
