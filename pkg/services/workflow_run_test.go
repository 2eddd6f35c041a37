package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/flowdesk/pkg/config"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRun_Run(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID,
		testutil.NewTask(1, "review", testutil.UserPerformer(bob.ID)),
		testutil.NewTask(2, "approve", testutil.StarterPerformer()),
	)
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)

	assert.Equal(t, models.WorkflowStatusRunning, workflow.Status)
	assert.Equal(t, "Onboarding", workflow.Name)
	assert.Equal(t, f.owner.ID, workflow.StarterID)
	assert.ElementsMatch(t, []int64{f.owner.ID, bob.ID}, workflow.MemberIDs)

	// First task started, second waits
	tasks := f.tasks(t, workflow.ID)
	require.Len(t, tasks, 2)
	assert.Equal(t, []models.TaskStatus{models.TaskStatusActive, models.TaskStatusPending}, taskStatuses(tasks))
	require.NotNil(t, tasks[0].StartedAt)
	assert.Equal(t, f.now, *tasks[0].StartedAt)

	rows := f.rows(t, tasks[0].ID)
	require.Len(t, rows, 1)
	assert.Equal(t, bob.ID, *rows[0].UserID)
	assert.Equal(t, models.DirectlyStatusNoStatus, rows[0].DirectlyStatus)

	assert.Equal(t,
		[]models.EventType{models.EventTypeWorkflowRun, models.EventTypeTaskStart},
		eventTypes(f.events(t, workflow.ID)),
	)

	// Side effects
	newTask := f.recorder.Sent(notifications.KindNewTask)
	require.Len(t, newTask, 1)
	assert.Equal(t, []int64{bob.ID}, testutil.RecipientIDs(newTask))
	assert.Equal(t, "Task 1", newTask[0].TaskName)
	assert.Len(t, f.recorder.Webhooks(notifications.WebhookWorkflowStarted), 1)
	assert.Empty(t, f.recorder.Webhooks(notifications.WebhookWorkflowCompleted))
	assert.Len(t, f.recorder.Tracked(notifications.AnalyticsWorkflowStarted), 1)
	assert.Empty(t, f.recorder.Tracked(notifications.AnalyticsWorkflowUrgent))
}

func TestWorkflowRun_Run_Name(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		nameTemplate string
		explicit     string
		maxLength    int
		expected     string
	}{
		{"template name by default", "", "", 0, "Onboarding"},
		{"explicit name is kept", "Hire {{candidate}}", "  Custom run ", 0, "Custom run"},
		{"kickoff values are rendered", "Hire {{candidate}}", "", 0, "Hire Ada Lovelace"},
		{"system tokens", "{{template-name}}: {{candidate}}", "", 0, "Onboarding: Ada Lovelace"},
		{"long names are truncated", "Hire {{candidate}} for the platform team", "", 20, "Hire Ada Lovelace…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)

			if tt.maxLength > 0 {
				f.deps.Config = config.Default()
				f.deps.Config.WorkflowNameMaxLength = tt.maxLength
			}

			tpl := f.singleTaskTemplate(t, f.owner)
			tpl.NameTemplate = tt.nameTemplate
			tpl.Kickoff.Fields = []models.FieldTemplate{testutil.Field("candidate", models.FieldTypeString, false)}
			f.seed(t, tpl)

			workflow, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(f.owner), RunRequest{
				TemplateID: tpl.ID,
				Name:       tt.explicit,
				Kickoff:    map[string]any{"candidate": "Ada Lovelace"},
			})
			require.NoError(t, err)

			assert.Equal(t, tt.expected, workflow.Name)
		})
	}
}

func TestWorkflowRun_Run_TemplateNotActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*models.Template)
	}{
		{"inactive", func(tpl *models.Template) { tpl.IsActive = false }},
		{"legacy", func(tpl *models.Template) { tpl.IsLegacy = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tpl := testutil.NewTemplate(testAccountID, f.owner.ID, testutil.NewTask(1, "review", testutil.StarterPerformer()))
			tt.modify(tpl)
			f.seed(t, tpl)

			_, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(f.owner), RunRequest{TemplateID: tpl.ID})
			require.Error(t, err)

			assert.True(t, IsStateConflict(err))
			assert.ErrorIs(t, err, ErrTemplateNotActive)

			var serviceErr *ServiceError
			require.ErrorAs(t, err, &serviceErr)
			assert.Equal(t, "workflow_run.run", serviceErr.Op)

			assert.Empty(t, f.recorder.Webhooks())
		})
	}
}

func TestWorkflowRun_Run_InvalidKickoff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tpl := f.singleTaskTemplate(t, f.owner)
	tpl.Kickoff.Fields = []models.FieldTemplate{
		testutil.Field("amount", models.FieldTypeNumber, true),
	}
	f.seed(t, tpl)

	_, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(f.owner), RunRequest{
		TemplateID: tpl.ID,
		Kickoff:    map[string]any{"amount": "lots"},
	})
	require.Error(t, err)

	invalid, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "amount", invalid.APIName)

	// Nothing was stored, nothing was sent
	assert.Empty(t, f.events(t, 1))
	assert.Empty(t, f.recorder.Webhooks())
	assert.Empty(t, f.recorder.Tracked())
}

func TestWorkflowRun_Run_DueDate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	dueIn := 48 * time.Hour
	task := testutil.NewTask(1, "review", testutil.StarterPerformer())
	task.DueIn = &dueIn

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, task)
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)

	tasks := f.tasks(t, workflow.ID)
	require.NotNil(t, tasks[0].DueDate)
	assert.Equal(t, f.now.Add(dueIn), *tasks[0].DueDate)

	newTask := f.recorder.Sent(notifications.KindNewTask)
	require.Len(t, newTask, 1)
	assert.Equal(t, f.now.Add(dueIn).Unix(), newTask[0].DueDate)
}

func TestWorkflowRun_Run_EndConditionWinsOverSkip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	number := models.PredicateFieldType(models.FieldTypeNumber)

	review := testutil.NewTask(1, "review", testutil.UserPerformer(bob.ID))
	review.Conditions = []models.ConditionTemplate{
		testutil.Condition("skip-large", models.ConditionActionSkipTask,
			testutil.Predicate(number, "amount", models.OperatorMoreThan, "10")),
		testutil.Condition("end-large", models.ConditionActionEndWorkflow,
			testutil.Predicate(number, "amount", models.OperatorMoreThan, "5")),
	}

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, review, testutil.NewTask(2, "approve", testutil.StarterPerformer()))
	tpl.Kickoff.Fields = []models.FieldTemplate{testutil.Field("amount", models.FieldTypeNumber, false)}
	f.seed(t, tpl)

	workflow := f.run(t, tpl, map[string]any{"amount": 20})

	stored := f.workflow(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDone, stored.Status)
	assert.True(t, stored.EndedByCondition)
	assert.NotNil(t, stored.CompletedAt)

	// Tasks are left untouched
	assert.Equal(t,
		[]models.TaskStatus{models.TaskStatusPending, models.TaskStatusPending},
		taskStatuses(f.tasks(t, workflow.ID)),
	)

	types := eventTypes(f.events(t, workflow.ID))
	assert.Contains(t, types, models.EventTypeWorkflowEndedByCondition)
	assert.NotContains(t, types, models.EventTypeTaskSkip)
	assert.NotContains(t, types, models.EventTypeTaskStart)

	assert.Empty(t, f.recorder.Sent(notifications.KindNewTask))
	assert.Len(t, f.recorder.Webhooks(notifications.WebhookWorkflowCompleted), 1)
}

func TestWorkflowRun_Run_SkipCondition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")

	review := testutil.NewTask(1, "review", testutil.UserPerformer(bob.ID))
	review.Conditions = []models.ConditionTemplate{
		testutil.Condition("fast-track", models.ConditionActionSkipTask,
			testutil.Predicate(models.PredicateFieldType(models.FieldTypeString), "path", models.OperatorEqual, "fast")),
	}

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, review, testutil.NewTask(2, "approve", testutil.StarterPerformer()))
	tpl.Kickoff.Fields = []models.FieldTemplate{testutil.Field("path", models.FieldTypeString, false)}
	f.seed(t, tpl)

	workflow := f.run(t, tpl, map[string]any{"path": "fast"})

	assert.Equal(t,
		[]models.TaskStatus{models.TaskStatusSkipped, models.TaskStatusActive},
		taskStatuses(f.tasks(t, workflow.ID)),
	)
	assert.Equal(t,
		[]models.EventType{models.EventTypeWorkflowRun, models.EventTypeTaskSkip, models.EventTypeTaskStart},
		eventTypes(f.events(t, workflow.ID)),
	)
	assert.Equal(t, []int64{f.owner.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindNewTask)))
}

// fieldPerformerTemplate has a second task performed by the user picked on the first.
func fieldPerformerTemplate(f *fixture, t *testing.T) *models.Template {
	t.Helper()

	pick := testutil.NewTask(1, "pick", testutil.StarterPerformer())
	pick.Fields = []models.FieldTemplate{testutil.Field("assignee", models.FieldTypeUser, false)}

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID,
		pick,
		testutil.NewTask(2, "work", testutil.FieldPerformer("assignee")),
		testutil.NewTask(3, "wrap-up", testutil.StarterPerformer()),
	)
	f.seed(t, tpl)

	return tpl
}

func TestWorkflowRun_SkipTaskWithoutPerformers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tpl := fieldPerformerTemplate(f, t)
	workflow := f.run(t, tpl, nil)

	tasks := f.tasks(t, workflow.ID)

	// The assignee is left empty
	_, err := NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(f.owner), tasks[0].ID, nil)
	require.NoError(t, err)

	assert.Equal(t,
		[]models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusSkipped, models.TaskStatusActive},
		taskStatuses(f.tasks(t, workflow.ID)),
	)
	assert.Equal(t, []models.EventType{
		models.EventTypeWorkflowRun,
		models.EventTypeTaskStart,
		models.EventTypeTaskComplete,
		models.EventTypeTaskSkipNoPerformers,
		models.EventTypeTaskStart,
	}, eventTypes(f.events(t, workflow.ID)))
	assert.Equal(t, models.WorkflowStatusRunning, f.workflow(t, workflow.ID).Status)
}

func TestWorkflowRun_FieldPerformer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	tpl := fieldPerformerTemplate(f, t)
	workflow := f.run(t, tpl, nil)
	tasks := f.tasks(t, workflow.ID)

	f.recorder.Reset()

	_, err := NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(f.owner), tasks[0].ID, map[string]any{"assignee": bob.ID})
	require.NoError(t, err)

	tasks = f.tasks(t, workflow.ID)
	assert.Equal(t,
		[]models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusActive, models.TaskStatusPending},
		taskStatuses(tasks),
	)
	require.Contains(t, tasks[0].Outputs, "assignee")
	assert.Equal(t, bob.ID, *tasks[0].Outputs["assignee"].UserID)

	assert.Equal(t, []int64{bob.ID}, rowUserIDs(f.rows(t, tasks[1].ID)))
	assert.Equal(t, []int64{bob.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindNewTask)))
	assert.True(t, f.workflow(t, workflow.ID).IsMember(bob.ID))
}

func TestWorkflowRun_CompleteTask_Policy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		requireAll    bool
		completeAfter int
	}{
		{"any performer", false, 1},
		{"all performers", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			bob := f.user(t, "bob@example.com")
			carol := f.user(t, "carol@example.com")

			task := testutil.NewTask(1, "review", testutil.UserPerformer(bob.ID), testutil.UserPerformer(carol.ID))
			task.RequireCompletionByAll = tt.requireAll

			tpl := testutil.NewTemplate(testAccountID, f.owner.ID, task)
			f.seed(t, tpl)

			workflow := f.run(t, tpl, nil)
			taskID := f.tasks(t, workflow.ID)[0].ID
			service := NewWorkflowRun(f.deps)

			for i, user := range []*models.User{bob, carol}[:tt.completeAfter] {
				if i > 0 {
					assert.Equal(t, models.TaskStatusActive, f.tasks(t, workflow.ID)[0].Status)
					assert.Empty(t, f.recorder.Webhooks(notifications.WebhookWorkflowCompleted))
				}

				_, err := service.CompleteTask(t.Context(), f.rc(user), taskID, nil)
				require.NoError(t, err)
			}

			assert.Equal(t, models.TaskStatusCompleted, f.tasks(t, workflow.ID)[0].Status)
			assert.Equal(t, models.WorkflowStatusDone, f.workflow(t, workflow.ID).Status)
			assert.False(t, f.workflow(t, workflow.ID).EndedByCondition)
			assert.Len(t, f.recorder.Webhooks(notifications.WebhookWorkflowCompleted), 1)
			assert.Contains(t, eventTypes(f.events(t, workflow.ID)), models.EventTypeWorkflowComplete)
		})
	}
}

func TestWorkflowRun_CompleteTask_GroupPerformer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	group := &models.Group{AccountID: testAccountID, Name: "Reviewers", UserIDs: []int64{bob.ID}}
	f.seed(t, group)

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, testutil.NewTask(1, "review", testutil.GroupPerformer(group.ID)))
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)
	taskID := f.tasks(t, workflow.ID)[0].ID

	assert.Equal(t, []int64{bob.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindNewTask)))

	_, err := NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(bob), taskID, nil)
	require.NoError(t, err)

	rows := f.rows(t, taskID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsCompleted)
	assert.Equal(t, bob.ID, *rows[0].CompletedBy)
	assert.Equal(t, models.WorkflowStatusDone, f.workflow(t, workflow.ID).Status)
}

func TestWorkflowRun_CompleteTask_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	outsider := f.user(t, "dave@example.com")

	tpl := f.singleTaskTemplate(t, bob, carol)
	workflow := f.run(t, tpl, nil)
	taskID := f.tasks(t, workflow.ID)[0].ID
	service := NewWorkflowRun(f.deps)

	_, err := service.CompleteTask(t.Context(), f.rc(outsider), taskID, nil)
	assert.True(t, IsPermission(err))
	assert.ErrorIs(t, err, ErrNotPerformer)

	_, _, err = NewTaskPerformers(f.deps).Delete(t.Context(), f.rc(f.owner), UserRef{ID: carol.ID}, taskID)
	require.NoError(t, err)

	_, err = service.CompleteTask(t.Context(), f.rc(carol), taskID, nil)
	assert.True(t, IsPermission(err))
	assert.ErrorIs(t, err, ErrDeletedPerformer)

	_, err = service.CompleteTask(t.Context(), f.rc(bob), 999, nil)
	assert.True(t, IsNotFound(err))

	_, err = service.CompleteTask(t.Context(), f.rc(bob), taskID, nil)
	require.NoError(t, err)

	_, err = service.CompleteTask(t.Context(), f.rc(bob), taskID, nil)
	assert.True(t, IsStateConflict(err))
	assert.True(t, errors.Is(err, ErrWorkflowNotRunning) || errors.Is(err, ErrTaskNotActive))
}

func TestWorkflowRun_Run_AncestorTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	guest := f.user(t, "guest@example.com", testutil.AsGuest())

	parentTpl := f.singleTaskTemplate(t, bob)
	parent := f.run(t, parentTpl, nil)
	parentTaskID := f.tasks(t, parent.ID)[0].ID

	childTpl := f.singleTaskTemplate(t, f.owner)

	// A task of another account
	otherOwner := testutil.NewUser(2, "other@example.com", testutil.AsOwner())
	f.seed(t, otherOwner)
	otherTpl := testutil.NewTemplate(2, otherOwner.ID, testutil.NewTask(1, "review", testutil.StarterPerformer()))
	f.seed(t, otherTpl)
	other, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(otherOwner), RunRequest{TemplateID: otherTpl.ID})
	require.NoError(t, err)
	otherTaskID := f.tasks(t, other.ID)[0].ID

	tests := []struct {
		name   string
		user   *models.User
		taskID int64
		check  func(t *testing.T, err error)
	}{
		{"other account", bob, otherTaskID, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
		}},
		{"guest", guest, parentTaskID, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrGuestForbidden)
		}},
		{"not a performer", carol, parentTaskID, func(t *testing.T, err error) {
			assert.True(t, IsPermission(err))
			assert.ErrorIs(t, err, ErrNotPerformer)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(tt.user), RunRequest{
				TemplateID:     childTpl.ID,
				AncestorTaskID: &tt.taskID,
			})
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	// Performers start sub workflows from their task
	child, err := NewWorkflowRun(f.deps).Run(t.Context(), f.rc(bob), RunRequest{
		TemplateID:     childTpl.ID,
		AncestorTaskID: &parentTaskID,
	})
	require.NoError(t, err)
	assert.Equal(t, parentTaskID, *child.AncestorTaskID)

	parentEvents := f.events(t, parent.ID)
	last := parentEvents[len(parentEvents)-1]
	assert.Equal(t, models.EventTypeSubWorkflowRun, last.Type)
	assert.Equal(t, child.ID, *last.SubWorkflowID)

	// Finished tasks cannot start sub workflows
	_, err = NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(bob), parentTaskID, nil)
	require.NoError(t, err)

	_, err = NewWorkflowRun(f.deps).Run(t.Context(), f.rc(bob), RunRequest{
		TemplateID:     childTpl.ID,
		AncestorTaskID: &parentTaskID,
	})
	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, ErrAncestorTaskNotActive)
}
