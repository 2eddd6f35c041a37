package services

import (
	"testing"

	"github.com/dukex/flowdesk/pkg/config"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTask runs a single task workflow performed by the users and returns the task id.
func (f *fixture) startTask(t *testing.T, performers ...*models.User) (*models.Workflow, int64) {
	t.Helper()

	tpl := f.singleTaskTemplate(t, performers...)
	workflow := f.run(t, tpl, nil)

	f.recorder.Reset()

	return workflow, f.tasks(t, workflow.ID)[0].ID
}

func TestTaskPerformers_Create(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	workflow, taskID := f.startTask(t, f.owner)

	user, row, err := NewTaskPerformers(f.deps).Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	assert.Equal(t, bob.ID, user.ID)
	assert.Equal(t, models.DirectlyStatusCreated, row.DirectlyStatus)
	assert.Equal(t, models.PerformerTypeUser, row.Type)
	assert.ElementsMatch(t, []int64{f.owner.ID, bob.ID}, rowUserIDs(f.rows(t, taskID)))
	assert.True(t, f.workflow(t, workflow.ID).IsMember(bob.ID))

	events := f.events(t, workflow.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventTypePerformerCreated, last.Type)
	assert.Equal(t, bob.ID, *last.TargetUserID)
	assert.Equal(t, f.owner.ID, *last.UserID)

	assert.Equal(t, []int64{bob.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindNewTask)))
	assert.Empty(t, f.recorder.Pushed())
	assert.Len(t, f.recorder.Tracked(notifications.AnalyticsPerformerInvited), 1)
}

func TestTaskPerformers_Create_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	workflow, taskID := f.startTask(t, f.owner)
	service := NewTaskPerformers(f.deps)

	_, first, err := service.Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	_, second, err := service.Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.rows(t, taskID), 2)

	created := 0

	for _, event := range f.events(t, workflow.ID) {
		if event.Type == models.EventTypePerformerCreated {
			created++
		}
	}

	assert.Equal(t, 1, created)
	assert.Len(t, f.recorder.Sent(notifications.KindNewTask), 1)
	assert.Len(t, f.recorder.Tracked(notifications.AnalyticsPerformerInvited), 1)
}

func TestTaskPerformers_Create_Notifications(t *testing.T) {
	t.Parallel()

	t.Run("self assignment is pushed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		admin := f.user(t, "admin@example.com", testutil.AsAdmin())
		_, taskID := f.startTask(t, f.owner)

		_, _, err := NewTaskPerformers(f.deps).Create(t.Context(), f.rc(admin), UserRef{ID: admin.ID}, taskID)
		require.NoError(t, err)

		assert.Empty(t, f.recorder.Sent())
		assert.Equal(t, []int64{admin.ID}, testutil.RecipientIDs(f.recorder.Pushed(notifications.KindNewTask)))
	})

	t.Run("transfer pending users are not notified", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		moved := f.user(t, "moved@example.com", testutil.WithTransferPending())
		_, taskID := f.startTask(t, f.owner)

		_, _, err := NewTaskPerformers(f.deps).Create(t.Context(), f.rc(f.owner), UserRef{ID: moved.ID}, taskID)
		require.NoError(t, err)

		assert.Empty(t, f.recorder.Sent())
		assert.Empty(t, f.recorder.Pushed())
		assert.Len(t, f.recorder.Tracked(notifications.AnalyticsPerformerInvited), 1)
	})

	t.Run("group members are not notified twice", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		bob := f.user(t, "bob@example.com")
		group := &models.Group{AccountID: testAccountID, Name: "Reviewers", UserIDs: []int64{bob.ID}}
		f.seed(t, group)

		tpl := testutil.NewTemplate(testAccountID, f.owner.ID, testutil.NewTask(1, "review", testutil.GroupPerformer(group.ID)))
		f.seed(t, tpl)
		workflow := f.run(t, tpl, nil)
		f.recorder.Reset()

		_, _, err := NewTaskPerformers(f.deps).Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, f.tasks(t, workflow.ID)[0].ID)
		require.NoError(t, err)

		assert.Empty(t, f.recorder.Sent())
	})
}

func TestTaskPerformers_Create_RestoresDeletedPerformer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	_, taskID := f.startTask(t, f.owner, bob)
	service := NewTaskPerformers(f.deps)

	_, removed, err := service.Delete(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectlyStatusDeleted, removed.DirectlyStatus)

	_, restored, err := service.Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	assert.Equal(t, removed.ID, restored.ID)
	assert.Equal(t, models.DirectlyStatusCreated, restored.DirectlyStatus)
	assert.False(t, restored.IsCompleted)
	assert.Len(t, f.rows(t, taskID), 2)
}

func TestTaskPerformers_Create_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	inactive := f.user(t, "gone@example.com", testutil.WithStatus(models.UserStatusInactive))
	outsider := f.user(t, "dave@example.com")
	_, taskID := f.startTask(t, f.owner)

	tests := []struct {
		name  string
		actor *models.User
		ref   PerformerRef
		task  int64
		check func(t *testing.T, err error)
	}{
		{"unknown task", f.owner, UserRef{ID: bob.ID}, 999, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
		}},
		{"unknown user", f.owner, UserRef{ID: 999}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
			assert.ErrorIs(t, err, ErrUserIneligible)
		}},
		{"inactive user", f.owner, UserRef{ID: inactive.ID}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
			assert.ErrorIs(t, err, ErrUserIneligible)
		}},
		{"not allowed", outsider, UserRef{ID: bob.ID}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsPermission(err))
			assert.ErrorIs(t, err, ErrPermissionDenied)
		}},
		{"group reference", f.owner, GroupRef{ID: 1}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, ErrUnsupportedRef)
		}},
		{"member email as guest", f.owner, GuestRef{Email: bob.Email}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsNotFound(err))
			assert.ErrorIs(t, err, ErrUserIneligible)
		}},
		{"invalid guest email", f.owner, GuestRef{Email: "not-an-email"}, taskID, func(t *testing.T, err error) {
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, ErrInvalidGuestEmail)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewTaskPerformers(f.deps).Create(t.Context(), f.rc(tt.actor), tt.ref, tt.task)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	assert.Equal(t, []int64{f.owner.ID}, rowUserIDs(f.rows(t, taskID)))
	assert.Empty(t, f.recorder.Sent())
}

func TestTaskPerformers_Authorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	erin := f.user(t, "erin@example.com")
	editors := &models.Group{AccountID: testAccountID, Name: "Editors", UserIDs: []int64{erin.ID}}
	f.seed(t, editors)

	tpl := f.singleTaskTemplate(t, bob)
	tpl.Owners = append(tpl.Owners, models.TemplateOwner{Type: models.OwnerTypeGroup, GroupID: &editors.ID})
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)
	taskID := f.tasks(t, workflow.ID)[0].ID
	service := NewTaskPerformers(f.deps)

	// Current performers may add others
	_, _, err := service.Create(t.Context(), f.rc(bob), UserRef{ID: carol.ID}, taskID)
	require.NoError(t, err)

	// Template owners through a group too
	_, _, err = service.Delete(t.Context(), f.rc(erin), UserRef{ID: carol.ID}, taskID)
	require.NoError(t, err)

	// Removed performers may not change the task anymore
	_, _, err = service.Create(t.Context(), f.rc(carol), UserRef{ID: carol.ID}, taskID)
	assert.True(t, IsPermission(err))
	assert.ErrorIs(t, err, ErrDeletedPerformer)
}

func TestTaskPerformers_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	workflow, taskID := f.startTask(t, bob, carol)

	user, row, err := NewTaskPerformers(f.deps).Delete(t.Context(), f.rc(f.owner), UserRef{ID: carol.ID}, taskID)
	require.NoError(t, err)

	assert.Equal(t, carol.ID, user.ID)
	assert.Equal(t, models.DirectlyStatusDeleted, row.DirectlyStatus)
	assert.Equal(t, []int64{bob.ID}, rowUserIDs(f.rows(t, taskID)))

	events := f.events(t, workflow.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventTypePerformerDeleted, last.Type)
	assert.Equal(t, carol.ID, *last.TargetUserID)

	assert.Equal(t, []int64{carol.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindTaskRemoved)))
}

func TestTaskPerformers_Delete_NotAPerformer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	workflow, taskID := f.startTask(t, f.owner)
	before := len(f.events(t, workflow.ID))

	_, _, err := NewTaskPerformers(f.deps).Delete(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	assert.Len(t, f.events(t, workflow.ID), before)
	assert.Empty(t, f.recorder.Sent())
}

func TestTaskPerformers_Delete_LastPerformer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	workflow, taskID := f.startTask(t, bob)
	before := len(f.events(t, workflow.ID))

	_, _, err := NewTaskPerformers(f.deps).Delete(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.Error(t, err)

	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, ErrLastPerformer)

	// Nothing changed
	rows := f.rows(t, taskID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DirectlyStatusNoStatus, rows[0].DirectlyStatus)
	assert.Len(t, f.events(t, workflow.ID), before)
	assert.Empty(t, f.recorder.Sent())
}

func TestTaskPerformers_Delete_CompletesTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")

	task := testutil.NewTask(1, "review", testutil.UserPerformer(bob.ID), testutil.UserPerformer(carol.ID))
	task.RequireCompletionByAll = true
	tpl := testutil.NewTemplate(testAccountID, f.owner.ID, task)
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)
	taskID := f.tasks(t, workflow.ID)[0].ID

	_, err := NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(bob), taskID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusActive, f.tasks(t, workflow.ID)[0].Status)

	// Carol was the only one left to complete
	_, _, err = NewTaskPerformers(f.deps).Delete(t.Context(), f.rc(f.owner), UserRef{ID: carol.ID}, taskID)
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusCompleted, f.tasks(t, workflow.ID)[0].Status)
	assert.Equal(t, models.WorkflowStatusDone, f.workflow(t, workflow.ID).Status)
	assert.Empty(t, f.recorder.Sent(notifications.KindTaskRemoved))
}

func TestTaskPerformers_Guest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, taskID := f.startTask(t, f.owner)
	service := NewTaskPerformers(f.deps)

	guest, row, err := service.Create(t.Context(), f.rc(f.owner), GuestRef{Email: " Guest@Example.com "}, taskID)
	require.NoError(t, err)

	assert.True(t, guest.IsGuest())
	assert.Equal(t, "guest@example.com", guest.Email)
	assert.Equal(t, guest.ID, *row.UserID)

	assert.Equal(t, []testutil.GuestGrant{{TaskID: taskID, UserID: guest.ID}}, f.recorder.Activated())
	assert.Equal(t, []int64{guest.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindGuestInvite)))
	assert.Len(t, f.recorder.Tracked(notifications.AnalyticsGuestInvited), 1)
	assert.Empty(t, f.recorder.Tracked(notifications.AnalyticsPerformerInvited))

	// Adding the same email again reuses the guest
	again, _, err := service.Create(t.Context(), f.rc(f.owner), GuestRef{Email: "guest@example.com"}, taskID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, again.ID)
	assert.Len(t, f.recorder.Activated(), 1)

	_, _, err = service.Delete(t.Context(), f.rc(f.owner), GuestRef{Email: "guest@example.com"}, taskID)
	require.NoError(t, err)

	assert.Equal(t, []testutil.GuestGrant{{TaskID: taskID, UserID: guest.ID}}, f.recorder.Deactivated())
}

func TestTaskPerformers_GuestQuota(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deps.Config = config.Default()
	f.deps.Config.MaxGuestsPerTask = 2

	_, taskID := f.startTask(t, f.owner)
	service := NewTaskPerformers(f.deps)

	for _, email := range []string{"one@example.com", "two@example.com"} {
		_, _, err := service.Create(t.Context(), f.rc(f.owner), GuestRef{Email: email}, taskID)
		require.NoError(t, err)
	}

	_, _, err := service.Create(t.Context(), f.rc(f.owner), GuestRef{Email: "three@example.com"}, taskID)
	require.Error(t, err)
	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, ErrGuestQuotaExceeded)
	assert.Len(t, f.rows(t, taskID), 3)

	// Members do not count against the quota
	bob := f.user(t, "bob@example.com")
	_, _, err = service.Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	// Removed guests free a slot
	_, _, err = service.Delete(t.Context(), f.rc(f.owner), GuestRef{Email: "one@example.com"}, taskID)
	require.NoError(t, err)

	_, _, err = service.Create(t.Context(), f.rc(f.owner), GuestRef{Email: "three@example.com"}, taskID)
	require.NoError(t, err)
}

func TestTaskPerformers_TaskNotActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	_, taskID := f.startTask(t, f.owner)

	_, err := NewWorkflowRun(f.deps).CompleteTask(t.Context(), f.rc(f.owner), taskID, nil)
	require.NoError(t, err)

	_, _, err = NewTaskPerformers(f.deps).Create(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, ErrWorkflowNotRunning)
}

func TestGroupPerformers_Create(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	admin := f.user(t, "admin@example.com", testutil.AsAdmin())
	group := &models.Group{AccountID: testAccountID, Name: "Reviewers", UserIDs: []int64{bob.ID, carol.ID, admin.ID}}
	f.seed(t, group)

	workflow, taskID := f.startTask(t, bob)

	created, row, err := NewGroupPerformers(f.deps).Create(t.Context(), f.rc(admin), group.ID, taskID)
	require.NoError(t, err)

	assert.Equal(t, group.ID, created.ID)
	assert.Equal(t, models.PerformerTypeGroup, row.Type)
	assert.Equal(t, models.DirectlyStatusCreated, row.DirectlyStatus)

	// Bob already performs the task, the admin added the group themselves
	assert.Equal(t, []int64{carol.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindNewTask)))
	assert.Equal(t, []int64{admin.ID}, testutil.RecipientIDs(f.recorder.Pushed(notifications.KindNewTask)))

	stored := f.workflow(t, workflow.ID)
	for _, id := range group.UserIDs {
		assert.True(t, stored.IsMember(id))
	}

	events := f.events(t, workflow.ID)
	last := events[len(events)-1]
	assert.Equal(t, models.EventTypePerformerGroupCreated, last.Type)
	assert.Equal(t, group.ID, *last.TargetGroupID)

	// Adding the group again changes nothing
	_, _, err = NewGroupPerformers(f.deps).Create(t.Context(), f.rc(admin), group.ID, taskID)
	require.NoError(t, err)
	assert.Len(t, f.rows(t, taskID), 2)
	assert.Len(t, f.recorder.Sent(notifications.KindNewTask), 1)
}

func TestGroupPerformers_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	bob := f.user(t, "bob@example.com")
	carol := f.user(t, "carol@example.com")
	group := &models.Group{AccountID: testAccountID, Name: "Reviewers", UserIDs: []int64{bob.ID, carol.ID}}
	f.seed(t, group)

	tpl := testutil.NewTemplate(testAccountID, f.owner.ID,
		testutil.NewTask(1, "review", testutil.GroupPerformer(group.ID), testutil.UserPerformer(bob.ID)))
	f.seed(t, tpl)

	workflow := f.run(t, tpl, nil)
	taskID := f.tasks(t, workflow.ID)[0].ID
	f.recorder.Reset()

	groups := NewGroupPerformers(f.deps)
	performers := NewTaskPerformers(f.deps)

	// Bob stays through his own row
	_, row, err := groups.Delete(t.Context(), f.rc(f.owner), group.ID, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.DirectlyStatusDeleted, row.DirectlyStatus)
	assert.Equal(t, []int64{carol.ID}, testutil.RecipientIDs(f.recorder.Sent(notifications.KindTaskRemoved)))

	events := f.events(t, workflow.ID)
	assert.Equal(t, models.EventTypePerformerGroupDeleted, events[len(events)-1].Type)

	_, _, err = performers.Delete(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	assert.ErrorIs(t, err, ErrLastPerformer)

	// Restoring the group lets bob go
	_, _, err = groups.Create(t.Context(), f.rc(f.owner), group.ID, taskID)
	require.NoError(t, err)

	_, _, err = performers.Delete(t.Context(), f.rc(f.owner), UserRef{ID: bob.ID}, taskID)
	require.NoError(t, err)

	_, _, err = groups.Delete(t.Context(), f.rc(f.owner), group.ID, taskID)
	assert.True(t, IsStateConflict(err))
	assert.ErrorIs(t, err, ErrLastPerformer)
}

func TestGroupPerformers_UnknownGroup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, taskID := f.startTask(t, f.owner)

	_, _, err := NewGroupPerformers(f.deps).Create(t.Context(), f.rc(f.owner), 999, taskID)
	assert.True(t, IsNotFound(err))
}
