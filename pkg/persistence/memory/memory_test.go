package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_CommitAndRollback(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	ctx := t.Context()

	var taskID int64

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		task := &models.Task{AccountID: 1, WorkflowID: 3, Number: 1, Status: models.TaskStatusActive}
		if err := tx.Tasks().Save(ctx, task); err != nil {
			return err
		}

		taskID = task.ID

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), taskID)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		task, err := tx.Tasks().ForUpdate(ctx, 1, taskID)
		if err != nil {
			return err
		}

		task.Status = models.TaskStatusCompleted
		if err := tx.Tasks().Save(ctx, task); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		task, err := tx.Tasks().ByID(ctx, 1, taskID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusActive, task.Status)

		return nil
	})
	require.NoError(t, err)
}

func TestPersistence_AccountScoping(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	ctx := t.Context()

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		user := &models.User{AccountID: 1, Email: "joe@example.com", Type: models.UserTypeUser, Status: models.UserStatusActive}
		require.NoError(t, tx.Users().Save(ctx, user))

		_, err := tx.Users().ByID(ctx, 2, user.ID)
		assert.True(t, persistence.IsUserNotFound(err))

		found, err := tx.Users().ByEmail(ctx, 1, "JOE@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)

		duplicate := &models.User{AccountID: 1, Email: "joe@example.com"}
		assert.ErrorIs(t, tx.Users().Save(ctx, duplicate), persistence.ErrUserAlreadyExists)

		return nil
	})
	require.NoError(t, err)
}

func TestPersistence_ReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	ctx := t.Context()

	err := store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		event := &models.WorkflowEvent{AccountID: 1, WorkflowID: 1, Type: models.EventTypeComment}
		require.NoError(t, tx.Events().Save(ctx, event))

		loaded, err := tx.Events().ByID(ctx, 1, event.ID)
		require.NoError(t, err)

		loaded.AddReaction(":+1:", 4)

		again, err := tx.Events().ByID(ctx, 1, event.ID)
		require.NoError(t, err)
		assert.Empty(t, again.Reactions)

		return nil
	})
	require.NoError(t, err)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	var snapshot []byte

	store, err := Restore(nil, func(_ context.Context, data []byte) error {
		snapshot = data

		return nil
	})
	require.NoError(t, err)

	ctx := t.Context()
	err = store.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		return tx.Groups().Save(ctx, &models.Group{AccountID: 1, Name: "Legal", UserIDs: []int64{1, 2}})
	})
	require.NoError(t, err)
	require.NotEmpty(t, snapshot)

	restored, err := Restore(snapshot, nil)
	require.NoError(t, err)

	err = restored.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		groups, err := tx.Groups().ByMember(ctx, 1, 2)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "Legal", groups[0].Name)

		next := &models.Group{AccountID: 1, Name: "Finance"}
		require.NoError(t, tx.Groups().Save(ctx, next))
		assert.Equal(t, int64(2), next.ID)

		return nil
	})
	require.NoError(t, err)
}
