package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("entity errors wrap not found", func(t *testing.T) {
		t.Parallel()

		for _, err := range []error{
			persistence.ErrUserNotFound,
			persistence.ErrGroupNotFound,
			persistence.ErrTemplateNotFound,
			persistence.ErrWorkflowNotFound,
			persistence.ErrTaskNotFound,
			persistence.ErrEventNotFound,
			persistence.ErrAttachmentNotFound,
		} {
			assert.True(t, persistence.IsNotFound(err), err.Error())
		}

		assert.False(t, persistence.IsNotFound(persistence.ErrUserAlreadyExists))
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		t.Parallel()

		taskErr := persistence.NewEntityError("ByID", "task", 12, persistence.ErrTaskNotFound)

		assert.True(t, persistence.IsTaskNotFound(taskErr))
		assert.True(t, persistence.IsNotFound(taskErr))
		assert.False(t, persistence.IsWorkflowNotFound(taskErr))
		assert.True(t, errors.Is(taskErr, persistence.ErrTaskNotFound))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewEntityError("Save", "workflow", 7, errors.New("disk full"))

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "workflow 7")
		assert.Contains(t, err.Error(), "disk full")
	})
}
