// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every entity specific not found error.
var ErrNotFound = errors.New("not found")

// Standard persistence error types that all implementations should use.
var (
	// ErrUserNotFound indicates a user does not exist in the account.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrGroupNotFound indicates a group does not exist in the account.
	ErrGroupNotFound = fmt.Errorf("group %w", ErrNotFound)

	// ErrTemplateNotFound indicates a template does not exist in the account.
	ErrTemplateNotFound = fmt.Errorf("template %w", ErrNotFound)

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)

	// ErrTaskNotFound indicates a task does not exist in the account.
	ErrTaskNotFound = fmt.Errorf("task %w", ErrNotFound)

	// ErrEventNotFound indicates a workflow event does not exist in the account.
	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)

	// ErrAttachmentNotFound indicates a file attachment does not exist in the account.
	ErrAttachmentNotFound = fmt.Errorf("attachment %w", ErrNotFound)

	// ErrUserAlreadyExists indicates a user with the same email already exists in the account.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// EntityError wraps repository errors with the operation and the entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "ByID", "Save", "Delete")
	Entity string
	ID     int64
	Err    error
}

func (e *EntityError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity string, id int64, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUserNotFound checks if an error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}
