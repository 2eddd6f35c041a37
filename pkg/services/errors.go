// Package services implements the workflow engine operations: running workflows,
// managing task performers and commenting on tasks.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowdesk/pkg/models"
)

// State conflicts. The operation was valid but the entities are not in a state that allows it.
var (
	ErrTemplateNotActive           = errors.New("template is not active")
	ErrWorkflowNotRunning          = errors.New("workflow is not running")
	ErrTaskNotActive               = errors.New("task is not active")
	ErrAncestorTaskNotActive       = errors.New("ancestor task is not active")
	ErrLastPerformer               = errors.New("task must keep at least one performer")
	ErrGuestQuotaExceeded          = errors.New("guest performer limit reached for the task")
	ErrCommentIsDeleted            = errors.New("comment is deleted")
	ErrCommentedWorkflowNotRunning = errors.New("cannot comment on a finished workflow")
	ErrCommentedTaskNotActive      = errors.New("cannot comment on a task that is not active")
)

// Permission reasons.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotPerformer     = errors.New("user is not a performer of the task")
	ErrDeletedPerformer = errors.New("user was removed from the task")
	ErrGuestForbidden   = errors.New("guest performers are not allowed")
	ErrNotAuthor        = errors.New("only the author can change the comment")
)

// Validation reasons.
var (
	ErrCommentedNotTask    = errors.New("comment must reference a task")
	ErrCommentTextRequired = errors.New("comment needs a text or an attachment")
	ErrReactionRequired    = errors.New("reaction is required")
	ErrNotComment          = errors.New("event is not a comment")
	ErrAttachmentInUse     = errors.New("attachment is already in use")
	ErrInvalidGuestEmail   = errors.New("guest email is invalid")
	ErrUnsupportedRef      = errors.New("unsupported performer reference")
)

// ErrUserIneligible is the not found reason for users that exist but cannot be assigned:
// inactive members, guests where a member is expected, or users of another account.
var ErrUserIneligible = errors.New("user not found or not eligible")

// PermissionError is returned when the acting user may not perform the operation.
type PermissionError struct {
	Reason error
}

func (e *PermissionError) Error() string {
	return e.Reason.Error()
}

func (e *PermissionError) Unwrap() error {
	return e.Reason
}

// StateConflictError is returned when an entity is not in a state that allows the operation.
type StateConflictError struct {
	Reason error
}

func (e *StateConflictError) Error() string {
	return e.Reason.Error()
}

func (e *StateConflictError) Unwrap() error {
	return e.Reason
}

// NotFoundError is returned when a referenced entity does not exist or belongs to
// another account.
type NotFoundError struct {
	Entity string
	ID     int64
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Entity)
	}

	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ServiceError wraps service-level errors with the operation that failed.
type ServiceError struct {
	Op  string // Operation name, e.g. "performers.create"
	Err error  // Underlying error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func permission(reason error) error {
	return &PermissionError{Reason: reason}
}

func conflict(reason error) error {
	return &StateConflictError{Reason: reason}
}

func notFound(entity string, id int64, err error) error {
	return &NotFoundError{Entity: entity, ID: id, Err: err}
}

func invalid(apiName string, reason error) error {
	return models.WrapValidationError(apiName, reason)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return &ServiceError{Op: op, Err: err}
}

// IsValidation reports whether err is a malformed request or template.
func IsValidation(err error) bool {
	_, ok := models.AsValidationError(err)

	return ok
}

// IsPermission reports whether err is an access denial.
func IsPermission(err error) bool {
	var target *PermissionError

	return errors.As(err, &target)
}

// IsStateConflict reports whether err is a state conflict.
func IsStateConflict(err error) bool {
	var target *StateConflictError

	return errors.As(err, &target)
}

// IsNotFound reports whether err references a missing entity.
func IsNotFound(err error) bool {
	var target *NotFoundError

	return errors.As(err, &target)
}
