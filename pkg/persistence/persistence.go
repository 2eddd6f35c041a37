// Package persistence provides data storage abstraction layer for templates, workflows and their activity.
package persistence

import (
	"context"

	"github.com/dukex/flowdesk/pkg/models"
)

// Persistence runs units of work against a store.
type Persistence interface {
	// WithTx runs fn in one transaction. The transaction commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Users() UserRepository
	Groups() GroupRepository
	Templates() TemplateRepository
	Workflows() WorkflowRepository
	Tasks() TaskRepository
	Performers() PerformerRepository
	Events() EventRepository
	Attachments() AttachmentRepository
}

// Lookups by id are account scoped: an entity of another account is reported as not found.

type UserRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.User, error)
	ByEmail(ctx context.Context, accountID int64, email string) (*models.User, error)
	// ByIDs returns the users found, skipping unknown ids.
	ByIDs(ctx context.Context, accountID int64, ids []int64) ([]*models.User, error)
	Save(ctx context.Context, user *models.User) error
}

type GroupRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.Group, error)
	ByIDs(ctx context.Context, accountID int64, ids []int64) ([]*models.Group, error)
	ByMember(ctx context.Context, accountID, userID int64) ([]*models.Group, error)
	Save(ctx context.Context, group *models.Group) error
}

type TemplateRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.Template, error)
	Save(ctx context.Context, template *models.Template) error
}

type WorkflowRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
}

type TaskRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.Task, error)
	// ForUpdate loads the task and holds a row lock on it until the transaction ends.
	ForUpdate(ctx context.Context, accountID, id int64) (*models.Task, error)
	// ByWorkflow returns the tasks of a workflow ordered by number.
	ByWorkflow(ctx context.Context, workflowID int64) ([]*models.Task, error)
	Save(ctx context.Context, task *models.Task) error
}

type PerformerRepository interface {
	// ByTask returns every performer row of the task, deleted ones included, and locks them.
	ByTask(ctx context.Context, taskID int64) ([]*models.TaskPerformer, error)
	Save(ctx context.Context, performer *models.TaskPerformer) error
}

type EventRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.WorkflowEvent, error)
	// ByWorkflow returns the events of a workflow in creation order.
	ByWorkflow(ctx context.Context, workflowID int64) ([]*models.WorkflowEvent, error)
	Save(ctx context.Context, event *models.WorkflowEvent) error
}

type AttachmentRepository interface {
	ByID(ctx context.Context, accountID, id int64) (*models.FileAttachment, error)
	ByEvent(ctx context.Context, eventID int64) ([]*models.FileAttachment, error)
	Save(ctx context.Context, attachment *models.FileAttachment) error
	Delete(ctx context.Context, id int64) error
}
