package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/lib/pq"
)

type userRepository struct {
	tx *sql.Tx
}

func (r *userRepository) ByID(ctx context.Context, accountID, id int64) (*models.User, error) {
	user, ok, err := one[models.User](ctx, r.tx, "SELECT data FROM users WHERE id = $1 AND account_id = $2", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "user", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "user", id, persistence.ErrUserNotFound)
	}

	return user, nil
}

func (r *userRepository) ByEmail(ctx context.Context, accountID int64, email string) (*models.User, error) {
	user, ok, err := one[models.User](ctx, r.tx,
		"SELECT data FROM users WHERE account_id = $1 AND lower(email) = lower($2)", accountID, email)
	if err != nil {
		return nil, persistence.NewEntityError("ByEmail", "user", 0, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByEmail", "user", 0, persistence.ErrUserNotFound)
	}

	return user, nil
}

func (r *userRepository) ByIDs(ctx context.Context, accountID int64, ids []int64) ([]*models.User, error) {
	users, err := many[models.User](ctx, r.tx,
		"SELECT data FROM users WHERE account_id = $1 AND id = ANY($2) ORDER BY id", accountID, pq.Array(ids))
	if err != nil {
		return nil, persistence.NewEntityError("ByIDs", "user", 0, err)
	}

	return users, nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		id, err := nextID(ctx, r.tx, "users")
		if err != nil {
			return persistence.NewEntityError("Save", "user", 0, err)
		}

		user.ID = id
	}

	err := upsert(ctx, r.tx, "users", user.ID, user,
		column{"account_id", user.AccountID},
		column{"email", user.Email},
	)
	if isUniqueViolation(err) {
		return persistence.NewEntityError("Save", "user", user.ID, persistence.ErrUserAlreadyExists)
	}

	if err != nil {
		return persistence.NewEntityError("Save", "user", user.ID, err)
	}

	return nil
}

type groupRepository struct {
	tx *sql.Tx
}

func (r *groupRepository) ByID(ctx context.Context, accountID, id int64) (*models.Group, error) {
	group, ok, err := one[models.Group](ctx, r.tx, "SELECT data FROM user_groups WHERE id = $1 AND account_id = $2", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "group", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "group", id, persistence.ErrGroupNotFound)
	}

	return group, nil
}

func (r *groupRepository) ByIDs(ctx context.Context, accountID int64, ids []int64) ([]*models.Group, error) {
	groups, err := many[models.Group](ctx, r.tx,
		"SELECT data FROM user_groups WHERE account_id = $1 AND id = ANY($2) ORDER BY id", accountID, pq.Array(ids))
	if err != nil {
		return nil, persistence.NewEntityError("ByIDs", "group", 0, err)
	}

	return groups, nil
}

func (r *groupRepository) ByMember(ctx context.Context, accountID, userID int64) ([]*models.Group, error) {
	member, err := json.Marshal([]int64{userID})
	if err != nil {
		return nil, persistence.NewEntityError("ByMember", "group", 0, err)
	}

	groups, err := many[models.Group](ctx, r.tx,
		"SELECT data FROM user_groups WHERE account_id = $1 AND data->'user_ids' @> $2::jsonb ORDER BY id", accountID, string(member))
	if err != nil {
		return nil, persistence.NewEntityError("ByMember", "group", 0, err)
	}

	return groups, nil
}

func (r *groupRepository) Save(ctx context.Context, group *models.Group) error {
	if group.ID == 0 {
		id, err := nextID(ctx, r.tx, "user_groups")
		if err != nil {
			return persistence.NewEntityError("Save", "group", 0, err)
		}

		group.ID = id
	}

	if err := upsert(ctx, r.tx, "user_groups", group.ID, group, column{"account_id", group.AccountID}); err != nil {
		return persistence.NewEntityError("Save", "group", group.ID, err)
	}

	return nil
}

type templateRepository struct {
	tx *sql.Tx
}

func (r *templateRepository) ByID(ctx context.Context, accountID, id int64) (*models.Template, error) {
	template, ok, err := one[models.Template](ctx, r.tx, "SELECT data FROM templates WHERE id = $1 AND account_id = $2", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "template", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "template", id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

func (r *templateRepository) Save(ctx context.Context, template *models.Template) error {
	if template.ID == 0 {
		id, err := nextID(ctx, r.tx, "templates")
		if err != nil {
			return persistence.NewEntityError("Save", "template", 0, err)
		}

		template.ID = id
	}

	if err := upsert(ctx, r.tx, "templates", template.ID, template, column{"account_id", template.AccountID}); err != nil {
		return persistence.NewEntityError("Save", "template", template.ID, err)
	}

	return nil
}

type workflowRepository struct {
	tx *sql.Tx
}

func (r *workflowRepository) ByID(ctx context.Context, accountID, id int64) (*models.Workflow, error) {
	workflow, ok, err := one[models.Workflow](ctx, r.tx, "SELECT data FROM workflows WHERE id = $1 AND account_id = $2", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "workflow", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *workflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == 0 {
		id, err := nextID(ctx, r.tx, "workflows")
		if err != nil {
			return persistence.NewEntityError("Save", "workflow", 0, err)
		}

		workflow.ID = id
	}

	if err := upsert(ctx, r.tx, "workflows", workflow.ID, workflow, column{"account_id", workflow.AccountID}); err != nil {
		return persistence.NewEntityError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

type taskRepository struct {
	tx *sql.Tx
}

func (r *taskRepository) ByID(ctx context.Context, accountID, id int64) (*models.Task, error) {
	return r.byID(ctx, "ByID", "SELECT data FROM tasks WHERE id = $1 AND account_id = $2", accountID, id)
}

func (r *taskRepository) ForUpdate(ctx context.Context, accountID, id int64) (*models.Task, error) {
	return r.byID(ctx, "ForUpdate", "SELECT data FROM tasks WHERE id = $1 AND account_id = $2 FOR UPDATE", accountID, id)
}

func (r *taskRepository) byID(ctx context.Context, op, query string, accountID, id int64) (*models.Task, error) {
	task, ok, err := one[models.Task](ctx, r.tx, query, id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError(op, "task", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError(op, "task", id, persistence.ErrTaskNotFound)
	}

	return task, nil
}

func (r *taskRepository) ByWorkflow(ctx context.Context, workflowID int64) ([]*models.Task, error) {
	tasks, err := many[models.Task](ctx, r.tx, "SELECT data FROM tasks WHERE workflow_id = $1 ORDER BY number, id", workflowID)
	if err != nil {
		return nil, persistence.NewEntityError("ByWorkflow", "task", 0, err)
	}

	return tasks, nil
}

func (r *taskRepository) Save(ctx context.Context, task *models.Task) error {
	if task.ID == 0 {
		id, err := nextID(ctx, r.tx, "tasks")
		if err != nil {
			return persistence.NewEntityError("Save", "task", 0, err)
		}

		task.ID = id
	}

	err := upsert(ctx, r.tx, "tasks", task.ID, task,
		column{"account_id", task.AccountID},
		column{"workflow_id", task.WorkflowID},
		column{"number", task.Number},
	)
	if err != nil {
		return persistence.NewEntityError("Save", "task", task.ID, err)
	}

	return nil
}

type performerRepository struct {
	tx *sql.Tx
}

func (r *performerRepository) ByTask(ctx context.Context, taskID int64) ([]*models.TaskPerformer, error) {
	performers, err := many[models.TaskPerformer](ctx, r.tx,
		"SELECT data FROM task_performers WHERE task_id = $1 ORDER BY id FOR UPDATE", taskID)
	if err != nil {
		return nil, persistence.NewEntityError("ByTask", "performer", 0, err)
	}

	return performers, nil
}

func (r *performerRepository) Save(ctx context.Context, performer *models.TaskPerformer) error {
	if performer.ID == 0 {
		id, err := nextID(ctx, r.tx, "task_performers")
		if err != nil {
			return persistence.NewEntityError("Save", "performer", 0, err)
		}

		performer.ID = id
	}

	if err := upsert(ctx, r.tx, "task_performers", performer.ID, performer, column{"task_id", performer.TaskID}); err != nil {
		return persistence.NewEntityError("Save", "performer", performer.ID, err)
	}

	return nil
}

type eventRepository struct {
	tx *sql.Tx
}

func (r *eventRepository) ByID(ctx context.Context, accountID, id int64) (*models.WorkflowEvent, error) {
	event, ok, err := one[models.WorkflowEvent](ctx, r.tx,
		"SELECT data FROM workflow_events WHERE id = $1 AND account_id = $2 FOR UPDATE", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "event", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "event", id, persistence.ErrEventNotFound)
	}

	return event, nil
}

func (r *eventRepository) ByWorkflow(ctx context.Context, workflowID int64) ([]*models.WorkflowEvent, error) {
	events, err := many[models.WorkflowEvent](ctx, r.tx, "SELECT data FROM workflow_events WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, persistence.NewEntityError("ByWorkflow", "event", 0, err)
	}

	return events, nil
}

func (r *eventRepository) Save(ctx context.Context, event *models.WorkflowEvent) error {
	if event.ID == 0 {
		id, err := nextID(ctx, r.tx, "workflow_events")
		if err != nil {
			return persistence.NewEntityError("Save", "event", 0, err)
		}

		event.ID = id
	}

	err := upsert(ctx, r.tx, "workflow_events", event.ID, event,
		column{"account_id", event.AccountID},
		column{"workflow_id", event.WorkflowID},
	)
	if err != nil {
		return persistence.NewEntityError("Save", "event", event.ID, err)
	}

	return nil
}

type attachmentRepository struct {
	tx *sql.Tx
}

func (r *attachmentRepository) ByID(ctx context.Context, accountID, id int64) (*models.FileAttachment, error) {
	attachment, ok, err := one[models.FileAttachment](ctx, r.tx,
		"SELECT data FROM file_attachments WHERE id = $1 AND account_id = $2", id, accountID)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "attachment", id, err)
	}

	if !ok {
		return nil, persistence.NewEntityError("ByID", "attachment", id, persistence.ErrAttachmentNotFound)
	}

	return attachment, nil
}

func (r *attachmentRepository) ByEvent(ctx context.Context, eventID int64) ([]*models.FileAttachment, error) {
	attachments, err := many[models.FileAttachment](ctx, r.tx, "SELECT data FROM file_attachments WHERE event_id = $1 ORDER BY id", eventID)
	if err != nil {
		return nil, persistence.NewEntityError("ByEvent", "attachment", 0, err)
	}

	return attachments, nil
}

func (r *attachmentRepository) Save(ctx context.Context, attachment *models.FileAttachment) error {
	if attachment.ID == 0 {
		id, err := nextID(ctx, r.tx, "file_attachments")
		if err != nil {
			return persistence.NewEntityError("Save", "attachment", 0, err)
		}

		attachment.ID = id
	}

	err := upsert(ctx, r.tx, "file_attachments", attachment.ID, attachment,
		column{"account_id", attachment.AccountID},
		column{"event_id", attachment.EventID},
	)
	if err != nil {
		return persistence.NewEntityError("Save", "attachment", attachment.ID, err)
	}

	return nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.tx.ExecContext(ctx, "DELETE FROM file_attachments WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("Delete", "attachment", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEntityError("Delete", "attachment", id, err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Delete", "attachment", id, persistence.ErrAttachmentNotFound)
	}

	return nil
}
