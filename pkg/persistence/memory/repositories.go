package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
)

type userRepository struct {
	state *state
}

func (r *userRepository) ByID(_ context.Context, accountID, id int64) (*models.User, error) {
	user, ok, err := load[models.User](r.state.Users, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "user", id, err)
	}

	if !ok || user.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "user", id, persistence.ErrUserNotFound)
	}

	return user, nil
}

func (r *userRepository) ByEmail(_ context.Context, accountID int64, email string) (*models.User, error) {
	users, err := scan(r.state.Users, func(u *models.User) bool {
		return u.AccountID == accountID && strings.EqualFold(u.Email, email)
	})
	if err != nil {
		return nil, persistence.NewEntityError("ByEmail", "user", 0, err)
	}

	if len(users) == 0 {
		return nil, persistence.NewEntityError("ByEmail", "user", 0, persistence.ErrUserNotFound)
	}

	return users[0], nil
}

func (r *userRepository) ByIDs(_ context.Context, accountID int64, ids []int64) ([]*models.User, error) {
	users, err := scan(r.state.Users, func(u *models.User) bool {
		return u.AccountID == accountID && slices.Contains(ids, u.ID)
	})
	if err != nil {
		return nil, persistence.NewEntityError("ByIDs", "user", 0, err)
	}

	return users, nil
}

func (r *userRepository) Save(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		if existing, err := r.ByEmail(ctx, user.AccountID, user.Email); err == nil && existing != nil {
			return persistence.NewEntityError("Save", "user", existing.ID, persistence.ErrUserAlreadyExists)
		}

		user.ID = r.state.next("users")
	}

	if err := store(r.state.Users, user.ID, user); err != nil {
		return persistence.NewEntityError("Save", "user", user.ID, err)
	}

	return nil
}

type groupRepository struct {
	state *state
}

func (r *groupRepository) ByID(_ context.Context, accountID, id int64) (*models.Group, error) {
	group, ok, err := load[models.Group](r.state.Groups, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "group", id, err)
	}

	if !ok || group.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "group", id, persistence.ErrGroupNotFound)
	}

	return group, nil
}

func (r *groupRepository) ByIDs(_ context.Context, accountID int64, ids []int64) ([]*models.Group, error) {
	groups, err := scan(r.state.Groups, func(g *models.Group) bool {
		return g.AccountID == accountID && slices.Contains(ids, g.ID)
	})
	if err != nil {
		return nil, persistence.NewEntityError("ByIDs", "group", 0, err)
	}

	return groups, nil
}

func (r *groupRepository) ByMember(_ context.Context, accountID, userID int64) ([]*models.Group, error) {
	groups, err := scan(r.state.Groups, func(g *models.Group) bool {
		return g.AccountID == accountID && g.HasMember(userID)
	})
	if err != nil {
		return nil, persistence.NewEntityError("ByMember", "group", 0, err)
	}

	return groups, nil
}

func (r *groupRepository) Save(_ context.Context, group *models.Group) error {
	if group.ID == 0 {
		group.ID = r.state.next("groups")
	}

	if err := store(r.state.Groups, group.ID, group); err != nil {
		return persistence.NewEntityError("Save", "group", group.ID, err)
	}

	return nil
}

type templateRepository struct {
	state *state
}

func (r *templateRepository) ByID(_ context.Context, accountID, id int64) (*models.Template, error) {
	template, ok, err := load[models.Template](r.state.Templates, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "template", id, err)
	}

	if !ok || template.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "template", id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

func (r *templateRepository) Save(_ context.Context, template *models.Template) error {
	if template.ID == 0 {
		template.ID = r.state.next("templates")
	}

	if err := store(r.state.Templates, template.ID, template); err != nil {
		return persistence.NewEntityError("Save", "template", template.ID, err)
	}

	return nil
}

type workflowRepository struct {
	state *state
}

func (r *workflowRepository) ByID(_ context.Context, accountID, id int64) (*models.Workflow, error) {
	workflow, ok, err := load[models.Workflow](r.state.Workflows, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "workflow", id, err)
	}

	if !ok || workflow.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == 0 {
		workflow.ID = r.state.next("workflows")
	}

	if err := store(r.state.Workflows, workflow.ID, workflow); err != nil {
		return persistence.NewEntityError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

type taskRepository struct {
	state *state
}

func (r *taskRepository) ByID(_ context.Context, accountID, id int64) (*models.Task, error) {
	task, ok, err := load[models.Task](r.state.Tasks, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "task", id, err)
	}

	if !ok || task.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "task", id, persistence.ErrTaskNotFound)
	}

	return task, nil
}

// ForUpdate is ByID: transactions are already serialized.
func (r *taskRepository) ForUpdate(ctx context.Context, accountID, id int64) (*models.Task, error) {
	return r.ByID(ctx, accountID, id)
}

func (r *taskRepository) ByWorkflow(_ context.Context, workflowID int64) ([]*models.Task, error) {
	tasks, err := scan(r.state.Tasks, func(t *models.Task) bool { return t.WorkflowID == workflowID })
	if err != nil {
		return nil, persistence.NewEntityError("ByWorkflow", "task", 0, err)
	}

	slices.SortStableFunc(tasks, func(a, b *models.Task) int { return a.Number - b.Number })

	return tasks, nil
}

func (r *taskRepository) Save(_ context.Context, task *models.Task) error {
	if task.ID == 0 {
		task.ID = r.state.next("tasks")
	}

	if err := store(r.state.Tasks, task.ID, task); err != nil {
		return persistence.NewEntityError("Save", "task", task.ID, err)
	}

	return nil
}

type performerRepository struct {
	state *state
}

func (r *performerRepository) ByTask(_ context.Context, taskID int64) ([]*models.TaskPerformer, error) {
	performers, err := scan(r.state.Performers, func(p *models.TaskPerformer) bool { return p.TaskID == taskID })
	if err != nil {
		return nil, persistence.NewEntityError("ByTask", "performer", 0, err)
	}

	return performers, nil
}

func (r *performerRepository) Save(_ context.Context, performer *models.TaskPerformer) error {
	if performer.ID == 0 {
		performer.ID = r.state.next("performers")
	}

	if err := store(r.state.Performers, performer.ID, performer); err != nil {
		return persistence.NewEntityError("Save", "performer", performer.ID, err)
	}

	return nil
}

type eventRepository struct {
	state *state
}

func (r *eventRepository) ByID(_ context.Context, accountID, id int64) (*models.WorkflowEvent, error) {
	event, ok, err := load[models.WorkflowEvent](r.state.Events, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "event", id, err)
	}

	if !ok || event.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "event", id, persistence.ErrEventNotFound)
	}

	return event, nil
}

func (r *eventRepository) ByWorkflow(_ context.Context, workflowID int64) ([]*models.WorkflowEvent, error) {
	events, err := scan(r.state.Events, func(e *models.WorkflowEvent) bool { return e.WorkflowID == workflowID })
	if err != nil {
		return nil, persistence.NewEntityError("ByWorkflow", "event", 0, err)
	}

	return events, nil
}

func (r *eventRepository) Save(_ context.Context, event *models.WorkflowEvent) error {
	if event.ID == 0 {
		event.ID = r.state.next("events")
	}

	if err := store(r.state.Events, event.ID, event); err != nil {
		return persistence.NewEntityError("Save", "event", event.ID, err)
	}

	return nil
}

type attachmentRepository struct {
	state *state
}

func (r *attachmentRepository) ByID(_ context.Context, accountID, id int64) (*models.FileAttachment, error) {
	attachment, ok, err := load[models.FileAttachment](r.state.Attachments, id)
	if err != nil {
		return nil, persistence.NewEntityError("ByID", "attachment", id, err)
	}

	if !ok || attachment.AccountID != accountID {
		return nil, persistence.NewEntityError("ByID", "attachment", id, persistence.ErrAttachmentNotFound)
	}

	return attachment, nil
}

func (r *attachmentRepository) ByEvent(_ context.Context, eventID int64) ([]*models.FileAttachment, error) {
	attachments, err := scan(r.state.Attachments, func(a *models.FileAttachment) bool {
		return a.EventID != nil && *a.EventID == eventID
	})
	if err != nil {
		return nil, persistence.NewEntityError("ByEvent", "attachment", 0, err)
	}

	return attachments, nil
}

func (r *attachmentRepository) Save(_ context.Context, attachment *models.FileAttachment) error {
	if attachment.ID == 0 {
		attachment.ID = r.state.next("attachments")
	}

	if err := store(r.state.Attachments, attachment.ID, attachment); err != nil {
		return persistence.NewEntityError("Save", "attachment", attachment.ID, err)
	}

	return nil
}

func (r *attachmentRepository) Delete(_ context.Context, id int64) error {
	if _, ok := r.state.Attachments[id]; !ok {
		return persistence.NewEntityError("Delete", "attachment", id, persistence.ErrAttachmentNotFound)
	}

	delete(r.state.Attachments, id)

	return nil
}
