package services

import (
	"context"

	"github.com/dukex/flowdesk/pkg/conditions"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/template"
)

// walker moves a workflow forward. Tasks run in number order: finished tasks feed their
// outputs to the conditions of later ones, and the walk stops at the first task that starts.
type walker struct {
	deps     *Dependencies
	tx       persistence.Tx
	rc       RequestContext
	fx       *effects
	template *models.Template
	workflow *models.Workflow
	tasks    []*models.Task
}

func newWalker(ctx context.Context, deps *Dependencies, tx persistence.Tx, rc RequestContext, fx *effects, workflow *models.Workflow) (*walker, error) {
	tpl, err := tx.Templates().ByID(ctx, workflow.AccountID, workflow.TemplateID)
	if persistence.IsNotFound(err) {
		return nil, notFound("template", workflow.TemplateID, err)
	}

	if err != nil {
		return nil, err
	}

	tasks, err := tx.Tasks().ByWorkflow(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	return &walker{
		deps:     deps,
		tx:       tx,
		rc:       rc,
		fx:       fx,
		template: tpl,
		workflow: workflow,
		tasks:    tasks,
	}, nil
}

func (w *walker) advance(ctx context.Context) error {
	if w.workflow.IsDone() {
		return nil
	}

	resolver := conditions.NewMapResolver()
	resolver.AddFields(w.workflow.Kickoff)

	for _, task := range w.tasks {
		switch task.Status {
		case models.TaskStatusCompleted:
			resolver.AddFields(task.Outputs)
			resolver.CompletedTasks[task.APIName] = true

			continue
		case models.TaskStatusSkipped:
			continue
		case models.TaskStatusActive, models.TaskStatusDelayed:
			return nil
		}

		blueprint, _ := w.template.Task(task.APIName)

		decision := conditions.Evaluate(blueprint.Conditions, resolver)

		w.deps.Logger.DebugContext(ctx, "Task conditions evaluated",
			"workflow_id", w.workflow.ID, "task", task.APIName, "decision", decision)

		switch decision {
		case conditions.DecisionEndWorkflow:
			return w.endByCondition(ctx, task)
		case conditions.DecisionSkip:
			if err := w.skip(ctx, task, models.EventTypeTaskSkip); err != nil {
				return err
			}

			continue
		}

		started, err := w.start(ctx, task, blueprint, resolver)
		if err != nil || started {
			return err
		}
	}

	return w.complete(ctx)
}

// finishTask completes the task and resumes the walk.
func (w *walker) finishTask(ctx context.Context, task *models.Task) error {
	now := w.rc.now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now

	if err := w.tx.Tasks().Save(ctx, task); err != nil {
		return err
	}

	for i, t := range w.tasks {
		if t.ID == task.ID {
			w.tasks[i] = task
		}
	}

	if err := recordEvent(ctx, w.tx, w.rc, w.workflow, &models.WorkflowEvent{
		Type:   models.EventTypeTaskComplete,
		TaskID: ptr(task.ID),
	}); err != nil {
		return err
	}

	return w.advance(ctx)
}

func (w *walker) start(ctx context.Context, task *models.Task, blueprint models.TemplateTask, resolver *conditions.MapResolver) (bool, error) {
	users, groups, err := w.resolvePerformers(ctx, blueprint, resolver)
	if err != nil {
		return false, err
	}

	if len(users) == 0 && len(groups) == 0 {
		return false, w.skip(ctx, task, models.EventTypeTaskSkipNoPerformers)
	}

	now := w.rc.now()
	renderCtx := w.renderContext(resolver.Fields)

	task.Name = template.Render(blueprint.Name, renderCtx)
	renderCtx.Markdown = true
	task.Description = template.Render(blueprint.Description, renderCtx)
	task.Status = models.TaskStatusActive
	task.StartedAt = &now

	if blueprint.DueIn != nil {
		due := now.Add(*blueprint.DueIn)
		task.DueDate = &due
	}

	if err := w.tx.Tasks().Save(ctx, task); err != nil {
		return false, err
	}

	memberIDs := make([]int64, 0)

	for _, user := range users {
		if err := w.tx.Performers().Save(ctx, &models.TaskPerformer{
			TaskID:         task.ID,
			Type:           models.PerformerTypeUser,
			UserID:         ptr(user.ID),
			DirectlyStatus: models.DirectlyStatusNoStatus,
		}); err != nil {
			return false, err
		}

		memberIDs = append(memberIDs, user.ID)
	}

	for _, group := range groups {
		if err := w.tx.Performers().Save(ctx, &models.TaskPerformer{
			TaskID:         task.ID,
			Type:           models.PerformerTypeGroup,
			GroupID:        ptr(group.ID),
			DirectlyStatus: models.DirectlyStatusNoStatus,
		}); err != nil {
			return false, err
		}

		memberIDs = append(memberIDs, group.UserIDs...)
	}

	w.workflow.AddMembers(memberIDs...)

	if err := w.tx.Workflows().Save(ctx, w.workflow); err != nil {
		return false, err
	}

	if err := recordEvent(ctx, w.tx, w.rc, w.workflow, &models.WorkflowEvent{
		Type:   models.EventTypeTaskStart,
		TaskID: ptr(task.ID),
	}); err != nil {
		return false, err
	}

	targets, err := loadUsers(ctx, w.tx, w.workflow.AccountID, distinct(memberIDs))
	if err != nil {
		return false, err
	}

	w.fx.notify(w.deps.Notifier, w.taskNotification(notifications.KindNewTask, task, notifiable(targets)))

	w.deps.Logger.DebugContext(ctx, "Task started", "workflow_id", w.workflow.ID, "task_id", task.ID, "performers", len(targets))

	return true, nil
}

// resolvePerformers materializes the template performers of a task. References that
// no longer resolve are left out.
func (w *walker) resolvePerformers(ctx context.Context, blueprint models.TemplateTask, resolver conditions.Resolver) ([]*models.User, []*models.Group, error) {
	users := make([]*models.User, 0)
	groups := make([]*models.Group, 0)
	seenUsers := make(map[int64]bool)
	seenGroups := make(map[int64]bool)

	addUser := func(id int64) error {
		if seenUsers[id] {
			return nil
		}

		user, err := w.tx.Users().ByID(ctx, w.workflow.AccountID, id)
		if persistence.IsNotFound(err) {
			return nil
		}

		if err != nil {
			return err
		}

		if user.IsEligible() {
			seenUsers[id] = true
			users = append(users, user)
		}

		return nil
	}

	addGroup := func(id int64) error {
		if seenGroups[id] {
			return nil
		}

		group, err := w.tx.Groups().ByID(ctx, w.workflow.AccountID, id)
		if persistence.IsNotFound(err) {
			return nil
		}

		if err != nil {
			return err
		}

		if len(group.UserIDs) > 0 {
			seenGroups[id] = true
			groups = append(groups, group)
		}

		return nil
	}

	for _, raw := range blueprint.RawPerformers {
		var err error

		switch raw.Type {
		case models.RawPerformerUser:
			if raw.UserID != nil {
				err = addUser(*raw.UserID)
			}
		case models.RawPerformerWorkflowStarter:
			err = addUser(w.workflow.StarterID)
		case models.RawPerformerGroup:
			if raw.GroupID != nil {
				err = addGroup(*raw.GroupID)
			}
		case models.RawPerformerField:
			value, ok := resolver.FieldValue(raw.FieldAPIName)
			if !ok || value == nil {
				continue
			}

			switch {
			case value.UserID != nil:
				err = addUser(*value.UserID)
			case value.GroupID != nil:
				err = addGroup(*value.GroupID)
			}
		}

		if err != nil {
			return nil, nil, err
		}
	}

	return users, groups, nil
}

func (w *walker) skip(ctx context.Context, task *models.Task, eventType models.EventType) error {
	task.Status = models.TaskStatusSkipped

	if err := w.tx.Tasks().Save(ctx, task); err != nil {
		return err
	}

	w.deps.Logger.DebugContext(ctx, "Task skipped", "workflow_id", w.workflow.ID, "task_id", task.ID, "event", eventType)

	return recordEvent(ctx, w.tx, w.rc, w.workflow, &models.WorkflowEvent{
		Type:   eventType,
		TaskID: ptr(task.ID),
	})
}

// endByCondition finishes the workflow. The task and every later task stay pending.
func (w *walker) endByCondition(ctx context.Context, task *models.Task) error {
	w.workflow.EndedByCondition = true

	if err := w.finish(ctx); err != nil {
		return err
	}

	return recordEvent(ctx, w.tx, w.rc, w.workflow, &models.WorkflowEvent{
		Type:   models.EventTypeWorkflowEndedByCondition,
		TaskID: ptr(task.ID),
	})
}

func (w *walker) complete(ctx context.Context) error {
	if err := w.finish(ctx); err != nil {
		return err
	}

	return recordEvent(ctx, w.tx, w.rc, w.workflow, &models.WorkflowEvent{
		Type: models.EventTypeWorkflowComplete,
	})
}

func (w *walker) finish(ctx context.Context) error {
	now := w.rc.now()
	w.workflow.Status = models.WorkflowStatusDone
	w.workflow.CompletedAt = &now
	w.workflow.UpdatedAt = now

	if err := w.tx.Workflows().Save(ctx, w.workflow); err != nil {
		return err
	}

	w.fx.webhook(w.deps.Webhooks, notifications.WebhookEvent{
		Name:      notifications.WebhookWorkflowCompleted,
		AccountID: w.workflow.AccountID,
		Payload:   w.workflow.WebhookPayload(),
	})

	w.deps.Logger.DebugContext(ctx, "Workflow finished", "workflow_id", w.workflow.ID, "ended_by_condition", w.workflow.EndedByCondition)

	return nil
}

func (w *walker) renderContext(values map[string]*models.FieldValue) template.Context {
	return renderContext(w.rc, w.deps, w.template.Name, values)
}

func (w *walker) taskNotification(kind notifications.Kind, task *models.Task, users []*models.User) notifications.Notification {
	return taskNotification(w.rc, kind, w.workflow, task, users)
}

func renderContext(rc RequestContext, deps *Dependencies, templateName string, values map[string]*models.FieldValue) template.Context {
	location := rc.Location
	if location == nil {
		location = deps.Config.Location()
	}

	layout := rc.DateLayout
	if layout == "" {
		layout = deps.Config.DateLayout
	}

	return template.Context{
		TemplateName: templateName,
		Now:          rc.now(),
		Location:     location,
		DateLayout:   layout,
		Values:       values,
	}
}

func taskNotification(rc RequestContext, kind notifications.Kind, workflow *models.Workflow, task *models.Task, users []*models.User) notifications.Notification {
	n := notifications.Notification{
		Kind:         kind,
		AccountID:    workflow.AccountID,
		Recipients:   recipients(users...),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		TaskID:       task.ID,
		TaskName:     task.Name,
		TaskNumber:   task.Number,
		AccountLogo:  rc.AccountLogo,
		LogAPI:       rc.LogAPI,
	}

	if rc.User != nil {
		n.AuthorID = rc.User.ID
	}

	if task.DueDate != nil {
		n.DueDate = task.DueDate.Unix()
	}

	return n
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	result := make([]int64, 0, len(ids))

	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}

	return result
}
