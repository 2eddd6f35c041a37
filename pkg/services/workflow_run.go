package services

import (
	"context"
	"strings"
	"time"

	"github.com/dukex/flowdesk/pkg/fields"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/otelhelper"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/template"
	"go.opentelemetry.io/otel/attribute"
)

// RunRequest holds the caller supplied values of a new workflow.
type RunRequest struct {
	TemplateID int64
	Kickoff    map[string]any

	// Name is used verbatim when set, otherwise the template name template is rendered.
	Name string

	IsUrgent       bool
	DueDate        *time.Time
	AncestorTaskID *int64 // Task that started this workflow as a sub workflow
}

// WorkflowRun starts workflows and moves them forward when tasks complete.
type WorkflowRun struct {
	deps    Dependencies
	coercer *fields.Coercer
}

// NewWorkflowRun returns the workflow run service.
func NewWorkflowRun(deps Dependencies) *WorkflowRun {
	return &WorkflowRun{
		deps:    deps.withDefaults("workflow_run"),
		coercer: fields.NewCoercer(),
	}
}

// Run creates a workflow from an active template and starts its first reachable task.
func (s *WorkflowRun) Run(ctx context.Context, rc RequestContext, req RunRequest) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.deps.Tracer, "workflow_run.run",
		attribute.Int64(otelhelper.TemplateIDKey, req.TemplateID),
		attribute.Int64(otelhelper.AccountIDKey, rc.accountID()),
	)
	defer span.End()

	var (
		fx       effects
		workflow *models.Workflow
	)

	err := s.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		fx.reset()

		var err error

		workflow, err = s.run(ctx, tx, rc, &fx, req)

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, wrap("workflow_run.run", err)
	}

	span.SetAttributes(attribute.Int64(otelhelper.WorkflowIDKey, workflow.ID))
	fx.flush(ctx, s.deps.Logger)

	return workflow, nil
}

func (s *WorkflowRun) run(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, req RunRequest) (*models.Workflow, error) {
	accountID := rc.accountID()

	tpl, err := tx.Templates().ByID(ctx, accountID, req.TemplateID)
	if persistence.IsNotFound(err) {
		return nil, notFound("template", req.TemplateID, err)
	}

	if err != nil {
		return nil, err
	}

	if !tpl.IsActive || tpl.IsLegacy {
		return nil, conflict(ErrTemplateNotActive)
	}

	var ancestor *taskState

	if req.AncestorTaskID != nil {
		ancestor, err = s.validateAncestor(ctx, tx, rc, *req.AncestorTaskID)
		if err != nil {
			return nil, err
		}
	}

	kickoff, err := s.coercer.CoerceAll(ctx, tpl.Kickoff.Fields, req.Kickoff, fields.TxLookup{Tx: tx, AccountID: accountID})
	if err != nil {
		return nil, err
	}

	now := rc.now()

	workflow := &models.Workflow{
		AccountID:      accountID,
		TemplateID:     tpl.ID,
		TemplateName:   tpl.Name,
		Name:           s.workflowName(rc, tpl, kickoff, req.Name),
		Description:    tpl.Description,
		Status:         models.WorkflowStatusRunning,
		IsUrgent:       req.IsUrgent,
		DueDate:        req.DueDate,
		AncestorTaskID: req.AncestorTaskID,
		StarterID:      rc.User.ID,
		Kickoff:        kickoff,
		MemberIDs:      []int64{rc.User.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := tx.Workflows().Save(ctx, workflow); err != nil {
		return nil, err
	}

	if err := bindKickoffFiles(ctx, tx, accountID, workflow); err != nil {
		return nil, err
	}

	for _, blueprint := range tpl.SortedTasks() {
		renderCtx := renderContext(rc, &s.deps, tpl.Name, kickoff)

		task := &models.Task{
			AccountID:              accountID,
			WorkflowID:             workflow.ID,
			APIName:                blueprint.APIName,
			Number:                 blueprint.Number,
			Name:                   template.Render(blueprint.Name, renderCtx),
			Description:            blueprint.Description,
			Status:                 models.TaskStatusPending,
			RequireCompletionByAll: blueprint.RequireCompletionByAll,
		}

		if err := tx.Tasks().Save(ctx, task); err != nil {
			return nil, err
		}
	}

	if err := recordEvent(ctx, tx, rc, workflow, &models.WorkflowEvent{Type: models.EventTypeWorkflowRun}); err != nil {
		return nil, err
	}

	if ancestor != nil {
		if err := recordEvent(ctx, tx, rc, ancestor.workflow, &models.WorkflowEvent{
			Type:          models.EventTypeSubWorkflowRun,
			TaskID:        ptr(ancestor.task.ID),
			SubWorkflowID: ptr(workflow.ID),
		}); err != nil {
			return nil, err
		}
	}

	fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsWorkflowStarted, workflow.ID, map[string]any{
		"template_id": tpl.ID,
		"kickoff":     len(kickoff),
	}))

	if workflow.IsUrgent {
		fx.track(s.deps.Analytics, rc.analytics(notifications.AnalyticsWorkflowUrgent, workflow.ID, nil))
	}

	fx.webhook(s.deps.Webhooks, notifications.WebhookEvent{
		Name:      notifications.WebhookWorkflowStarted,
		AccountID: accountID,
		Payload:   workflow.WebhookPayload(),
	})

	w, err := newWalker(ctx, &s.deps, tx, rc, fx, workflow)
	if err != nil {
		return nil, err
	}

	if err := w.advance(ctx); err != nil {
		return nil, err
	}

	s.deps.Logger.DebugContext(ctx, "Workflow started", "workflow_id", workflow.ID, "template_id", tpl.ID, "status", workflow.Status)

	return workflow, nil
}

func (s *WorkflowRun) workflowName(rc RequestContext, tpl *models.Template, kickoff map[string]*models.FieldValue, explicit string) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}

	nameTemplate := tpl.NameTemplate
	if nameTemplate == "" {
		nameTemplate = tpl.Name
	}

	name := strings.TrimSpace(template.Render(nameTemplate, renderContext(rc, &s.deps, tpl.Name, kickoff)))
	if name == "" {
		name = tpl.Name
	}

	return template.Truncate(name, s.deps.Config.WorkflowNameMaxLength)
}

// validateAncestor checks the task a sub workflow is started from. A task of another
// account is reported as missing.
func (s *WorkflowRun) validateAncestor(ctx context.Context, tx persistence.Tx, rc RequestContext, taskID int64) (*taskState, error) {
	state, err := loadTaskForUpdate(ctx, tx, rc.accountID(), taskID)
	if err != nil {
		return nil, err
	}

	if state.workflow.IsDone() || !state.task.IsActive() {
		return nil, conflict(ErrAncestorTaskNotActive)
	}

	if rc.User.IsGuest() {
		return nil, permission(ErrGuestForbidden)
	}

	row := state.userRow(rc.User.ID)
	if row != nil && !row.IsDeleted() {
		return state, nil
	}

	performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
	if err != nil {
		return nil, err
	}

	if row == nil && performers.byGroup[rc.User.ID] {
		return state, nil
	}

	if rc.User.IsAccountOwner {
		return state, nil
	}

	return nil, permission(ErrNotPerformer)
}

// bindKickoffFiles moves the attachments of file fields to the workflow.
func bindKickoffFiles(ctx context.Context, tx persistence.Tx, accountID int64, workflow *models.Workflow) error {
	for _, value := range workflow.Kickoff {
		for _, id := range value.AttachmentIDs {
			attachment, err := tx.Attachments().ByID(ctx, accountID, id)
			if err != nil {
				return err
			}

			attachment.WorkflowID = ptr(workflow.ID)

			if err := tx.Attachments().Save(ctx, attachment); err != nil {
				return err
			}
		}
	}

	return nil
}

// CompleteTask marks the task completed by the acting user. The task is completed once
// its completion policy is met: any performer, or every performer when completion by all
// is required. Completing a task starts the next reachable one.
func (s *WorkflowRun) CompleteTask(ctx context.Context, rc RequestContext, taskID int64, outputs map[string]any) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.deps.Tracer, "workflow_run.complete_task",
		attribute.Int64(otelhelper.TaskIDKey, taskID),
		attribute.Int64(otelhelper.AccountIDKey, rc.accountID()),
	)
	defer span.End()

	var (
		fx   effects
		task *models.Task
	)

	err := s.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		fx.reset()

		var err error

		task, err = s.completeTask(ctx, tx, rc, &fx, taskID, outputs)

		return err
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, wrap("workflow_run.complete_task", err)
	}

	fx.flush(ctx, s.deps.Logger)

	return task, nil
}

func (s *WorkflowRun) completeTask(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, taskID int64, outputs map[string]any) (*models.Task, error) {
	state, err := loadTaskForUpdate(ctx, tx, rc.accountID(), taskID)
	if err != nil {
		return nil, err
	}

	if err := state.requireActive(); err != nil {
		return nil, err
	}

	performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
	if err != nil {
		return nil, err
	}

	userID := rc.User.ID

	if row := state.userRow(userID); row != nil && row.IsDeleted() {
		return nil, permission(ErrDeletedPerformer)
	}

	if !performers.has(userID) {
		return nil, permission(ErrNotPerformer)
	}

	tpl, err := tx.Templates().ByID(ctx, rc.accountID(), state.workflow.TemplateID)
	if err != nil && !persistence.IsNotFound(err) {
		return nil, err
	}

	// Performers completing after the first one may leave the outputs alone.
	if tpl != nil && (len(outputs) > 0 || state.task.Outputs == nil) {
		blueprint, _ := tpl.Task(state.task.APIName)

		values, err := s.coercer.CoerceAll(ctx, blueprint.Fields, outputs, fields.TxLookup{Tx: tx, AccountID: rc.accountID()})
		if err != nil {
			return nil, err
		}

		if len(values) > 0 {
			state.task.Outputs = values
		}
	}

	now := rc.now()

	for _, row := range activeRows(state.rows) {
		ofUser := row.IsUser(userID)
		if row.Type == models.PerformerTypeGroup && row.GroupID != nil {
			group := performers.groups[*row.GroupID]
			ofUser = group != nil && group.HasMember(userID)
		}

		if !ofUser || row.IsCompleted {
			continue
		}

		row.IsCompleted = true
		row.CompletedBy = ptr(userID)
		row.CompletedAt = &now

		if err := tx.Performers().Save(ctx, row); err != nil {
			return nil, err
		}
	}

	if !isComplete(state.task, state.rows) {
		if err := tx.Tasks().Save(ctx, state.task); err != nil {
			return nil, err
		}

		return state.task, nil
	}

	w, err := newWalker(ctx, &s.deps, tx, rc, fx, state.workflow)
	if err != nil {
		return nil, err
	}

	if err := w.finishTask(ctx, state.task); err != nil {
		return nil, err
	}

	return state.task, nil
}
