package services

import (
	"context"
	"strings"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/otelhelper"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

// PerformerRef identifies who is added to or removed from a task.
type PerformerRef interface {
	resolveForCreate(ctx context.Context, scope refScope) (*resolvedPerformer, error)
	resolveForDelete(ctx context.Context, scope refScope) (*resolvedPerformer, error)
}

// UserRef references an account member.
type UserRef struct {
	ID int64
}

// GuestRef references a guest by email. Adding an unknown email creates the guest.
type GuestRef struct {
	Email string
}

// GroupRef references a group of account members.
type GroupRef struct {
	ID int64
}

type refScope struct {
	tx        persistence.Tx
	accountID int64
	validate  *validator.Validate
}

type resolvedPerformer struct {
	user  *models.User
	group *models.Group
}

func (r UserRef) resolveForCreate(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	user, err := scope.tx.Users().ByID(ctx, scope.accountID, r.ID)
	if persistence.IsNotFound(err) {
		return nil, notFound("user", r.ID, ErrUserIneligible)
	}

	if err != nil {
		return nil, err
	}

	if !user.IsEligible() {
		return nil, notFound("user", r.ID, ErrUserIneligible)
	}

	return &resolvedPerformer{user: user}, nil
}

func (r UserRef) resolveForDelete(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	user, err := scope.tx.Users().ByID(ctx, scope.accountID, r.ID)
	if persistence.IsNotFound(err) {
		return nil, notFound("user", r.ID, ErrUserIneligible)
	}

	if err != nil {
		return nil, err
	}

	return &resolvedPerformer{user: user}, nil
}

func (r GuestRef) email(scope refScope) (string, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))

	if err := scope.validate.Var(email, "required,email"); err != nil {
		return "", invalid("email", ErrInvalidGuestEmail)
	}

	return email, nil
}

func (r GuestRef) resolveForCreate(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	email, err := r.email(scope)
	if err != nil {
		return nil, err
	}

	user, err := scope.tx.Users().ByEmail(ctx, scope.accountID, email)

	switch {
	case persistence.IsNotFound(err):
		user = &models.User{
			AccountID: scope.accountID,
			Email:     email,
			Type:      models.UserTypeGuest,
			Status:    models.UserStatusActive,
		}

		if err := scope.tx.Users().Save(ctx, user); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !user.IsGuest():
		return nil, notFound("guest", user.ID, ErrUserIneligible)
	}

	return &resolvedPerformer{user: user}, nil
}

func (r GuestRef) resolveForDelete(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	email, err := r.email(scope)
	if err != nil {
		return nil, err
	}

	user, err := scope.tx.Users().ByEmail(ctx, scope.accountID, email)
	if persistence.IsNotFound(err) {
		return nil, notFound("guest", 0, ErrUserIneligible)
	}

	if err != nil {
		return nil, err
	}

	if !user.IsGuest() {
		return nil, notFound("guest", user.ID, ErrUserIneligible)
	}

	return &resolvedPerformer{user: user}, nil
}

func (r GroupRef) resolveForCreate(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	return r.resolve(ctx, scope)
}

func (r GroupRef) resolveForDelete(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	return r.resolve(ctx, scope)
}

func (r GroupRef) resolve(ctx context.Context, scope refScope) (*resolvedPerformer, error) {
	group, err := scope.tx.Groups().ByID(ctx, scope.accountID, r.ID)
	if persistence.IsNotFound(err) {
		return nil, notFound("group", r.ID, err)
	}

	if err != nil {
		return nil, err
	}

	return &resolvedPerformer{group: group}, nil
}

// performerCore implements the add and remove lifecycle shared by user, guest and
// group performers.
type performerCore struct {
	deps     Dependencies
	validate *validator.Validate
}

func newPerformerCore(deps Dependencies, module string) *performerCore {
	return &performerCore{
		deps:     deps.withDefaults(module),
		validate: validator.New(),
	}
}

func (c *performerCore) create(ctx context.Context, rc RequestContext, op string, ref PerformerRef, taskID int64) (*resolvedPerformer, *models.TaskPerformer, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.deps.Tracer, op,
		attribute.Int64(otelhelper.TaskIDKey, taskID),
		attribute.Int64(otelhelper.UserIDKey, rc.User.ID),
	)
	defer span.End()

	var (
		fx       effects
		resolved *resolvedPerformer
		row      *models.TaskPerformer
	)

	err := c.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		fx.reset()

		state, performers, err := c.prepare(ctx, tx, rc, taskID)
		if err != nil {
			return err
		}

		resolved, err = ref.resolveForCreate(ctx, refScope{tx: tx, accountID: rc.accountID(), validate: c.validate})
		if err != nil {
			return err
		}

		row = existingRow(state, resolved)
		if row != nil && !row.IsDeleted() {
			return nil
		}

		if resolved.user != nil && resolved.user.IsGuest() {
			if err := c.checkGuestQuota(ctx, tx, rc, state); err != nil {
				return err
			}
		}

		if row == nil {
			row = &models.TaskPerformer{TaskID: state.task.ID}

			if resolved.group != nil {
				row.Type = models.PerformerTypeGroup
				row.GroupID = ptr(resolved.group.ID)
			} else {
				row.Type = models.PerformerTypeUser
				row.UserID = ptr(resolved.user.ID)
			}
		}

		row.DirectlyStatus = models.DirectlyStatusCreated
		row.IsCompleted = false
		row.CompletedBy = nil
		row.CompletedAt = nil

		if err := tx.Performers().Save(ctx, row); err != nil {
			return err
		}

		return c.created(ctx, tx, rc, &fx, state, performers, resolved)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, wrap(op, err)
	}

	fx.flush(ctx, c.deps.Logger)

	return resolved, row, nil
}

func (c *performerCore) delete(ctx context.Context, rc RequestContext, op string, ref PerformerRef, taskID int64) (*resolvedPerformer, *models.TaskPerformer, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.deps.Tracer, op,
		attribute.Int64(otelhelper.TaskIDKey, taskID),
		attribute.Int64(otelhelper.UserIDKey, rc.User.ID),
	)
	defer span.End()

	var (
		fx       effects
		resolved *resolvedPerformer
		row      *models.TaskPerformer
	)

	err := c.deps.Persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		fx.reset()

		state, _, err := c.prepare(ctx, tx, rc, taskID)
		if err != nil {
			return err
		}

		resolved, err = ref.resolveForDelete(ctx, refScope{tx: tx, accountID: rc.accountID(), validate: c.validate})
		if err != nil {
			return err
		}

		row = existingRow(state, resolved)
		if row == nil || row.IsDeleted() {
			return nil
		}

		others := make([]*models.TaskPerformer, 0, len(state.rows))

		for _, r := range activeRows(state.rows) {
			if r != row {
				others = append(others, r)
			}
		}

		remaining, err := newPerformerSet(ctx, tx, rc.accountID(), others)
		if err != nil {
			return err
		}

		if remaining.empty() {
			return conflict(ErrLastPerformer)
		}

		row.DirectlyStatus = models.DirectlyStatusDeleted

		if err := tx.Performers().Save(ctx, row); err != nil {
			return err
		}

		return c.deleted(ctx, tx, rc, &fx, state, remaining, resolved, row)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, wrap(op, err)
	}

	fx.flush(ctx, c.deps.Logger)

	return resolved, row, nil
}

// prepare locks the task and checks the acting user may change its performers.
func (c *performerCore) prepare(ctx context.Context, tx persistence.Tx, rc RequestContext, taskID int64) (*taskState, *performerSet, error) {
	state, err := loadTaskForUpdate(ctx, tx, rc.accountID(), taskID)
	if err != nil {
		return nil, nil, err
	}

	if err := state.requireActive(); err != nil {
		return nil, nil, err
	}

	performers, err := newPerformerSet(ctx, tx, rc.accountID(), state.rows)
	if err != nil {
		return nil, nil, err
	}

	if err := c.authorize(ctx, tx, rc, state, performers); err != nil {
		return nil, nil, err
	}

	return state, performers, nil
}

// authorize allows account owners and admins, template owners and current performers.
// A user removed from the task may not change its performers.
func (c *performerCore) authorize(ctx context.Context, tx persistence.Tx, rc RequestContext, state *taskState, performers *performerSet) error {
	if row := state.userRow(rc.User.ID); row != nil && row.IsDeleted() {
		return permission(ErrDeletedPerformer)
	}

	if rc.User.IsAccountOwner || rc.User.IsAdmin || performers.has(rc.User.ID) {
		return nil
	}

	tpl, err := tx.Templates().ByID(ctx, rc.accountID(), state.workflow.TemplateID)
	if persistence.IsNotFound(err) {
		return permission(ErrPermissionDenied)
	}

	if err != nil {
		return err
	}

	groups, err := tx.Groups().ByMember(ctx, rc.accountID(), rc.User.ID)
	if err != nil {
		return err
	}

	if tpl.IsOwner(rc.User.ID, groups) {
		return nil
	}

	return permission(ErrPermissionDenied)
}

func (c *performerCore) checkGuestQuota(ctx context.Context, tx persistence.Tx, rc RequestContext, state *taskState) error {
	ids := make([]int64, 0)

	for _, row := range activeRows(state.rows) {
		if row.Type == models.PerformerTypeUser && row.UserID != nil {
			ids = append(ids, *row.UserID)
		}
	}

	users, err := loadUsers(ctx, tx, rc.accountID(), ids)
	if err != nil {
		return err
	}

	guests := 0

	for _, user := range users {
		if user.IsGuest() {
			guests++
		}
	}

	if guests >= c.deps.Config.MaxGuestsPerTask {
		return conflict(ErrGuestQuotaExceeded)
	}

	return nil
}

// created runs the side effects of a new or restored performer. before is the set of
// performers prior to the change.
func (c *performerCore) created(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, state *taskState, before *performerSet, resolved *resolvedPerformer) error {
	workflow, task := state.workflow, state.task

	if resolved.group != nil {
		group := resolved.group
		workflow.AddMembers(group.UserIDs...)

		if err := tx.Workflows().Save(ctx, workflow); err != nil {
			return err
		}

		if err := recordEvent(ctx, tx, rc, workflow, &models.WorkflowEvent{
			Type:          models.EventTypePerformerGroupCreated,
			TaskID:        ptr(task.ID),
			TargetGroupID: ptr(group.ID),
		}); err != nil {
			return err
		}

		newcomers := make([]int64, 0, len(group.UserIDs))

		for _, id := range group.UserIDs {
			if !before.has(id) {
				newcomers = append(newcomers, id)
			}
		}

		users, err := loadUsers(ctx, tx, rc.accountID(), newcomers)
		if err != nil {
			return err
		}

		self, others := splitSelf(rc.User.ID, notifiable(users))
		fx.push(c.deps.Notifier, taskNotification(rc, notifications.KindNewTask, workflow, task, self))
		fx.notify(c.deps.Notifier, taskNotification(rc, notifications.KindNewTask, workflow, task, others))
		fx.track(c.deps.Analytics, rc.analytics(notifications.AnalyticsPerformerInvited, workflow.ID, map[string]any{
			"task_id":  task.ID,
			"group_id": group.ID,
		}))

		return nil
	}

	user := resolved.user
	workflow.AddMembers(user.ID)

	if err := tx.Workflows().Save(ctx, workflow); err != nil {
		return err
	}

	if err := recordEvent(ctx, tx, rc, workflow, &models.WorkflowEvent{
		Type:         models.EventTypePerformerCreated,
		TaskID:       ptr(task.ID),
		TargetUserID: ptr(user.ID),
	}); err != nil {
		return err
	}

	switch {
	case user.IsGuest():
		taskID, userID := task.ID, user.ID
		fx.add("guest_cache.activate", func(ctx context.Context) error {
			return c.deps.GuestCache.Activate(ctx, taskID, userID)
		})
		fx.notify(c.deps.Notifier, taskNotification(rc, notifications.KindGuestInvite, workflow, task, []*models.User{user}))
		fx.track(c.deps.Analytics, rc.analytics(notifications.AnalyticsGuestInvited, workflow.ID, map[string]any{
			"task_id":        task.ID,
			"target_user_id": user.ID,
		}))

		return nil
	case user.TransferPending, before.has(user.ID):
		// Pending re-authentication, or already notified through a group.
	case user.ID == rc.User.ID:
		fx.push(c.deps.Notifier, taskNotification(rc, notifications.KindNewTask, workflow, task, []*models.User{user}))
	default:
		fx.notify(c.deps.Notifier, taskNotification(rc, notifications.KindNewTask, workflow, task, []*models.User{user}))
	}

	fx.track(c.deps.Analytics, rc.analytics(notifications.AnalyticsPerformerInvited, workflow.ID, map[string]any{
		"task_id":        task.ID,
		"target_user_id": user.ID,
	}))

	return nil
}

// deleted runs the side effects of a removed performer. remaining is the set of
// performers left on the task.
func (c *performerCore) deleted(ctx context.Context, tx persistence.Tx, rc RequestContext, fx *effects, state *taskState, remaining *performerSet, resolved *resolvedPerformer, row *models.TaskPerformer) error {
	workflow, task := state.workflow, state.task

	event := &models.WorkflowEvent{Type: models.EventTypePerformerDeleted, TaskID: ptr(task.ID)}

	var removed []int64

	if resolved.group != nil {
		event.Type = models.EventTypePerformerGroupDeleted
		event.TargetGroupID = ptr(resolved.group.ID)
		removed = resolved.group.UserIDs
	} else {
		event.TargetUserID = ptr(resolved.user.ID)
		removed = []int64{resolved.user.ID}
	}

	if err := recordEvent(ctx, tx, rc, workflow, event); err != nil {
		return err
	}

	if resolved.user != nil && resolved.user.IsGuest() {
		taskID, userID := task.ID, resolved.user.ID
		fx.add("guest_cache.deactivate", func(ctx context.Context) error {
			return c.deps.GuestCache.Deactivate(ctx, taskID, userID)
		})
	}

	if row.IsCompleted {
		return nil
	}

	if isComplete(task, state.rows) {
		w, err := newWalker(ctx, &c.deps, tx, rc, fx, workflow)
		if err != nil {
			return err
		}

		return w.finishTask(ctx, task)
	}

	detached := make([]int64, 0, len(removed))

	for _, id := range removed {
		if id != rc.User.ID && !remaining.has(id) {
			detached = append(detached, id)
		}
	}

	users, err := loadUsers(ctx, tx, rc.accountID(), detached)
	if err != nil {
		return err
	}

	fx.notify(c.deps.Notifier, taskNotification(rc, notifications.KindTaskRemoved, workflow, task, notifiable(users)))

	return nil
}

func existingRow(state *taskState, resolved *resolvedPerformer) *models.TaskPerformer {
	if resolved.group != nil {
		return state.groupRow(resolved.group.ID)
	}

	return state.userRow(resolved.user.ID)
}

func splitSelf(selfID int64, users []*models.User) ([]*models.User, []*models.User) {
	var self, others []*models.User

	for _, user := range users {
		if user.ID == selfID {
			self = append(self, user)
		} else {
			others = append(others, user)
		}
	}

	return self, others
}

// TaskPerformers adds and removes user and guest performers.
type TaskPerformers struct {
	core *performerCore
}

// NewTaskPerformers returns the user and guest performer service.
func NewTaskPerformers(deps Dependencies) *TaskPerformers {
	return &TaskPerformers{core: newPerformerCore(deps, "task_performers")}
}

// Create adds the performer to the task. Adding a current performer is a no-op and
// adding a removed one restores it.
func (s *TaskPerformers) Create(ctx context.Context, rc RequestContext, ref PerformerRef, taskID int64) (*models.User, *models.TaskPerformer, error) {
	if _, ok := ref.(GroupRef); ok {
		return nil, nil, wrap("performers.create", invalid("performer", ErrUnsupportedRef))
	}

	resolved, row, err := s.core.create(ctx, rc, "performers.create", ref, taskID)
	if err != nil {
		return nil, nil, err
	}

	return resolved.user, row, nil
}

// Delete removes the performer from the task. Removing the last performer fails and
// removing a user that is not a performer is a no-op.
func (s *TaskPerformers) Delete(ctx context.Context, rc RequestContext, ref PerformerRef, taskID int64) (*models.User, *models.TaskPerformer, error) {
	if _, ok := ref.(GroupRef); ok {
		return nil, nil, wrap("performers.delete", invalid("performer", ErrUnsupportedRef))
	}

	resolved, row, err := s.core.delete(ctx, rc, "performers.delete", ref, taskID)
	if err != nil {
		return nil, nil, err
	}

	return resolved.user, row, nil
}
