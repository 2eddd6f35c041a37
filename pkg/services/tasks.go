package services

import (
	"context"
	"slices"

	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/persistence"
)

// taskState is a locked task with its workflow and every performer row, deleted ones included.
type taskState struct {
	task     *models.Task
	workflow *models.Workflow
	rows     []*models.TaskPerformer
}

func loadTaskForUpdate(ctx context.Context, tx persistence.Tx, accountID, taskID int64) (*taskState, error) {
	task, err := tx.Tasks().ForUpdate(ctx, accountID, taskID)
	if persistence.IsNotFound(err) {
		return nil, notFound("task", taskID, err)
	}

	if err != nil {
		return nil, err
	}

	workflow, err := tx.Workflows().ByID(ctx, accountID, task.WorkflowID)
	if persistence.IsNotFound(err) {
		return nil, notFound("workflow", task.WorkflowID, err)
	}

	if err != nil {
		return nil, err
	}

	rows, err := tx.Performers().ByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	return &taskState{task: task, workflow: workflow, rows: rows}, nil
}

// requireActive rejects changes to finished workflows and to tasks that are not running.
func (s *taskState) requireActive() error {
	if s.workflow.IsDone() {
		return conflict(ErrWorkflowNotRunning)
	}

	if !s.task.IsActive() {
		return conflict(ErrTaskNotActive)
	}

	return nil
}

func (s *taskState) userRow(userID int64) *models.TaskPerformer {
	for _, row := range s.rows {
		if row.IsUser(userID) {
			return row
		}
	}

	return nil
}

func (s *taskState) groupRow(groupID int64) *models.TaskPerformer {
	for _, row := range s.rows {
		if row.IsGroup(groupID) {
			return row
		}
	}

	return nil
}

func activeRows(rows []*models.TaskPerformer) []*models.TaskPerformer {
	result := make([]*models.TaskPerformer, 0, len(rows))

	for _, row := range rows {
		if !row.IsDeleted() {
			result = append(result, row)
		}
	}

	return result
}

// performerSet is the union of users attached to a task directly or through a group.
type performerSet struct {
	direct  map[int64]bool
	byGroup map[int64]bool
	groups  map[int64]*models.Group
}

func newPerformerSet(ctx context.Context, tx persistence.Tx, accountID int64, rows []*models.TaskPerformer) (*performerSet, error) {
	set := &performerSet{
		direct:  make(map[int64]bool),
		byGroup: make(map[int64]bool),
		groups:  make(map[int64]*models.Group),
	}

	groupIDs := make([]int64, 0)

	for _, row := range activeRows(rows) {
		switch row.Type {
		case models.PerformerTypeUser:
			if row.UserID != nil {
				set.direct[*row.UserID] = true
			}
		case models.PerformerTypeGroup:
			if row.GroupID != nil {
				groupIDs = append(groupIDs, *row.GroupID)
			}
		}
	}

	if len(groupIDs) == 0 {
		return set, nil
	}

	groups, err := tx.Groups().ByIDs(ctx, accountID, groupIDs)
	if err != nil {
		return nil, err
	}

	for _, group := range groups {
		set.groups[group.ID] = group

		for _, id := range group.UserIDs {
			set.byGroup[id] = true
		}
	}

	return set, nil
}

func (s *performerSet) has(userID int64) bool {
	return s.direct[userID] || s.byGroup[userID]
}

// viaGroup reports whether the user performs the task through a group other than skip.
func (s *performerSet) viaGroup(userID, skip int64) bool {
	for id, group := range s.groups {
		if id != skip && group.HasMember(userID) {
			return true
		}
	}

	return false
}

// userIDs returns every performer user id in ascending order.
func (s *performerSet) userIDs() []int64 {
	ids := make([]int64, 0, len(s.direct)+len(s.byGroup))

	for id := range s.direct {
		ids = append(ids, id)
	}

	for id := range s.byGroup {
		if !s.direct[id] {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

func (s *performerSet) empty() bool {
	return len(s.direct) == 0 && len(s.byGroup) == 0
}

// isComplete applies the completion policy of the task to its non deleted rows. A group
// row is completed as soon as one member completes the task.
func isComplete(task *models.Task, rows []*models.TaskPerformer) bool {
	active := activeRows(rows)
	if len(active) == 0 {
		return false
	}

	if task.RequireCompletionByAll {
		return !slices.ContainsFunc(active, func(row *models.TaskPerformer) bool { return !row.IsCompleted })
	}

	return slices.ContainsFunc(active, func(row *models.TaskPerformer) bool { return row.IsCompleted })
}

// loadUsers loads users keeping the order of ids. Missing users are left out.
func loadUsers(ctx context.Context, tx persistence.Tx, accountID int64, ids []int64) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	users, err := tx.Users().ByIDs(ctx, accountID, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}

	ordered := make([]*models.User, 0, len(users))

	for _, id := range ids {
		if user, ok := byID[id]; ok {
			ordered = append(ordered, user)
			delete(byID, id)
		}
	}

	return ordered, nil
}

// notifiable keeps the users that can receive task notifications.
func notifiable(users []*models.User) []*models.User {
	return slices.DeleteFunc(slices.Clone(users), func(u *models.User) bool {
		return u.Status == models.UserStatusInactive || u.TransferPending
	})
}

func recordEvent(ctx context.Context, tx persistence.Tx, rc RequestContext, workflow *models.Workflow, event *models.WorkflowEvent) error {
	event.AccountID = workflow.AccountID
	event.WorkflowID = workflow.ID
	event.CreatedAt = rc.now()

	if event.Status == "" {
		event.Status = models.EventStatusCreated
	}

	if event.UserID == nil && rc.User != nil {
		id := rc.User.ID
		event.UserID = &id
	}

	return tx.Events().Save(ctx, event)
}

func ptr[T any](v T) *T {
	return &v
}
