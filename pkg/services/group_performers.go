package services

import (
	"context"

	"github.com/dukex/flowdesk/pkg/models"
)

// GroupPerformers adds and removes groups as a whole. Members that already perform the
// task individually are not notified again.
type GroupPerformers struct {
	core *performerCore
}

// NewGroupPerformers returns the group performer service.
func NewGroupPerformers(deps Dependencies) *GroupPerformers {
	return &GroupPerformers{core: newPerformerCore(deps, "group_performers")}
}

// Create adds the group to the task and notifies members not already performing it.
func (s *GroupPerformers) Create(ctx context.Context, rc RequestContext, groupID, taskID int64) (*models.Group, *models.TaskPerformer, error) {
	resolved, row, err := s.core.create(ctx, rc, "group_performers.create", GroupRef{ID: groupID}, taskID)
	if err != nil {
		return nil, nil, err
	}

	return resolved.group, row, nil
}

// Delete removes the group. The last performer check counts every user still attached
// to the task directly or through another group.
func (s *GroupPerformers) Delete(ctx context.Context, rc RequestContext, groupID, taskID int64) (*models.Group, *models.TaskPerformer, error) {
	resolved, row, err := s.core.delete(ctx, rc, "group_performers.delete", GroupRef{ID: groupID}, taskID)
	if err != nil {
		return nil, nil, err
	}

	return resolved.group, row, nil
}
