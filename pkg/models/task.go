package models

import "time"

// TaskStatus represents the state of one workflow step.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusDelayed   TaskStatus = "delayed"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusCompleted TaskStatus = "completed"
)

// Task is one step of a running workflow.
type Task struct {
	ID                     int64                  `json:"id"`
	AccountID              int64                  `json:"account_id"`
	WorkflowID             int64                  `json:"workflow_id"`
	APIName                string                 `json:"api_name"`
	Number                 int                    `json:"number"`
	Name                   string                 `json:"name"`
	Description            string                 `json:"description,omitempty"`
	Status                 TaskStatus             `json:"status"`
	RequireCompletionByAll bool                   `json:"require_completion_by_all"`
	ContainsComments       bool                   `json:"contains_comments"`
	Outputs                map[string]*FieldValue `json:"outputs,omitempty"`
	DueDate                *time.Time             `json:"due_date,omitempty"`
	StartedAt              *time.Time             `json:"started_at,omitempty"`
	CompletedAt            *time.Time             `json:"completed_at,omitempty"`
}

// IsActive reports whether performers can currently act on the task.
func (t *Task) IsActive() bool {
	return t.Status == TaskStatusActive || t.Status == TaskStatusDelayed
}

// PerformerType tells whether a task performer row points at a user or a group.
type PerformerType string

const (
	PerformerTypeUser  PerformerType = "user"
	PerformerTypeGroup PerformerType = "group"
)

// DirectlyStatus distinguishes explicit additions and removals from inferred performers.
type DirectlyStatus string

const (
	DirectlyStatusNoStatus DirectlyStatus = "no_status"
	DirectlyStatusCreated  DirectlyStatus = "created"
	DirectlyStatusDeleted  DirectlyStatus = "deleted"
)

// TaskPerformer binds a task to a user or group performer.
type TaskPerformer struct {
	ID             int64          `json:"id"`
	TaskID         int64          `json:"task_id"`
	Type           PerformerType  `json:"type"`
	UserID         *int64         `json:"user_id,omitempty"`
	GroupID        *int64         `json:"group_id,omitempty"`
	DirectlyStatus DirectlyStatus `json:"directly_status"`
	IsCompleted    bool           `json:"is_completed"`
	CompletedBy    *int64         `json:"completed_by,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (p *TaskPerformer) IsDeleted() bool {
	return p.DirectlyStatus == DirectlyStatusDeleted
}

// IsUser reports whether the row points at the given user.
func (p *TaskPerformer) IsUser(userID int64) bool {
	return p.Type == PerformerTypeUser && p.UserID != nil && *p.UserID == userID
}

// IsGroup reports whether the row points at the given group.
func (p *TaskPerformer) IsGroup(groupID int64) bool {
	return p.Type == PerformerTypeGroup && p.GroupID != nil && *p.GroupID == groupID
}
