package models

import (
	"slices"
	"time"
)

// EventType classifies workflow activity log entries.
type EventType string

const (
	EventTypeComment                  EventType = "comment"
	EventTypeWorkflowRun              EventType = "workflow_run"
	EventTypeSubWorkflowRun           EventType = "sub_workflow_run"
	EventTypeWorkflowComplete         EventType = "workflow_complete"
	EventTypeWorkflowEndedByCondition EventType = "workflow_ended_by_condition"
	EventTypeTaskStart                EventType = "task_start"
	EventTypeTaskSkip                 EventType = "task_skip"
	EventTypeTaskSkipNoPerformers     EventType = "task_skip_no_performers"
	EventTypeTaskComplete             EventType = "task_complete"
	EventTypePerformerCreated         EventType = "performer_created"
	EventTypePerformerDeleted         EventType = "performer_deleted"
	EventTypePerformerGroupCreated    EventType = "performer_group_created"
	EventTypePerformerGroupDeleted    EventType = "performer_group_deleted"
)

// EventStatus tracks comment edits and soft deletion.
type EventStatus string

const (
	EventStatusCreated EventStatus = "created"
	EventStatusUpdated EventStatus = "updated"
	EventStatusDeleted EventStatus = "deleted"
)

// WatchedEntry records that a user has seen a comment.
type WatchedEntry struct {
	UserID int64     `json:"user_id"`
	Date   time.Time `json:"date"`
}

// WorkflowEvent is an entry of the workflow activity log.
type WorkflowEvent struct {
	ID               int64              `json:"id"`
	AccountID        int64              `json:"account_id"`
	WorkflowID       int64              `json:"workflow_id"`
	TaskID           *int64             `json:"task_id,omitempty"`
	Type             EventType          `json:"type"`
	Status           EventStatus        `json:"status"`
	UserID           *int64             `json:"user_id,omitempty"` // Author or acting user
	TargetUserID     *int64             `json:"target_user_id,omitempty"`
	TargetGroupID    *int64             `json:"target_group_id,omitempty"`
	Text             string             `json:"text,omitempty"`
	ClearText        string             `json:"clear_text,omitempty"`
	AttachmentIDs    []int64            `json:"attachment_ids,omitempty"` // Bound to the event
	LinkedFileIDs    []int64            `json:"linked_file_ids,omitempty"` // Referenced in the text, never bound
	MentionedUserIDs []int64            `json:"mentioned_user_ids,omitempty"`
	Reactions        map[string][]int64 `json:"reactions,omitempty"`
	Watched          []WatchedEntry     `json:"watched,omitempty"`
	SubWorkflowID    *int64             `json:"sub_workflow_id,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        *time.Time         `json:"updated_at,omitempty"`
}

// IsAuthor reports whether the user wrote the event.
func (e *WorkflowEvent) IsAuthor(userID int64) bool {
	return e.UserID != nil && *e.UserID == userID
}

// AddReaction appends the user to the reaction list. It reports false when the user
// already reacted with the same reaction.
func (e *WorkflowEvent) AddReaction(reaction string, userID int64) bool {
	if e.Reactions == nil {
		e.Reactions = make(map[string][]int64)
	}

	if slices.Contains(e.Reactions[reaction], userID) {
		return false
	}

	e.Reactions[reaction] = append(e.Reactions[reaction], userID)

	return true
}

// RemoveReaction drops the user from the reaction list and removes the reaction key
// once no user is left. It reports false when the user had not reacted.
func (e *WorkflowEvent) RemoveReaction(reaction string, userID int64) bool {
	users, ok := e.Reactions[reaction]
	if !ok {
		return false
	}

	idx := slices.Index(users, userID)
	if idx < 0 {
		return false
	}

	users = slices.Delete(users, idx, idx+1)
	if len(users) == 0 {
		delete(e.Reactions, reaction)
	} else {
		e.Reactions[reaction] = users
	}

	return true
}

// HasWatched reports whether the user has a watch entry.
func (e *WorkflowEvent) HasWatched(userID int64) bool {
	return slices.ContainsFunc(e.Watched, func(w WatchedEntry) bool { return w.UserID == userID })
}

// FileAttachment is an uploaded file, unbound until attached to an event or workflow.
type FileAttachment struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	EventID    *int64    `json:"event_id,omitempty"`
	WorkflowID *int64    `json:"workflow_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsBound reports whether the attachment belongs to an event or a workflow.
func (a *FileAttachment) IsBound() bool {
	return a.EventID != nil || a.WorkflowID != nil
}
