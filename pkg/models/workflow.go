package models

import (
	"slices"
	"time"
)

// WorkflowStatus represents the lifecycle state of a running workflow.
type WorkflowStatus string

const (
	WorkflowStatusRunning WorkflowStatus = "running"
	WorkflowStatusDelayed WorkflowStatus = "delayed"
	WorkflowStatusDone    WorkflowStatus = "done"
)

// Workflow is one running instance of a template.
type Workflow struct {
	ID               int64                  `json:"id"`
	AccountID        int64                  `json:"account_id"`
	TemplateID       int64                  `json:"template_id"`
	TemplateName     string                 `json:"template_name"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Status           WorkflowStatus         `json:"status"`
	IsUrgent         bool                   `json:"is_urgent"`
	DueDate          *time.Time             `json:"due_date,omitempty"`
	AncestorTaskID   *int64                 `json:"ancestor_task_id,omitempty"`
	StarterID        int64                  `json:"starter_id"`
	Kickoff          map[string]*FieldValue `json:"kickoff"`
	MemberIDs        []int64                `json:"member_ids"`
	EndedByCondition bool                   `json:"ended_by_condition"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
}

// AddMembers appends user ids to the member list, keeping it duplicate free.
func (w *Workflow) AddMembers(userIDs ...int64) {
	for _, id := range userIDs {
		if !slices.Contains(w.MemberIDs, id) {
			w.MemberIDs = append(w.MemberIDs, id)
		}
	}
}

func (w *Workflow) IsMember(userID int64) bool {
	return slices.Contains(w.MemberIDs, userID)
}

func (w *Workflow) IsDone() bool {
	return w.Status == WorkflowStatusDone
}

// WebhookPayload is the pre-serialised form sent to webhook subscribers.
func (w *Workflow) WebhookPayload() map[string]any {
	kickoff := make(map[string]any, len(w.Kickoff))
	for apiName, value := range w.Kickoff {
		kickoff[apiName] = value.Value
	}

	payload := map[string]any{
		"id":          w.ID,
		"name":        w.Name,
		"status":      w.Status,
		"is_urgent":   w.IsUrgent,
		"template_id": w.TemplateID,
		"starter_id":  w.StarterID,
		"kickoff":     kickoff,
		"created_at":  w.CreatedAt,
	}

	if w.DueDate != nil {
		payload["due_date"] = w.DueDate.Unix()
	}

	if w.CompletedAt != nil {
		payload["completed_at"] = w.CompletedAt.Unix()
	}

	return payload
}
