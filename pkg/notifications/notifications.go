// Package notifications defines the collaborators the engine hands side effects to.
package notifications

import "context"

// Kind identifies a notification template.
type Kind string

const (
	KindNewTask      Kind = "new_task"
	KindComment      Kind = "comment"
	KindMention      Kind = "mention"
	KindReaction     Kind = "reaction"
	KindGuestInvite  Kind = "guest_invite"
	KindTaskRemoved  Kind = "task_removed"
	KindEventUpdated Kind = "event_updated" // Pushed so open sessions refresh an edited comment
)

// Recipient is a user a notification is addressed to.
type Recipient struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	IsSubscribed bool   `json:"is_subscribed"`
}

// Notification carries everything a delivery channel needs to render a message.
type Notification struct {
	Kind         Kind        `json:"kind"`
	AccountID    int64       `json:"account_id"`
	Recipients   []Recipient `json:"recipients"`
	AuthorID     int64       `json:"author_id,omitempty"`
	WorkflowID   int64       `json:"workflow_id"`
	WorkflowName string      `json:"workflow_name"`
	TaskID       int64       `json:"task_id,omitempty"`
	TaskName     string      `json:"task_name,omitempty"`
	TaskNumber   int         `json:"task_number,omitempty"`
	EventID      int64       `json:"event_id,omitempty"`
	Text         string      `json:"text,omitempty"` // Clear text or reaction preview
	Reaction     string      `json:"reaction,omitempty"`
	DueDate      int64       `json:"due_date,omitempty"`
	AccountLogo  string      `json:"account_logo,omitempty"`
	LogAPI       bool        `json:"log_api"`
}

// Notifier delivers notifications to users.
type Notifier interface {
	// Send queues the notification for asynchronous delivery (email, push).
	Send(ctx context.Context, notification Notification) error
	// Push delivers the notification to the recipients' open sessions right away.
	Push(ctx context.Context, notification Notification) error
}

// Analytics event names.
const (
	AnalyticsWorkflowStarted  = "workflow_started"
	AnalyticsWorkflowUrgent   = "workflow_urgent"
	AnalyticsCommentAdded     = "comment_added"
	AnalyticsCommentEdited    = "comment_edited"
	AnalyticsCommentDeleted   = "comment_deleted"
	AnalyticsReactionAdded    = "reaction_added"
	AnalyticsReactionDeleted  = "reaction_deleted"
	AnalyticsMentionCreated   = "mention_created"
	AnalyticsPerformerInvited = "performer_invited"
	AnalyticsGuestInvited     = "guest_invited"
)

// AnalyticsEvent is a fire and forget usage record.
type AnalyticsEvent struct {
	Name        string         `json:"name"`
	AccountID   int64          `json:"account_id"`
	UserID      int64          `json:"user_id"`
	IsSuperuser bool           `json:"is_superuser"`
	AuthType    string         `json:"auth_type"`
	WorkflowID  int64          `json:"workflow_id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Analytics records usage events.
type Analytics interface {
	Track(ctx context.Context, event AnalyticsEvent) error
}

// Webhook event names.
const (
	WebhookWorkflowStarted   = "workflow_started"
	WebhookWorkflowCompleted = "workflow_completed"
)

// WebhookEvent is a payload for account webhook subscribers.
type WebhookEvent struct {
	Name      string         `json:"name"`
	AccountID int64          `json:"account_id"`
	Payload   map[string]any `json:"payload"`
}

// Webhooks delivers webhook payloads.
type Webhooks interface {
	Dispatch(ctx context.Context, event WebhookEvent) error
}

// GuestCache grants guests time bounded access to a task.
type GuestCache interface {
	Activate(ctx context.Context, taskID, userID int64) error
	Deactivate(ctx context.Context, taskID, userID int64) error
}

// Markdown converts rich text to plain text.
type Markdown interface {
	Clear(text string) string
}
