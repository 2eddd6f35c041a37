package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/flowdesk/pkg/notifications"
)

// GuestGrant is a recorded guest cache call.
type GuestGrant struct {
	TaskID int64
	UserID int64
}

// Recorder captures every side effect handed to the notification collaborators.
type Recorder struct {
	mu          sync.Mutex
	sent        []notifications.Notification
	pushed      []notifications.Notification
	tracked     []notifications.AnalyticsEvent
	webhooks    []notifications.WebhookEvent
	activated   []GuestGrant
	deactivated []GuestGrant
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = append(r.sent, n)

	return nil
}

func (r *Recorder) Push(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushed = append(r.pushed, n)

	return nil
}

func (r *Recorder) Track(_ context.Context, event notifications.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracked = append(r.tracked, event)

	return nil
}

func (r *Recorder) Dispatch(_ context.Context, event notifications.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.webhooks = append(r.webhooks, event)

	return nil
}

func (r *Recorder) Activate(_ context.Context, taskID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activated = append(r.activated, GuestGrant{TaskID: taskID, UserID: userID})

	return nil
}

func (r *Recorder) Deactivate(_ context.Context, taskID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deactivated = append(r.deactivated, GuestGrant{TaskID: taskID, UserID: userID})

	return nil
}

// Sent returns the queued notifications, filtered by kind when kinds are given.
func (r *Recorder) Sent(kinds ...notifications.Kind) []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return filterKinds(r.sent, kinds)
}

// Pushed returns the pushed notifications, filtered by kind when kinds are given.
func (r *Recorder) Pushed(kinds ...notifications.Kind) []notifications.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return filterKinds(r.pushed, kinds)
}

// Tracked returns the analytics events, filtered by name when names are given.
func (r *Recorder) Tracked(names ...string) []notifications.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]notifications.AnalyticsEvent, 0, len(r.tracked))

	for _, event := range r.tracked {
		if len(names) == 0 || slices.Contains(names, event.Name) {
			result = append(result, event)
		}
	}

	return result
}

// Webhooks returns the dispatched webhooks, filtered by name when names are given.
func (r *Recorder) Webhooks(names ...string) []notifications.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]notifications.WebhookEvent, 0, len(r.webhooks))

	for _, event := range r.webhooks {
		if len(names) == 0 || slices.Contains(names, event.Name) {
			result = append(result, event)
		}
	}

	return result
}

func (r *Recorder) Activated() []GuestGrant {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.activated)
}

func (r *Recorder) Deactivated() []GuestGrant {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.deactivated)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent, r.pushed, r.tracked, r.webhooks = nil, nil, nil, nil
	r.activated, r.deactivated = nil, nil
}

// RecipientIDs flattens the recipients of the notifications.
func RecipientIDs(ns []notifications.Notification) []int64 {
	ids := make([]int64, 0)

	for _, n := range ns {
		for _, recipient := range n.Recipients {
			ids = append(ids, recipient.UserID)
		}
	}

	return ids
}

func filterKinds(ns []notifications.Notification, kinds []notifications.Kind) []notifications.Notification {
	result := make([]notifications.Notification, 0, len(ns))

	for _, n := range ns {
		if len(kinds) == 0 || slices.Contains(kinds, n.Kind) {
			result = append(result, n)
		}
	}

	return result
}

var (
	_ notifications.Notifier   = (*Recorder)(nil)
	_ notifications.Analytics  = (*Recorder)(nil)
	_ notifications.Webhooks   = (*Recorder)(nil)
	_ notifications.GuestCache = (*Recorder)(nil)
)
