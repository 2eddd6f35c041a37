// Package events defines the envelopes published on the side effect bus.
package events

import (
	"time"

	"github.com/dukex/flowdesk/pkg/notifications"
)

type EventType string

// Topic carries every side effect queued after a commit.
const Topic = "flowdesk.side-effects"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	NotificationSendEvent EventType = "notification.send"
	NotificationPushEvent EventType = "notification.push"
	AnalyticsTrackEvent   EventType = "analytics.track"
	WebhookDispatchEvent  EventType = "webhook.dispatch"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AccountID int64     `json:"account_id"`
}

// NotificationSend asks the delivery workers to send a notification asynchronously.
type NotificationSend struct {
	BaseEvent

	Notification notifications.Notification `json:"notification"`
}

func (NotificationSend) GetType() EventType {
	return NotificationSendEvent
}

// NotificationPush asks the session gateway to push a notification right away.
type NotificationPush struct {
	BaseEvent

	Notification notifications.Notification `json:"notification"`
}

func (NotificationPush) GetType() EventType {
	return NotificationPushEvent
}

type AnalyticsTrack struct {
	BaseEvent

	Event notifications.AnalyticsEvent `json:"event"`
}

func (AnalyticsTrack) GetType() EventType {
	return AnalyticsTrackEvent
}

type WebhookDispatch struct {
	BaseEvent

	Webhook notifications.WebhookEvent `json:"webhook"`
}

func (WebhookDispatch) GetType() EventType {
	return WebhookDispatchEvent
}

// New returns an empty envelope of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case NotificationSendEvent:
		return &NotificationSend{}, true
	case NotificationPushEvent:
		return &NotificationPush{}, true
	case AnalyticsTrackEvent:
		return &AnalyticsTrack{}, true
	case WebhookDispatchEvent:
		return &WebhookDispatch{}, true
	}

	return nil, false
}
