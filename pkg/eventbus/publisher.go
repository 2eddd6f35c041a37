package eventbus

import (
	"context"
	"strconv"
	"time"

	"github.com/dukex/flowdesk/pkg/events"
	"github.com/dukex/flowdesk/pkg/notifications"
)

// Publisher implements the notification, analytics and webhook collaborators by
// publishing envelopes on the bus. Messages are keyed by account so one account's
// side effects keep their order on partitioned brokers.
type Publisher struct {
	bus EventBus
	now func() time.Time
}

func NewPublisher(bus EventBus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

func (p *Publisher) base(eventType events.EventType, accountID int64) events.BaseEvent {
	return events.BaseEvent{
		ID:        p.bus.GenerateID(),
		Type:      eventType,
		Timestamp: p.now().UTC(),
		AccountID: accountID,
	}
}

func (p *Publisher) Send(ctx context.Context, notification notifications.Notification) error {
	return p.bus.Publish(ctx, accountKey(notification.AccountID), events.NotificationSend{
		BaseEvent:    p.base(events.NotificationSendEvent, notification.AccountID),
		Notification: notification,
	})
}

func (p *Publisher) Push(ctx context.Context, notification notifications.Notification) error {
	return p.bus.Publish(ctx, accountKey(notification.AccountID), events.NotificationPush{
		BaseEvent:    p.base(events.NotificationPushEvent, notification.AccountID),
		Notification: notification,
	})
}

func (p *Publisher) Track(ctx context.Context, event notifications.AnalyticsEvent) error {
	return p.bus.Publish(ctx, accountKey(event.AccountID), events.AnalyticsTrack{
		BaseEvent: p.base(events.AnalyticsTrackEvent, event.AccountID),
		Event:     event,
	})
}

func (p *Publisher) Dispatch(ctx context.Context, webhook notifications.WebhookEvent) error {
	return p.bus.Publish(ctx, accountKey(webhook.AccountID), events.WebhookDispatch{
		BaseEvent: p.base(events.WebhookDispatchEvent, webhook.AccountID),
		Webhook:   webhook,
	})
}

func accountKey(accountID int64) string {
	return "account-" + strconv.FormatInt(accountID, 10)
}

var (
	_ notifications.Notifier  = (*Publisher)(nil)
	_ notifications.Analytics = (*Publisher)(nil)
	_ notifications.Webhooks  = (*Publisher)(nil)
)
