package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowdesk/pkg/config"
	"github.com/dukex/flowdesk/pkg/markdown"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/dukex/flowdesk/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AuthType tells how the acting user authenticated.
type AuthType string

const (
	AuthTypeUser  AuthType = "user"
	AuthTypeGuest AuthType = "guest"
	AuthTypeAPI   AuthType = "api"
)

// RequestContext describes who performs an operation and how time is rendered for them.
type RequestContext struct {
	User        *models.User
	IsSuperuser bool
	AuthType    AuthType
	Now         func() time.Time
	Location    *time.Location
	DateLayout  string
	AccountLogo string
	LogAPI      bool
}

func (rc RequestContext) now() time.Time {
	if rc.Now == nil {
		return time.Now().UTC()
	}

	return rc.Now().UTC()
}

func (rc RequestContext) accountID() int64 {
	return rc.User.AccountID
}

func (rc RequestContext) analytics(name string, workflowID int64, properties map[string]any) notifications.AnalyticsEvent {
	return notifications.AnalyticsEvent{
		Name:        name,
		AccountID:   rc.User.AccountID,
		UserID:      rc.User.ID,
		IsSuperuser: rc.IsSuperuser,
		AuthType:    string(rc.AuthType),
		WorkflowID:  workflowID,
		Properties:  properties,
	}
}

// Dependencies are the collaborators shared by every service. Nil collaborators
// discard their side effects.
type Dependencies struct {
	Persistence persistence.Persistence
	Notifier    notifications.Notifier
	Analytics   notifications.Analytics
	Webhooks    notifications.Webhooks
	GuestCache  notifications.GuestCache
	Markdown    notifications.Markdown
	Config      config.Config
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

func (d Dependencies) withDefaults(module string) Dependencies {
	if d.Notifier == nil {
		d.Notifier = notifications.Noop{}
	}

	if d.Analytics == nil {
		d.Analytics = notifications.Noop{}
	}

	if d.Webhooks == nil {
		d.Webhooks = notifications.Noop{}
	}

	if d.GuestCache == nil {
		d.GuestCache = notifications.Noop{}
	}

	if d.Markdown == nil {
		d.Markdown = markdown.NewRenderer()
	}

	if d.Config == (config.Config{}) {
		d.Config = config.Default()
	}

	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	d.Logger = d.Logger.With("module", module)

	if d.Tracer == nil {
		d.Tracer = otel.Tracer("flowdesk/services")
	}

	return d
}

// effects collects side effects while a transaction runs. They are flushed once the
// transaction has committed and dropped when it rolls back.
type effects struct {
	queue []effect
}

type effect struct {
	name string
	fn   func(ctx context.Context) error
}

func (e *effects) add(name string, fn func(ctx context.Context) error) {
	e.queue = append(e.queue, effect{name: name, fn: fn})
}

func (e *effects) notify(n notifications.Notifier, notification notifications.Notification) {
	if len(notification.Recipients) == 0 {
		return
	}

	e.add("notification."+string(notification.Kind), func(ctx context.Context) error {
		return n.Send(ctx, notification)
	})
}

func (e *effects) push(n notifications.Notifier, notification notifications.Notification) {
	if len(notification.Recipients) == 0 {
		return
	}

	e.add("push."+string(notification.Kind), func(ctx context.Context) error {
		return n.Push(ctx, notification)
	})
}

func (e *effects) track(a notifications.Analytics, event notifications.AnalyticsEvent) {
	e.add("analytics."+event.Name, func(ctx context.Context) error {
		return a.Track(ctx, event)
	})
}

func (e *effects) webhook(w notifications.Webhooks, event notifications.WebhookEvent) {
	e.add("webhook."+event.Name, func(ctx context.Context) error {
		return w.Dispatch(ctx, event)
	})
}

func (e *effects) reset() {
	e.queue = e.queue[:0]
}

// flush runs every queued side effect. Failures are logged and never returned.
func (e *effects) flush(ctx context.Context, logger *slog.Logger) {
	for _, fx := range e.queue {
		if err := fx.fn(ctx); err != nil {
			logger.ErrorContext(ctx, "Side effect failed", "effect", fx.name, "error", err)
		}
	}

	e.queue = nil
}

func recipients(users ...*models.User) []notifications.Recipient {
	result := make([]notifications.Recipient, 0, len(users))

	for _, user := range users {
		result = append(result, notifications.Recipient{
			UserID:       user.ID,
			Email:        user.Email,
			IsSubscribed: user.IsSubscribed,
		})
	}

	return result
}
