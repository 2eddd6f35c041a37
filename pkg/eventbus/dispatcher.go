package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/flowdesk/pkg/events"
)

// Sink delivers side effects to the outside world.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// ErrUndeliverable marks a delivery failure that retrying cannot fix.
var ErrUndeliverable = errors.New("undeliverable")

// Dispatcher consumes side effects from the bus and hands them to a sink, retrying
// failed deliveries with exponential backoff. Exhausted deliveries are logged and
// acknowledged.
type Dispatcher struct {
	bus        EventSubscriber
	sink       Sink
	logger     *slog.Logger
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type DispatcherOption func(*Dispatcher)

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(n uint64) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = n
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) DispatcherOption {
	return func(d *Dispatcher) {
		d.newBackOff = newBackOff
	}
}

func NewDispatcher(bus EventSubscriber, sink Sink, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bus:        bus,
		sink:       sink,
		logger:     logger.With("module", "dispatcher"),
		maxRetries: 5,
		newBackOff: func() backoff.BackOff {
			b := &backoff.ExponentialBackOff{
				InitialInterval:     100 * time.Millisecond,
				MaxInterval:         10 * time.Second,
				Multiplier:          2,
				RandomizationFactor: 0.5,
				MaxElapsedTime:      time.Minute,
				Stop:                backoff.Stop,
				Clock:               backoff.SystemClock,
			}
			b.Reset()

			return b
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Start registers the handlers and begins consuming.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, eventType := range []events.EventType{
		events.NotificationSendEvent,
		events.NotificationPushEvent,
		events.AnalyticsTrackEvent,
		events.WebhookDispatchEvent,
	} {
		if err := d.bus.Handle(eventType, d.handle); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return d.bus.Subscribe(ctx)
}

func (d *Dispatcher) handle(ctx context.Context, raw any) error {
	event, ok := raw.(Event)
	if !ok {
		d.logger.ErrorContext(ctx, "Unexpected message", "type", fmt.Sprintf("%T", raw))

		return nil
	}

	operation := func() error {
		err := d.sink.Deliver(ctx, event)
		if errors.Is(err, ErrUndeliverable) {
			return backoff.Permanent(err)
		}

		return err
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.maxRetries), ctx)

	err := backoff.RetryNotify(operation, schedule, func(err error, wait time.Duration) {
		d.logger.WarnContext(ctx, "Delivery failed, retrying", "event_type", event.GetType(), "wait", wait, "error", err)
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Dropping side effect", "event_type", event.GetType(), "error", err)
	}

	return nil
}

// LogSink logs deliveries. Delivery transports plug in as other sinks.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case *events.NotificationSend:
		s.Logger.InfoContext(ctx, "Notification queued",
			"kind", e.Notification.Kind, "recipients", len(e.Notification.Recipients), "task_id", e.Notification.TaskID)
	case *events.NotificationPush:
		s.Logger.InfoContext(ctx, "Notification pushed",
			"kind", e.Notification.Kind, "recipients", len(e.Notification.Recipients), "task_id", e.Notification.TaskID)
	case *events.AnalyticsTrack:
		s.Logger.InfoContext(ctx, "Analytics event", "name", e.Event.Name, "user_id", e.Event.UserID)
	case *events.WebhookDispatch:
		s.Logger.InfoContext(ctx, "Webhook", "name", e.Webhook.Name, "account_id", e.Webhook.AccountID)
	default:
		s.Logger.InfoContext(ctx, "Side effect", "event_type", event.GetType())
	}

	return nil
}
