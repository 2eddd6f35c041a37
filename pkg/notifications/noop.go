package notifications

import "context"

// Noop discards every side effect. It is used by dry runs and by tests that do not
// inspect side effects.
type Noop struct{}

func (Noop) Send(context.Context, Notification) error       { return nil }
func (Noop) Push(context.Context, Notification) error       { return nil }
func (Noop) Track(context.Context, AnalyticsEvent) error    { return nil }
func (Noop) Dispatch(context.Context, WebhookEvent) error   { return nil }
func (Noop) Activate(context.Context, int64, int64) error   { return nil }
func (Noop) Deactivate(context.Context, int64, int64) error { return nil }

var (
	_ Notifier   = Noop{}
	_ Analytics  = Noop{}
	_ Webhooks   = Noop{}
	_ GuestCache = Noop{}
)
