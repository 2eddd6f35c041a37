package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowdesk/pkg/cmd"
	"github.com/dukex/flowdesk/pkg/config"
	"github.com/dukex/flowdesk/pkg/eventbus"
	"github.com/dukex/flowdesk/pkg/log"
	"github.com/dukex/flowdesk/pkg/models"
	"github.com/dukex/flowdesk/pkg/otelhelper"
	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/services"
	cli "github.com/urfave/cli/v3"
)

var actingUserFlags = []cli.Flag{
	&cli.Int64Flag{
		Name:     "account-id",
		Usage:    "Account the command acts in",
		Required: true,
		Sources:  cli.EnvVars("FLOWDESK_ACCOUNT_ID"),
	},
	&cli.Int64Flag{
		Name:     "user-id",
		Usage:    "User the command acts as",
		Required: true,
		Sources:  cli.EnvVars("FLOWDESK_USER_ID"),
	},
}

// app holds the collaborators shared by every command.
type app struct {
	logger      *slog.Logger
	config      config.Config
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	deps        services.Dependencies
	closers     []func(ctx context.Context) error
}

func newApp(ctx context.Context, command *cli.Command, module string) (*app, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule(module)

	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, config: cfg}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "flowdesk")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		a.deps.Tracer = tracer
		a.closers = append(a.closers, shutdown)
	}

	a.persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("failed to open persistence: %w", err))
	}

	a.closers = append(a.closers, a.persistence.Close)

	a.eventBus, err = cmd.NewEventBus(command.String("event-bus"), logger, command.String("kafka-brokers"))
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	a.closers = append(a.closers, func(context.Context) error { return a.eventBus.Close() })

	guestCache, closeCache, err := cmd.NewGuestCache(ctx, command.String("redis-url"), cfg.GuestAccessTTL)
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("failed to connect guest cache: %w", err))
	}

	a.closers = append(a.closers, func(context.Context) error { return closeCache() })

	publisher := eventbus.NewPublisher(a.eventBus)

	a.deps.Persistence = a.persistence
	a.deps.Notifier = publisher
	a.deps.Analytics = publisher
	a.deps.Webhooks = publisher
	a.deps.GuestCache = guestCache
	a.deps.Config = cfg
	a.deps.Logger = logger

	return a, nil
}

func (a *app) fail(ctx context.Context, err error) error {
	return errors.Join(err, a.Close(ctx))
}

// Close releases the collaborators in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}

func (a *app) close(ctx context.Context) {
	if err := a.Close(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close resources", "error", err)
	}
}

// requestContext loads the acting user named by the account-id and user-id flags.
func (a *app) requestContext(ctx context.Context, command *cli.Command) (services.RequestContext, error) {
	var user *models.User

	err := a.persistence.WithTx(ctx, func(ctx context.Context, tx persistence.Tx) error {
		var err error

		user, err = tx.Users().ByID(ctx, command.Int64("account-id"), command.Int64("user-id"))

		return err
	})
	if err != nil {
		return services.RequestContext{}, fmt.Errorf("failed to load acting user: %w", err)
	}

	return services.RequestContext{
		User:       user,
		AuthType:   services.AuthTypeAPI,
		Location:   a.config.Location(),
		DateLayout: a.config.DateLayout,
	}, nil
}

// withApp builds the app, runs fn and releases everything afterwards.
func withApp(module string, fn func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := newApp(ctx, command, module)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		return fn(ctx, command, a)
	}
}
