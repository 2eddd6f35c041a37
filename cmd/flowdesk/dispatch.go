package main

import (
	"context"

	"github.com/dukex/flowdesk/pkg/eventbus"
	cli "github.com/urfave/cli/v3"
)

func NewDispatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Consume queued side effects and deliver them",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:    "retries",
				Usage:   "Delivery attempts before a side effect is dropped",
				Value:   5,
				Sources: cli.EnvVars("DISPATCH_RETRIES"),
			},
		},
		Action: withApp("dispatcher", func(ctx context.Context, command *cli.Command, a *app) error {
			a.logger.InfoContext(ctx, "Starting dispatcher")

			dispatcher := eventbus.NewDispatcher(a.eventBus, eventbus.LogSink{Logger: a.logger}, a.logger,
				eventbus.WithRetries(command.Uint64("retries")))

			if err := dispatcher.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			a.logger.InfoContext(ctx, "Dispatcher stopped")

			return nil
		}),
	}
}
