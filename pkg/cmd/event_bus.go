package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowdesk/pkg/channels/gochannel"
	"github.com/dukex/flowdesk/pkg/channels/kafka"
	"github.com/dukex/flowdesk/pkg/eventbus"
)

const serviceName = "flowdesk"

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus builds the bus for provider. Brokers are only read by the kafka provider.
func NewEventBus(provider string, logger *slog.Logger, brokers string) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
