package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"empty", "", []string{}},
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"trims and skips blanks", " a:9092, ,b:9092 ", []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, ParseBrokers(tt.raw))
		})
	}
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	t.Parallel()

	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "flowdesk")
	require.ErrorIs(t, err, ErrNoBrokers)
}
