// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/flowdesk/pkg/persistence"
	"github.com/dukex/flowdesk/pkg/persistence/file"
	"github.com/dukex/flowdesk/pkg/persistence/memory"
	"github.com/dukex/flowdesk/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "memory", "postgres", "postgresql"}

// NewPersistence picks the store from the url scheme. Urls without a known scheme are
// treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		store, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
