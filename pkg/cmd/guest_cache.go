package cmd

import (
	"context"
	"time"

	"github.com/dukex/flowdesk/pkg/guestcache"
	"github.com/dukex/flowdesk/pkg/guestcache/redis"
	"github.com/dukex/flowdesk/pkg/notifications"
)

// NewGuestCache returns a Redis backed cache when redisURL is set and an in-process one
// otherwise. The returned func releases the cache.
func NewGuestCache(ctx context.Context, redisURL string, ttl time.Duration) (notifications.GuestCache, func() error, error) {
	if redisURL == "" {
		cache := guestcache.New(ttl)

		return cache, func() error {
			cache.Close()

			return nil
		}, nil
	}

	cache, err := redis.New(ctx, redisURL, ttl)
	if err != nil {
		return nil, nil, err
	}

	return cache, cache.Close, nil
}
