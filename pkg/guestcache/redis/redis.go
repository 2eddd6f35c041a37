// Package redis stores guest access grants in Redis so every process shares them.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/flowdesk/pkg/guestcache"
	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New connects using a redis:// URL.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

func NewWithClient(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = guestcache.DefaultTTL
	}

	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Activate(ctx context.Context, taskID, userID int64) error {
	if err := c.client.Set(ctx, guestcache.Key(taskID, userID), 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to activate guest %d on task %d: %w", userID, taskID, err)
	}

	return nil
}

func (c *Cache) Deactivate(ctx context.Context, taskID, userID int64) error {
	if err := c.client.Del(ctx, guestcache.Key(taskID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to deactivate guest %d on task %d: %w", userID, taskID, err)
	}

	return nil
}

func (c *Cache) IsActive(ctx context.Context, taskID, userID int64) (bool, error) {
	n, err := c.client.Exists(ctx, guestcache.Key(taskID, userID)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// TTL returns the remaining lifetime of a grant.
func (c *Cache) TTL(ctx context.Context, taskID, userID int64) (time.Duration, error) {
	return c.client.TTL(ctx, guestcache.Key(taskID, userID)).Result()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

var _ notifications.GuestCache = (*Cache)(nil)
