// Package guestcache grants guests time bounded access to the tasks they perform.
package guestcache

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/flowdesk/pkg/notifications"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL is how long a guest keeps access without being re-invited.
const DefaultTTL = 30 * 24 * time.Hour

// Key identifies one guest's access to one task.
func Key(taskID, userID int64) string {
	return fmt.Sprintf("guest:task:%d:user:%d", taskID, userID)
}

// Cache keeps access grants in process memory. The value of an entry is its
// expiry, so reads never extend a grant.
type Cache struct {
	cache *ttlcache.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		cache: ttlcache.New(ttlcache.WithTTL[string, time.Time](ttl)),
		ttl:   ttl,
		now:   time.Now,
	}

	go c.cache.Start()

	return c
}

func (c *Cache) Activate(_ context.Context, taskID, userID int64) error {
	c.cache.Set(Key(taskID, userID), c.now().Add(c.ttl), ttlcache.DefaultTTL)

	return nil
}

func (c *Cache) Deactivate(_ context.Context, taskID, userID int64) error {
	c.cache.Delete(Key(taskID, userID))

	return nil
}

// IsActive reports whether the guest currently has access to the task.
func (c *Cache) IsActive(_ context.Context, taskID, userID int64) (bool, error) {
	item := c.cache.Get(Key(taskID, userID))
	if item == nil {
		return false, nil
	}

	return c.now().Before(item.Value()), nil
}

// Close stops the expiry loop.
func (c *Cache) Close() {
	c.cache.Stop()
}

var _ notifications.GuestCache = (*Cache)(nil)
