package redis_test

import (
	"context"
	"testing"
	"time"

	guestredis "github.com/dukex/flowdesk/pkg/guestcache/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (*guestredis.Cache, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cache, err := guestredis.New(ctx, "redis://"+endpoint+"/0", time.Hour)
	require.NoError(t, err)

	t.Cleanup(func() { _ = cache.Close() })

	return cache, ctx
}

func TestCache_ActivateDeactivate(t *testing.T) {
	cache, ctx := setupRedis(t)

	require.NoError(t, cache.Activate(ctx, 10, 20))

	active, err := cache.IsActive(ctx, 10, 20)
	require.NoError(t, err)
	assert.True(t, active)

	ttl, err := cache.TTL(ctx, 10, 20)
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	require.NoError(t, cache.Deactivate(ctx, 10, 20))

	active, err = cache.IsActive(ctx, 10, 20)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, cache.Deactivate(ctx, 10, 20))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := guestredis.New(context.Background(), "not-a-url", time.Hour)
	require.Error(t, err)
}
