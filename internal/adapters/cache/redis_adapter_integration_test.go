//go:build integration

package cache

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/eventscan/internal/domain/providers"
	"github.com/zatekoja/eventscan/internal/infrastructure/clients/redis"
	"github.com/zatekoja/eventscan/pkg/config"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	port, _ := strconv.Atoi(os.Getenv("TEST_REDIS_PORT"))
	if port == 0 {
		port = 6379
	}
	client, err := redis.NewClient(&config.RedisConfig{
		Host:     os.Getenv("TEST_REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("TEST_REDIS_PASSWORD"),
	})
	require.NoError(t, err, "Failed to create redis client")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisAdapter_RoundTripIntegration(t *testing.T) {
	adapter := NewRedisAdapter(newTestRedisClient(t))
	ctx := context.Background()

	_, err := adapter.Get(ctx, "it:missing")
	assert.ErrorIs(t, err, providers.ErrCacheMiss)

	require.NoError(t, adapter.Set(ctx, "it:key", []byte("value"), 30))
	got, err := adapter.Get(ctx, "it:key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	exists, err := adapter.Exists(ctx, "it:key")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, adapter.Delete(ctx, "it:key"))
	exists, err = adapter.Exists(ctx, "it:key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisAdapter_DeletePatternIntegration(t *testing.T) {
	adapter := NewRedisAdapter(newTestRedisClient(t))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, adapter.Set(ctx, "it:search:results:"+strconv.Itoa(i), []byte("page"), 30))
	}
	require.NoError(t, adapter.Set(ctx, "it:search:embedding:abc", []byte("vec"), 30))

	require.NoError(t, adapter.DeletePattern(ctx, "it:search:results:*"))

	exists, err := adapter.Exists(ctx, "it:search:results:7")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = adapter.Exists(ctx, "it:search:embedding:abc")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, adapter.Delete(ctx, "it:search:embedding:abc"))
}
