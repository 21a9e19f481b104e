package cache

import (
	"context"
	"testing"
	"time"

	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/infrastructure/redisclient/redistest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	client := redistest.Start(t)
	ctx := context.Background()

	c := New(config.CacheConfig{Enabled: true, TTL: time.Minute}, client)
	rc, ok := c.(*RedisCache)
	require.True(t, ok)

	_, err := rc.Get(ctx, "prompt")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, rc.Set(ctx, "prompt", "answer"))
	got, err := rc.Get(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	ttl, err := client.TTL(ctx, redisKeyPrefix+hashKey("prompt")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, rc.Close())
	assert.NoError(t, client.Ping(ctx).Err())
}
