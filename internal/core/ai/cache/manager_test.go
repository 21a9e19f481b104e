package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"recipe-analyzer/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxSize int, ttl time.Duration) (*CacheManager, *time.Time) {
	t.Helper()
	m := NewManager(config.CacheConfig{Enabled: true, MaxSize: maxSize, TTL: ttl})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	t.Cleanup(func() { _ = m.Close() })
	return m, &now
}

func TestManagerGetSet(t *testing.T) {
	m, _ := newTestManager(t, 10, time.Hour)
	ctx := context.Background()

	_, err := m.Get(ctx, "prompt")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Set(ctx, "prompt", "answer"))
	got, err := m.Get(ctx, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	stats := m.GetStats()
	assert.EqualValues(t, 1, stats["hits"])
	assert.EqualValues(t, 1, stats["misses"])
	assert.Equal(t, 1, stats["size"])
}

func TestManagerExpiry(t *testing.T) {
	m, now := newTestManager(t, 10, time.Minute)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "prompt", "answer"))
	*now = now.Add(2 * time.Minute)

	_, err := m.Get(ctx, "prompt")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, m.GetStats()["size"])
}

func TestManagerEvictsLeastUsed(t *testing.T) {
	m, now := newTestManager(t, 2, time.Hour)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1"))
	*now = now.Add(time.Second)
	require.NoError(t, m.Set(ctx, "b", "2"))
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "c", "3"))

	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	for _, key := range []string{"a", "c"} {
		_, err := m.Get(ctx, key)
		assert.NoError(t, err, key)
	}
}

func TestManagerOverwriteDoesNotEvict(t *testing.T) {
	m, _ := newTestManager(t, 1, time.Hour)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "a", "2"))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestManagerConcurrentAccess(t *testing.T) {
	m, _ := newTestManager(t, 50, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (worker*100+j)%80)
				_ = m.Set(ctx, key, key)
				_, _ = m.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.GetStats()["size"].(int), 50)
}

func TestManagerCloseStopsCleanup(t *testing.T) {
	m := NewManager(config.CacheConfig{Enabled: true, MaxSize: 5, TTL: time.Millisecond, CleanupInterval: 5 * time.Millisecond})
	require.NoError(t, m.Set(context.Background(), "a", "1"))

	assert.Eventually(t, func() bool {
		return m.GetStats()["size"] == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNewSelectsBackend(t *testing.T) {
	assert.Nil(t, New(config.CacheConfig{Enabled: false}, nil))

	c := New(config.CacheConfig{Enabled: true, MaxSize: 1, TTL: time.Minute}, nil)
	require.NotNil(t, c)
	_, ok := c.(*CacheManager)
	assert.True(t, ok)
	require.NoError(t, c.Close())
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, hashKey("x"), hashKey("x"))
	assert.NotEqual(t, hashKey("x"), hashKey("y"))
	assert.Len(t, hashKey("x"), len("text:")+64)
}
