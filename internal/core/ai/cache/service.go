package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ai:response:"

// RedisCache 多個實例共用的 Redis 快取
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 創建 Redis 快取，client 由呼叫端管理
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// Get 獲取緩存
func (s *RedisCache) Get(ctx context.Context, prompt string) (string, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+hashKey(prompt)).Result()
	if errors.Is(err, redis.Nil) {
		common.LogCacheMiss("redis")
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cache: %w", err)
	}

	common.LogCacheHit("redis")
	return value, nil
}

// Set 設置緩存
func (s *RedisCache) Set(ctx context.Context, prompt, value string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+hashKey(prompt), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Close Redis 連線由建立者關閉
func (s *RedisCache) Close() error {
	return nil
}

// New 依設定建立快取；停用時回傳 nil
// redisClient 不為 nil 時使用 Redis，否則使用行程內快取
func New(cfg config.CacheConfig, redisClient *redis.Client) Cache {
	if !cfg.Enabled {
		common.LogInfo("Cache disabled")
		return nil
	}
	if redisClient != nil {
		common.LogInfo("使用 Redis 快取", zap.Duration("ttl", cfg.TTL))
		return NewRedisCache(redisClient, cfg.TTL)
	}
	return NewManager(cfg)
}
