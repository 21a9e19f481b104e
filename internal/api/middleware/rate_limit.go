package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Limiter 依 key（客戶端位址）判斷請求是否放行
type Limiter interface {
	// Allow 拒絕時回傳建議的等待時間
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// NewLimiter 依設定建立限流器；停用時回傳 nil
func NewLimiter(cfg config.RateLimitConfig, redisClient *redis.Client) Limiter {
	if !cfg.Enabled {
		return nil
	}
	if redisClient != nil {
		common.LogInfo("使用 Redis 限流",
			zap.Int("requests", cfg.Requests),
			zap.Duration("period", cfg.Period),
		)
		return NewRedisLimiter(redisClient, cfg.Requests, cfg.Period)
	}
	return NewMemoryLimiter(cfg.Requests, cfg.Period)
}

// bucket 單一客戶端的令牌桶
type bucket struct {
	tokens   float64
	lastTime time.Time
}

// MemoryLimiter 行程內的每客戶端令牌桶
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	capacity  float64
	rate      float64 // 每秒補充的令牌數
	period    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter 創建新的限流器，每個 period 最多 requests 次
func NewMemoryLimiter(requests int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:   make(map[string]*bucket),
		capacity:  float64(requests),
		rate:      float64(requests) / period.Seconds(),
		period:    period,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow 檢查是否允許請求
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{tokens: l.capacity, lastTime: now}
		l.buckets[key] = b
	} else if elapsed := now.Sub(b.lastTime).Seconds(); elapsed > 0 {
		// 添加新令牌
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.rate)
		b.lastTime = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}

	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait, nil
}

// sweep 移除一整個週期沒有活動的客戶端，這些桶已經補滿
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.period {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastTime) >= l.period {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Len 目前追蹤的客戶端數量
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

const redisRateLimitPrefix = "ratelimit:"

// RedisLimiter 多實例共用的固定視窗限流
type RedisLimiter struct {
	client   *redis.Client
	requests int64
	period   time.Duration
	now      func() time.Time
}

// NewRedisLimiter 創建 Redis 限流器
func NewRedisLimiter(client *redis.Client, requests int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		requests: int64(requests),
		period:   period,
		now:      time.Now,
	}
}

// Allow 以 INCR + EXPIRE 計數目前視窗內的請求
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now().UnixNano()
	window := now / int64(l.period)
	redisKey := fmt.Sprintf("%s%s:%d", redisRateLimitPrefix, key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.period)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	if incr.Val() > l.requests {
		retryAfter := l.period - time.Duration(now%int64(l.period))
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// RateLimit 限流中間件；限流器出錯時放行
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			common.LogWarn("限流檢查失敗，放行請求",
				zap.String("ip", c.ClientIP()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			common.LogInfo("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.Int("retry_after", seconds),
			)

			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(common.ErrRateLimitExceeded.Status, common.ErrRateLimitExceeded.Response())
			return
		}

		c.Next()
	}
}
