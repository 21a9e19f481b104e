package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deduplicator 擋下視窗時間內重複送出的相同請求
type Deduplicator struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	requests map[string]time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDeduplicator 創建去重器並啟動清理協程，window <= 0 時使用 1 秒
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = time.Second
	}
	d := &Deduplicator{
		window:   window,
		now:      time.Now,
		requests: make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
	go d.cleanupLoop(10 * window)
	return d
}

// Handler 去重中間件，只處理有請求體的方法
func (d *Deduplicator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}

		// 計算請求體哈希
		bodyHash := ""
		if c.Request.Body != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				if IsBodyTooLarge(err) {
					c.AbortWithStatusJSON(common.ErrPayloadTooLarge.Status, common.ErrPayloadTooLarge.Response())
					return
				}
				common.LogError("Failed to read request body", zap.Error(err))
				c.Next()
				return
			}

			hash := sha256.Sum256(body)
			bodyHash = hex.EncodeToString(hash[:])

			// 恢復請求體
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		// 生成請求指紋
		fingerprint := c.ClientIP() + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + bodyHash

		if !d.record(fingerprint) {
			common.LogInfo("Duplicate request rejected",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(common.ErrDuplicateRequest.Status, common.ErrDuplicateRequest.Response())
			return
		}

		c.Next()
	}
}

// record 記錄指紋；視窗內已出現過時回傳 false
func (d *Deduplicator) record(fingerprint string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, exists := d.requests[fingerprint]; exists && now.Sub(last) <= d.window {
		return false
	}
	d.requests[fingerprint] = now
	return true
}

func (d *Deduplicator) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

func (d *Deduplicator) sweep() {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, t := range d.requests {
		if now.Sub(t) > d.window {
			delete(d.requests, k)
		}
	}
}

// Close 停止清理協程
func (d *Deduplicator) Close() error {
	d.stopOnce.Do(func() { close(d.stop) })
	return nil
}
