package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"recipe-analyzer/internal/core/ai/queue"
	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 服務狀態
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultProbeTimeout 單一相依服務檢查的時限
const DefaultProbeTimeout = 10 * time.Second

var errProbePanicked = errors.New("probe panicked")

// Checker 可被探測的相依服務
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// QueueReporter 可回報模型請求隊列狀態的服務
type QueueReporter interface {
	QueueStatus() *queue.Status
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]string      `json:"checks"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Runtime   map[string]interface{} `json:"runtime"`
}

// Handler 健康檢查處理器
type Handler struct {
	version      string
	store        Checker
	ai           Checker
	probeTimeout time.Duration
}

// NewHandler 創建健康檢查處理器，store 或 ai 為 nil 時視為檢查失敗
func NewHandler(version string, store, ai Checker) *Handler {
	return &Handler{
		version:      version,
		store:        store,
		ai:           ai,
		probeTimeout: DefaultProbeTimeout,
	}
}

// HealthCheck 任一相依服務失敗時為 degraded；檢查本身崩潰時為 unhealthy
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := make(map[string]string, 2)
	status := StatusHealthy

	for name, checker := range map[string]Checker{"database": h.store, "ai": h.ai} {
		err := h.probe(ctx, checker)
		switch {
		case errors.Is(err, errProbePanicked):
			checks[name] = "error"
			status = StatusUnhealthy
		case err != nil:
			checks[name] = "error"
			if status == StatusHealthy {
				status = StatusDegraded
			}
			common.LogWarn("Health probe failed",
				zap.String("component", name),
				zap.Error(err),
			)
		default:
			checks[name] = "ok"
		}
	}

	var queueStatus *queue.Status
	if reporter, ok := h.ai.(QueueReporter); ok {
		queueStatus = reporter.QueueStatus()
	}

	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    checks,
		Queue:     queueStatus,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":  m.Alloc,
				"sys":    m.Sys,
				"num_gc": m.NumGC,
			},
		},
	})
}

// Root 服務資訊
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     "Smart Recipe Analyzer API",
		"version":     h.version,
		"description": "AI-powered recipe generation based on available ingredients",
		"health":      "/health",
	})
}

// ReadinessCheck 儲存層可用時才算就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if err := h.probe(c.Request.Context(), h.store); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// probe 執行單一檢查並攔截 panic
func (h *Handler) probe(ctx context.Context, checker Checker) (err error) {
	if checker == nil {
		return errors.New("not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			common.LogError("Health probe panicked", zap.Any("error", r))
			err = fmt.Errorf("%w: %v", errProbePanicked, r)
		}
	}()

	return checker.HealthCheck(ctx)
}
