package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull 等待中的請求已達上限
	ErrQueueFull = errors.New("ai request queue is full")
	// ErrClosed 隊列已關閉
	ErrClosed = errors.New("ai request queue is closed")
)

// Status 隊列狀態
type Status struct {
	Active         int   `json:"active"`
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 限制同時送往模型端點的請求數
type Manager struct {
	config    config.QueueConfig
	slots     chan struct{}
	waiting   int64
	processed int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager 創建新的隊列管理器
func NewManager(cfg config.QueueConfig) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Manager{
		config: cfg,
		slots:  make(chan struct{}, cfg.Workers),
		done:   make(chan struct{}),
	}
}

// Acquire 取得執行名額，回傳的 release 必須呼叫一次
// 沒有空位時排隊等待，等待數超過 MaxSize 則立即回傳 ErrQueueFull
func (m *Manager) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	// 有空位時直接執行
	select {
	case m.slots <- struct{}{}:
		return m.releaser(), nil
	default:
	}

	if atomic.AddInt64(&m.waiting, 1) > int64(m.config.MaxSize) {
		atomic.AddInt64(&m.waiting, -1)
		common.LogWarn("AI request queue is full",
			zap.Int("max_queue_size", m.config.MaxSize),
			zap.Int("workers", m.config.Workers),
		)
		return nil, ErrQueueFull
	}
	defer atomic.AddInt64(&m.waiting, -1)

	select {
	case m.slots <- struct{}{}:
		return m.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, ErrClosed
	}
}

func (m *Manager) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.slots
			atomic.AddInt64(&m.processed, 1)
		})
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		Active:         len(m.slots),
		QueueLength:    int(atomic.LoadInt64(&m.waiting)),
		ProcessedCount: atomic.LoadInt64(&m.processed),
		MaxQueueSize:   m.config.MaxSize,
		Workers:        m.config.Workers,
	}
}

// Close 關閉隊列管理器，等待中的請求回傳 ErrClosed
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
