package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"recipe-analyzer/internal/core/ai/cache"
	"recipe-analyzer/internal/core/ai/openai"
	"recipe-analyzer/internal/core/ai/openrouter"
	"recipe-analyzer/internal/core/ai/provider"
	"recipe-analyzer/internal/core/ai/queue"
	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

// 健康檢查使用的最小請求
const (
	healthPrompt      = "Test"
	healthMaxTokens   = 10
	healthTemperature = 0.5
)

// Response AI 回應結構
type Response struct {
	Content  string
	CacheHit bool
}

// Service AI 服務：逾時、快取、單次呼叫
type Service struct {
	provider    provider.Provider
	cache       cache.Cache
	timeout     time.Duration
	maxTokens   int
	temperature float64
	queue       *queue.Manager
	now         func() time.Time

	// 最近一次健康檢查結果
	healthMu  sync.Mutex
	healthTTL time.Duration
	healthAt  time.Time
	healthErr error
}

// Option 服務選項
type Option func(*Service)

// WithQueue 以隊列限制同時送出的模型請求
func WithQueue(q *queue.Manager) Option {
	return func(s *Service) {
		s.queue = q
	}
}

// NewProvider 依設定建立提供者
func NewProvider(cfg config.AIConfig, appName string) (provider.Provider, error) {
	pc := provider.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		BaseURL: cfg.BaseURL,
		AppName: appName,
	}

	switch cfg.Provider {
	case "", "openrouter":
		return openrouter.NewClient(pc), nil
	case "openai":
		return openai.NewClient(pc), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// NewService 創建 AI 服務，responseCache 可為 nil
func NewService(p provider.Provider, responseCache cache.Cache, cfg config.AIConfig, opts ...Option) *Service {
	if cfg.APIKey == "" {
		common.LogWarn("未設定 AI API Key，將使用備援食譜")
	}
	if !cfg.EnableCache {
		responseCache = nil
	}
	s := &Service{
		provider:    p,
		cache:       responseCache,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		now:         time.Now,
		healthTTL:   cfg.HealthCheckTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessRequest 統一對外方法，逾時或失敗時回傳錯誤，不重試
func (s *Service) ProcessRequest(ctx context.Context, prompt string) (*Response, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, common.NewValidationError("prompt cannot be empty")
	}

	// 檢查緩存
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, prompt); err == nil && val != "" {
			return &Response{Content: val, CacheHit: true}, nil
		} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			common.LogWarn("讀取快取失敗", zap.Error(err))
		}
	}

	resp, err := s.generate(ctx, provider.UserPrompt(prompt, s.maxTokens, s.temperature))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, prompt, resp.Content); err != nil {
			common.LogWarn("寫入快取失敗", zap.Error(err))
		}
	}

	return &Response{Content: resp.Content}, nil
}

// HealthCheck 以極小的請求確認模型端點可用
// 結果在 healthTTL 內重複使用，同時間的檢查只會送出一次請求
func (s *Service) HealthCheck(ctx context.Context) error {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if s.healthTTL > 0 && !s.healthAt.IsZero() && s.now().Sub(s.healthAt) < s.healthTTL {
		return s.healthErr
	}

	_, err := s.generate(ctx, provider.UserPrompt(healthPrompt, healthMaxTokens, healthTemperature))
	s.healthAt = s.now()
	s.healthErr = err
	return err
}

// Model 目前使用的模型
func (s *Service) Model() string {
	return s.provider.GetModel()
}

// QueueStatus 隊列狀態，未設定隊列時為 nil
func (s *Service) QueueStatus() *queue.Status {
	if s.queue == nil {
		return nil
	}
	return s.queue.GetQueueStatus()
}

// Close 關閉提供者
func (s *Service) Close() error {
	return s.provider.Close()
}

func (s *Service) generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	// 排隊時間不計入模型逾時
	if s.queue != nil {
		release, err := s.queue.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	timeout := s.timeout
	if timeout <= 0 {
		timeout = s.provider.GetTimeout()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.provider.Generate(ctx, req)
	if errors.Is(err, provider.ErrMissingAPIKey) {
		return nil, err
	}
	common.LogAICall(s.provider.GetModel(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
