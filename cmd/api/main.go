package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-analyzer/internal/api"
	"recipe-analyzer/internal/api/middleware"
	"recipe-analyzer/internal/core/ai/cache"
	"recipe-analyzer/internal/core/ai/queue"
	"recipe-analyzer/internal/core/ai/service"
	"recipe-analyzer/internal/core/chat"
	"recipe-analyzer/internal/core/recipe"
	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/infrastructure/redisclient"
	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

// startupProbeTimeout 啟動時檢查相依服務的時限
const startupProbeTimeout = 15 * time.Second

func main() {
	// 載入設定
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
		zap.String("ai_key", config.MaskAPIKey(cfg.AI.APIKey)),
		zap.String("store_driver", cfg.Store.Driver),
	)

	ctx := context.Background()
	var closers []io.Closer

	// Redis 為選用，連線失敗時退回行程內實作
	redisClient, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		common.LogWarn("Redis 無法使用，改用行程內快取與限流", zap.Error(err))
		redisClient = nil
	}

	// 初始化快取
	responseCache := cache.New(cfg.Cache, redisClient)
	if responseCache != nil {
		closers = append(closers, responseCache)
	}

	provider, err := service.NewProvider(cfg.AI, cfg.App.Name)
	if err != nil {
		common.LogFatal("Failed to initialize AI provider", zap.Error(err))
	}
	requestQueue := queue.NewManager(cfg.Queue)
	aiService := service.NewService(provider, responseCache, cfg.AI, service.WithQueue(requestQueue))
	closers = append(closers, requestQueue, aiService)

	store := chat.NewStore(ctx, cfg.Store)
	closers = append(closers, store)

	dedup := middleware.NewDeduplicator(cfg.DedupWindow)
	closers = append(closers, dedup)

	if redisClient != nil {
		closers = append(closers, redisClient)
	}

	logStartupHealth(ctx, store, aiService)

	router := api.SetupRouter(cfg, api.Dependencies{
		Recipes:      recipe.NewService(aiService, store),
		Store:        store,
		AI:           aiService,
		Limiter:      middleware.NewLimiter(cfg.RateLimit, redisClient),
		Deduplicator: dedup,
	})

	srv := api.NewServer(cfg, router)

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("address", srv.Addr),
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.String("store", store.Name()),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	if err := common.CloseAll(closers...); err != nil {
		common.LogError("Failed to release resources", zap.Error(err))
	}

	common.LogInfo("Server exited")
}

// logStartupHealth 記錄啟動時的相依服務狀態，失敗不影響啟動
func logStartupHealth(ctx context.Context, store chat.Store, aiService *service.Service) {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	if err := store.HealthCheck(ctx); err != nil {
		common.LogWarn("資料庫連線失敗，部分功能可能無法使用", zap.String("store", store.Name()), zap.Error(err))
	} else {
		common.LogInfo("資料庫連線正常", zap.String("store", store.Name()))
	}

	if err := aiService.HealthCheck(ctx); err != nil {
		common.LogWarn("AI 服務連線失敗，將使用備援食譜", zap.String("model", aiService.Model()), zap.Error(err))
	} else {
		common.LogInfo("AI 服務連線正常", zap.String("model", aiService.Model()))
	}
}
