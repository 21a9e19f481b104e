package api

import (
	"net/http"
	"time"

	chatHandler "recipe-analyzer/internal/api/handlers/chat"
	"recipe-analyzer/internal/api/handlers/health"
	"recipe-analyzer/internal/api/middleware"
	"recipe-analyzer/internal/core/chat"
	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由使用的服務
type Dependencies struct {
	Recipes      chatHandler.RecipeGenerator
	Store        chat.Store
	AI           health.Checker
	Limiter      middleware.Limiter       // nil 表示不限流
	Deduplicator *middleware.Deduplicator // nil 表示不去重
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))

	router.Use(middleware.BodySizeLimit(cfg.Request.MaxBodyBytes))
	router.Use(middleware.Timeout(cfg.Request.Timeout))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(common.ErrNotFound.Status, common.ErrNotFound.Response())
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(common.ErrMethodNotAllowed.Status, common.ErrMethodNotAllowed.Response())
	})

	// 健康檢查路由
	var storeChecker health.Checker
	if deps.Store != nil {
		storeChecker = deps.Store
	}
	healthHandler := health.NewHandler(cfg.App.Version, storeChecker, deps.AI)
	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API 路由組
	api := router.Group("/api/chat")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter))
	}

	var sendMiddleware []gin.HandlerFunc
	if deps.Deduplicator != nil {
		sendMiddleware = append(sendMiddleware, deps.Deduplicator.Handler())
	}
	chatHandler.NewHandler(deps.Recipes, deps.Store).Register(api, sendMiddleware...)

	common.LogInfo("Router setup completed successfully",
		zap.String("store", storeName(deps.Store)),
		zap.Bool("rate_limit", deps.Limiter != nil),
		zap.Bool("deduplication", deps.Deduplicator != nil),
		zap.Strings("cors_origins", cfg.CORS.AllowedOrigins),
		zap.Duration("timeout", cfg.Request.Timeout),
		zap.Int64("max_body_size", cfg.Request.MaxBodyBytes),
	)

	return router
}

// corsConfig 依允許清單建立 CORS 設定，清單為空時開放所有來源但不帶憑證
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		common.LogWarn("未設定 CORS 允許來源，開放所有來源")
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

func storeName(store chat.Store) string {
	if store == nil {
		return "none"
	}
	return store.Name()
}

// NewServer 以設定建立 HTTP 服務器
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
