package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Server      ServerConfig    `mapstructure:"server"`
	AI          AIConfig        `mapstructure:"ai"`
	Store       StoreConfig     `mapstructure:"store"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Queue       QueueConfig     `mapstructure:"queue"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	CORS        CORSConfig      `mapstructure:"cors"`
	Request     RequestConfig   `mapstructure:"request"`
	DedupWindow time.Duration   `mapstructure:"dedup_window"`
	LogLevel    string          `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AIConfig 模型端點設定
type AIConfig struct {
	Provider    string        `mapstructure:"provider"` // openrouter | openai
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	EnableCache bool          `mapstructure:"enable_cache"`

	// HealthCheckTTL 健康檢查結果的快取時間，0 表示每次都呼叫模型
	HealthCheckTTL time.Duration `mapstructure:"health_check_ttl"`
}

// StoreConfig 對話紀錄儲存設定
type StoreConfig struct {
	Driver         string        `mapstructure:"driver"` // postgres | sqlite | mongo | memory
	DatabaseURL    string        `mapstructure:"database_url"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	MongoURI       string        `mapstructure:"mongo_uri"`
	MongoDatabase  string        `mapstructure:"mongo_database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig Redis 設定，Addr 為空表示不使用
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// QueueConfig 模型請求並行設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`  // 同時送出的請求數
	MaxSize int `mapstructure:"max_size"` // 排隊等待上限
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Period   time.Duration `mapstructure:"-"` // 由 parseSeconds 解析
}

// CORSConfig 跨來源設定
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RequestConfig 單一請求限制
type RequestConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// Address 回傳 HTTP 監聽位址
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件，不存在時略過
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Load(viper.New())
}

// Load 以指定的 viper 實例解析設定
func Load(v *viper.Viper) (*Config, error) {
	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	bindEnv(v, "ai.api_key", "AI_API_KEY", "OPENROUTER_API_KEY", "HUGGINGFACE_API_TOKEN")
	bindEnv(v, "ai.model", "AI_MODEL", "HUGGINGFACE_MODEL_NAME")
	bindEnv(v, "ai.provider", "AI_PROVIDER")
	bindEnv(v, "ai.base_url", "AI_BASE_URL")
	bindEnv(v, "store.driver", "STORE_DRIVER")
	bindEnv(v, "store.database_url", "DATABASE_URL")
	bindEnv(v, "store.sqlite_path", "SQLITE_PATH")
	bindEnv(v, "store.mongo_uri", "MONGO_URI")
	bindEnv(v, "redis.addr", "REDIS_ADDR")
	bindEnv(v, "redis.password", "REDIS_PASSWORD")
	bindEnv(v, "queue.workers", "AI_MAX_CONCURRENT")
	bindEnv(v, "rate_limit.requests", "RATE_LIMIT_REQUESTS")
	bindEnv(v, "rate_limit.period", "RATE_LIMIT_PERIOD")
	bindEnv(v, "cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
	bindEnv(v, "server.host", "API_HOST")
	bindEnv(v, "server.port", "API_PORT")
	bindEnv(v, "dedup_window", "DEDUP_WINDOW")
	bindEnv(v, "log_level", "LOG_LEVEL")

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 環境變數以逗號分隔
	config.CORS.AllowedOrigins = splitList(config.CORS.AllowedOrigins)

	// RATE_LIMIT_PERIOD 沿用純秒數寫法
	if raw := v.GetString("rate_limit.period"); raw != "" {
		period, err := parseSeconds(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit.period: %w", err)
		}
		config.RateLimit.Period = period
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func bindEnv(v *viper.Viper, key string, envs ...string) {
	_ = v.BindEnv(append([]string{key}, envs...)...)
}

// parseSeconds 接受 "60" 或 "1m" 兩種寫法
func parseSeconds(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-analyzer")

	// 伺服器設定
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "5s")

	// 模型設定
	v.SetDefault("ai.provider", "openrouter")
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.model", "qwen/qwen-2.5-72b-instruct:free")
	v.SetDefault("ai.max_tokens", 1000)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.enable_cache", true)
	v.SetDefault("ai.health_check_ttl", "30s")

	// 儲存設定
	v.SetDefault("store.driver", "")
	v.SetDefault("store.sqlite_path", "recipe_chats.db")
	v.SetDefault("store.mongo_database", "recipe_analyzer")
	v.SetDefault("store.connect_timeout", "10s")

	// Redis 設定
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 隊列設定
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_size", 100)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.period", "60")

	// CORS 設定
	v.SetDefault("cors.allowed_origins", "http://localhost:5173,http://127.0.0.1:5173")

	// 請求設定
	v.SetDefault("request.timeout", "90s")
	v.SetDefault("request.max_body_bytes", 1<<20)

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.AI.Provider {
	case "openrouter", "openai":
	default:
		return fmt.Errorf("unknown ai provider: %q", config.AI.Provider)
	}
	if config.AI.MaxTokens <= 0 {
		return fmt.Errorf("invalid ai max tokens")
	}
	if config.AI.Timeout <= 0 {
		return fmt.Errorf("invalid ai timeout")
	}
	if config.AI.HealthCheckTTL < 0 {
		return fmt.Errorf("invalid ai health check ttl")
	}

	switch config.Store.Driver {
	case "", "postgres", "sqlite", "mongo", "memory":
	default:
		return fmt.Errorf("unknown store driver: %q", config.Store.Driver)
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	// 驗證隊列設定
	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize < 0 {
		return fmt.Errorf("invalid queue max size")
	}

	// 驗證限流設定
	if config.RateLimit.Enabled {
		if config.RateLimit.Requests <= 0 {
			return fmt.Errorf("invalid rate limit requests")
		}
		if config.RateLimit.Period <= 0 {
			return fmt.Errorf("invalid rate limit period")
		}
	}

	if config.Request.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid request max body bytes")
	}

	return nil
}
