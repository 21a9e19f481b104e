package chat

import (
	"context"
	"fmt"
	"time"

	"recipe-analyzer/internal/infrastructure/config"
	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewStore 依設定建立儲存後端
// 缺少連線資訊或初次連線失敗時改用記憶體儲存，呼叫端不需判斷實際後端
func NewStore(ctx context.Context, cfg config.StoreConfig, opts ...Option) Store {
	driver := resolveDriver(cfg)

	store, err := openStore(ctx, driver, cfg, opts...)
	if err != nil {
		common.LogWarn("無法連線持久化儲存，改用記憶體儲存",
			zap.String("driver", driver),
			zap.Error(err),
		)
		return NewMemoryStore(opts...)
	}

	common.LogInfo("對話儲存已就緒", zap.String("driver", store.Name()))
	return store
}

// resolveDriver 未指定 driver 時依連線資訊推斷
func resolveDriver(cfg config.StoreConfig) string {
	if cfg.Driver != "" {
		return cfg.Driver
	}
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.MongoURI != "":
		return "mongo"
	default:
		return "memory"
	}
}

func openStore(ctx context.Context, driver string, cfg config.StoreConfig, opts ...Option) (Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch driver {
	case "memory":
		return NewMemoryStore(opts...), nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database url is not configured")
		}
		return openGorm(ctx, postgres.Open(cfg.DatabaseURL), opts...)
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is not configured")
		}
		return openGorm(ctx, sqlite.Open(cfg.SQLitePath), opts...)
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo uri is not configured")
		}
		client, err := ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store, err := NewMongoStore(ctx, client, cfg.MongoDatabase, opts...)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// openGorm 開啟 gorm 連線並建立儲存
func openGorm(ctx context.Context, dialector gorm.Dialector, opts ...Option) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialector.Name(), err)
	}

	store, err := NewGormStore(db, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}
