package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recipe-analyzer/internal/pkg/common"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// chatModel recipe_chats 資料表
type chatModel struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)"`
	SessionID   string         `gorm:"type:varchar(255);index;not null"`
	Title       string         `gorm:"type:varchar(500);not null"`
	Ingredients string         `gorm:"type:text;not null"`
	RecipesJSON datatypes.JSON `gorm:"column:recipes_json"`
	CreatedAt   time.Time      `gorm:"index;not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// TableName 資料表名稱
func (chatModel) TableName() string {
	return "recipe_chats"
}

// recipesEnvelope recipes_json 欄位格式 {"recipes": [...]}
type recipesEnvelope struct {
	Recipes []common.Recipe `json:"recipes"`
}

func encodeRecipes(recipes []common.Recipe) (datatypes.JSON, error) {
	data, err := json.Marshal(recipesEnvelope{Recipes: recipes})
	if err != nil {
		return nil, fmt.Errorf("encode recipes: %w", err)
	}
	return datatypes.JSON(data), nil
}

func (m chatModel) toRecord() (ChatRecord, error) {
	var env recipesEnvelope
	if len(m.RecipesJSON) > 0 {
		if err := json.Unmarshal(m.RecipesJSON, &env); err != nil {
			return ChatRecord{}, fmt.Errorf("decode recipes of chat %s: %w", m.ID, err)
		}
	}
	return ChatRecord{
		ID:          m.ID,
		SessionID:   m.SessionID,
		Title:       m.Title,
		Ingredients: m.Ingredients,
		Recipes:     env.Recipes,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}, nil
}

// GormStore 以 gorm 實作的關聯式儲存（PostgreSQL / SQLite）
type GormStore struct {
	db   *gorm.DB
	name string
	opts storeOptions
}

// NewGormStore 建立儲存並自動遷移資料表
func NewGormStore(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.AutoMigrate(&chatModel{}); err != nil {
		return nil, fmt.Errorf("migrate recipe_chats: %w", err)
	}
	return &GormStore{
		db:   db,
		name: db.Dialector.Name(),
		opts: buildOptions(opts),
	}, nil
}

// Name 後端名稱
func (s *GormStore) Name() string {
	return s.name
}

// Save 建立新紀錄
func (s *GormStore) Save(ctx context.Context, sessionID, ingredients string, recipes []common.Recipe, title string) (string, error) {
	payload, err := encodeRecipes(recipes)
	if err != nil {
		return "", err
	}

	now := s.opts.timestamp()
	model := chatModel{
		ID:          s.opts.newID(),
		SessionID:   sessionID,
		Title:       titleOrDefault(title),
		Ingredients: ingredients,
		RecipesJSON: payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}
	return model.ID, nil
}

// GetSessionChats 取得 session 內所有紀錄
func (s *GormStore) GetSessionChats(ctx context.Context, sessionID string) ([]ChatRecord, error) {
	var models []chatModel
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query session chats: %w", err)
	}
	return toRecords(models)
}

// GetAllSessions 彙整所有 session
func (s *GormStore) GetAllSessions(ctx context.Context) ([]SessionSummary, error) {
	var models []chatModel
	err := s.db.WithContext(ctx).
		Select("id", "session_id", "title", "created_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	records := make([]ChatRecord, 0, len(models))
	for _, m := range models {
		records = append(records, ChatRecord{
			ID:        m.ID,
			SessionID: m.SessionID,
			Title:     m.Title,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return groupSessions(records), nil
}

// GetRecentChats 取得最新的紀錄
func (s *GormStore) GetRecentChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	var models []chatModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query recent chats: %w", err)
	}
	return toRecords(models)
}

// GetChatByID 以 id 查詢
func (s *GormStore) GetChatByID(ctx context.Context, id string) (*ChatRecord, error) {
	var model chatModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query chat: %w", err)
	}

	record, err := model.toRecord()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteChat 刪除單筆紀錄
func (s *GormStore) DeleteChat(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&chatModel{})
	if result.Error != nil {
		return false, fmt.Errorf("delete chat: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteSessionChats 刪除 session 內所有紀錄
func (s *GormStore) DeleteSessionChats(ctx context.Context, sessionID string) (bool, error) {
	result := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&chatModel{})
	if result.Error != nil {
		return false, fmt.Errorf("delete session chats: %w", result.Error)
	}
	return true, nil
}

// UpdateChat 部分更新紀錄內容
func (s *GormStore) UpdateChat(ctx context.Context, id string, update ChatUpdate) (bool, error) {
	if update.Empty() {
		return false, nil
	}

	values := map[string]interface{}{
		"updated_at": s.opts.timestamp(),
	}
	if update.Ingredients != nil {
		values["ingredients"] = *update.Ingredients
	}
	if update.Recipes != nil {
		payload, err := encodeRecipes(*update.Recipes)
		if err != nil {
			return false, err
		}
		values["recipes_json"] = payload
	}

	result := s.db.WithContext(ctx).Model(&chatModel{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return false, fmt.Errorf("update chat: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateSessionTitle 更新 session 內所有紀錄的標題
func (s *GormStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&chatModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": s.opts.timestamp(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("update session title: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// HealthCheck 檢查資料庫連線
func (s *GormStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉資料庫連線
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecords(models []chatModel) ([]ChatRecord, error) {
	records := make([]ChatRecord, 0, len(models))
	for _, m := range models {
		record, err := m.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
