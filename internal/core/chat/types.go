package chat

import (
	"context"
	"errors"
	"time"

	"recipe-analyzer/internal/pkg/common"
)

// DefaultTitle 新對話的預設標題
const DefaultTitle = "Recipe Analysis"

// 最近紀錄查詢筆數
const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

// ErrChatNotFound 找不到指定的對話紀錄
var ErrChatNotFound = errors.New("chat not found")

// ChatRecord 一次食材到食譜的對話紀錄
type ChatRecord struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Title       string          `json:"title"`
	Ingredients string          `json:"ingredients"`
	Recipes     []common.Recipe `json:"recipes"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SessionSummary 由同一 session_id 的紀錄彙整而成，不另外儲存
type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatUpdate 部分更新，nil 欄位不變更
type ChatUpdate struct {
	Ingredients *string
	Recipes     *[]common.Recipe
}

// Empty 是否沒有任何欄位需要更新
func (u ChatUpdate) Empty() bool {
	return u.Ingredients == nil && u.Recipes == nil
}

// Store 對話紀錄儲存介面，所有後端行為一致
type Store interface {
	// Save 建立新紀錄並回傳 id，title 為空時使用 DefaultTitle
	Save(ctx context.Context, sessionID, ingredients string, recipes []common.Recipe, title string) (string, error)
	// GetSessionChats 依 created_at 由新到舊回傳該 session 的紀錄
	GetSessionChats(ctx context.Context, sessionID string) ([]ChatRecord, error)
	// GetAllSessions 每個 session 一筆，依最新紀錄時間排序
	GetAllSessions(ctx context.Context) ([]SessionSummary, error)
	// GetRecentChats 跨 session 的最新紀錄
	GetRecentChats(ctx context.Context, limit int) ([]ChatRecord, error)
	// GetChatByID 不存在時回傳 ErrChatNotFound
	GetChatByID(ctx context.Context, id string) (*ChatRecord, error)
	// DeleteChat 有刪除紀錄時回傳 true
	DeleteChat(ctx context.Context, id string) (bool, error)
	// DeleteSessionChats 即使沒有符合的紀錄也回傳 true
	DeleteSessionChats(ctx context.Context, sessionID string) (bool, error)
	// UpdateChat 沒有任何欄位或紀錄不存在時回傳 false
	UpdateChat(ctx context.Context, id string, update ChatUpdate) (bool, error)
	// UpdateSessionTitle 至少更新一筆時回傳 true
	UpdateSessionTitle(ctx context.Context, sessionID, title string) (bool, error)
	HealthCheck(ctx context.Context) error
	// Name 後端名稱，用於日誌與健康檢查
	Name() string
	Close() error
}

// Option 後端共用選項
type Option func(*storeOptions)

type storeOptions struct {
	now   func() time.Time
	newID func() string
}

// WithClock 指定時間來源
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// WithIDGenerator 指定 id 產生方式
func WithIDGenerator(newID func() string) Option {
	return func(o *storeOptions) {
		o.newID = newID
	}
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{
		now:   time.Now,
		newID: common.GenerateUUID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp 統一為 UTC 毫秒精度，各後端讀回的值一致
func (o storeOptions) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}

func titleOrDefault(title string) string {
	if title == "" {
		return DefaultTitle
	}
	return title
}
