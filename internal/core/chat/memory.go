package chat

import (
	"context"
	"sync"

	"recipe-analyzer/internal/pkg/common"
)

// MemoryStore 行程內的對話紀錄，重啟後消失
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]ChatRecord
	opts    storeOptions
}

// NewMemoryStore 創建空的記憶體儲存
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]ChatRecord),
		opts:    buildOptions(opts),
	}
}

// Name 後端名稱
func (s *MemoryStore) Name() string {
	return "memory"
}

// Save 建立新紀錄
func (s *MemoryStore) Save(ctx context.Context, sessionID, ingredients string, recipes []common.Recipe, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.opts.timestamp()
	record := ChatRecord{
		ID:          s.opts.newID(),
		SessionID:   sessionID,
		Title:       titleOrDefault(title),
		Ingredients: ingredients,
		Recipes:     common.CloneRecipes(recipes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.records[record.ID] = record
	s.mu.Unlock()

	return record.ID, nil
}

// GetSessionChats 取得 session 內所有紀錄
func (s *MemoryStore) GetSessionChats(ctx context.Context, sessionID string) ([]ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]ChatRecord, 0)
	for _, record := range s.records {
		if record.SessionID == sessionID {
			out = append(out, cloneRecord(record))
		}
	}
	s.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// GetAllSessions 彙整所有 session
func (s *MemoryStore) GetAllSessions(ctx context.Context) ([]SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := make([]ChatRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	s.mu.RUnlock()

	return groupSessions(records), nil
}

// GetRecentChats 取得最新的紀錄
func (s *MemoryStore) GetRecentChats(ctx context.Context, limit int) ([]ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]ChatRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, cloneRecord(record))
	}
	s.mu.RUnlock()

	sortRecords(out)
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetChatByID 以 id 查詢
func (s *MemoryStore) GetChatByID(ctx context.Context, id string) (*ChatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrChatNotFound
	}
	cp := cloneRecord(record)
	return &cp, nil
}

// DeleteChat 刪除單筆紀錄
func (s *MemoryStore) DeleteChat(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// DeleteSessionChats 刪除 session 內所有紀錄
func (s *MemoryStore) DeleteSessionChats(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, record := range s.records {
		if record.SessionID == sessionID {
			delete(s.records, id)
		}
	}
	return true, nil
}

// UpdateChat 部分更新紀錄內容
func (s *MemoryStore) UpdateChat(ctx context.Context, id string, update ChatUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if update.Empty() {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return false, nil
	}
	if update.Ingredients != nil {
		record.Ingredients = *update.Ingredients
	}
	if update.Recipes != nil {
		record.Recipes = common.CloneRecipes(*update.Recipes)
	}
	record.UpdatedAt = s.opts.timestamp()
	s.records[id] = record
	return true, nil
}

// UpdateSessionTitle 更新 session 內所有紀錄的標題
func (s *MemoryStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.timestamp()
	updated := false
	for id, record := range s.records {
		if record.SessionID != sessionID {
			continue
		}
		record.Title = title
		record.UpdatedAt = now
		s.records[id] = record
		updated = true
	}
	return updated, nil
}

// HealthCheck 記憶體儲存永遠可用
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// Close 清空紀錄
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.records = make(map[string]ChatRecord)
	s.mu.Unlock()
	return nil
}

// Len 目前紀錄數量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(record ChatRecord) ChatRecord {
	record.Recipes = common.CloneRecipes(record.Recipes)
	return record
}
