package recipe

import (
	"context"
	"strings"

	"recipe-analyzer/internal/core/ai/service"
	"recipe-analyzer/internal/core/chat"
	"recipe-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

// TextGenerator 外部文字生成端點
type TextGenerator interface {
	ProcessRequest(ctx context.Context, prompt string) (*service.Response, error)
}

// Result 生成結果，ChatID 為空表示未能保存
type Result struct {
	Recipes []common.Recipe
	ChatID  string
}

// Service 食譜生成流程：模型呼叫、正規化、保存
type Service struct {
	generator TextGenerator
	store     chat.Store
}

// NewService 創建新的食譜服務
func NewService(generator TextGenerator, store chat.Store) *Service {
	return &Service{
		generator: generator,
		store:     store,
	}
}

// GenerateAndStore 依食材生成食譜並保存，任何內部失敗都會降級處理
func (s *Service) GenerateAndStore(ctx context.Context, sessionID, ingredients string) Result {
	text := s.generateText(ctx, ingredients)

	recipes := Normalize(text, ingredients)
	if len(recipes) == 0 {
		recipes = DefaultRecipes(ingredients)
	}

	result := Result{Recipes: recipes}
	if s.store == nil {
		return result
	}

	// 保存失敗不影響回傳結果
	chatID, err := s.store.Save(ctx, sessionID, ingredients, recipes, "")
	if err != nil {
		common.LogError("保存對話紀錄失敗",
			zap.String("session_id", sessionID),
			zap.String("store", s.store.Name()),
			zap.Error(err),
		)
		return result
	}

	result.ChatID = chatID
	common.LogInfo("對話紀錄已保存",
		zap.String("session_id", sessionID),
		zap.String("chat_id", chatID),
		zap.Int("recipes", len(recipes)),
	)
	return result
}

// generateText 呼叫模型；失敗時改用簡單的模板句子
func (s *Service) generateText(ctx context.Context, ingredients string) string {
	if s.generator == nil {
		return ProviderFailureText(ingredients)
	}

	resp, err := s.generator.ProcessRequest(ctx, BuildPrompt(ingredients))
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		common.LogWarn("模型呼叫失敗，使用備援內容", zap.Error(err))
		return ProviderFailureText(ingredients)
	}

	common.LogDebug("AI 回應內容",
		zap.Int("ai_response_length", len(resp.Content)),
		zap.Bool("cache_hit", resp.CacheHit),
	)
	return resp.Content
}
