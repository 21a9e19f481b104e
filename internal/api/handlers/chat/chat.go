package chat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recipe-analyzer/internal/api/middleware"
	chatStore "recipe-analyzer/internal/core/chat"
	"recipe-analyzer/internal/core/recipe"
	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	// recipes 內的數字保留為 json.Number，交由修復流程轉換
	binding.EnableDecoderUseNumber = true
}

// MaxTitleLength 會話標題上限（字元），與 UpdateTitleRequest 的 max 標籤一致
const MaxTitleLength = 500

// RecipeGenerator 食譜生成流程
type RecipeGenerator interface {
	GenerateAndStore(ctx context.Context, sessionID, ingredients string) recipe.Result
}

// SendRequest 送出食材
type SendRequest struct {
	Ingredients string `json:"ingredients" binding:"required"`
	SessionID   string `json:"session_id" binding:"required"`
}

// SendResponse 生成的食譜
type SendResponse struct {
	Recipes   []common.Recipe `json:"recipes"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// HistoryItem 會話內單筆紀錄
type HistoryItem struct {
	ID          string          `json:"id"`
	Ingredients string          `json:"ingredients"`
	Recipes     []common.Recipe `json:"recipes"`
	Timestamp   time.Time       `json:"timestamp"`
}

// ChatItem 跨會話查詢使用的完整紀錄
type ChatItem struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Title       string          `json:"title"`
	Ingredients string          `json:"ingredients"`
	Recipes     []common.Recipe `json:"recipes"`
	Timestamp   time.Time       `json:"timestamp"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UpdateTitleRequest 更新會話標題
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required,max=500"`
}

// UpdateChatRequest 部分更新單筆紀錄，recipes 會先經過修復
type UpdateChatRequest struct {
	Ingredients *string        `json:"ingredients"`
	Recipes     *[]interface{} `json:"recipes"`
}

// Handler 對話紀錄相關 API
type Handler struct {
	generator RecipeGenerator
	store     chatStore.Store
}

// NewHandler 創建新的處理程序
func NewHandler(generator RecipeGenerator, store chatStore.Store) *Handler {
	return &Handler{
		generator: generator,
		store:     store,
	}
}

// Register 註冊 /api/chat 路由；send 額外套用 sendMiddleware
func (h *Handler) Register(group *gin.RouterGroup, sendMiddleware ...gin.HandlerFunc) {
	group.POST("/send", append(sendMiddleware, h.Send)...)
	group.GET("/sessions", h.Sessions)
	group.GET("/history/:session_id", h.History)
	group.DELETE("/session/:session_id", h.DeleteSession)
	group.PUT("/session/:session_id/title", h.UpdateSessionTitle)
	group.GET("/recent", h.Recent)
	group.GET("/messages/:chat_id", h.GetChat)
	group.PUT("/messages/:chat_id", h.UpdateChat)
	group.DELETE("/messages/:chat_id", h.DeleteChat)
}

// Send 依食材生成食譜並保存
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if strings.TrimSpace(req.Ingredients) == "" {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Ingredients cannot be empty"))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Session ID cannot be empty"))
		return
	}

	common.LogInfo("開始處理食譜生成請求",
		zap.String("request_id", requestid.Get(c)),
		zap.String("session_id", req.SessionID),
	)

	result := h.generator.GenerateAndStore(c.Request.Context(), req.SessionID, req.Ingredients)
	if len(result.Recipes) == 0 {
		abortWithError(c, common.ErrGenerationFailed)
		return
	}
	if result.ChatID == "" {
		common.LogWarn("對話紀錄未保存", zap.String("session_id", req.SessionID))
	}

	c.JSON(http.StatusOK, SendResponse{
		Recipes:   result.Recipes,
		SessionID: req.SessionID,
		Timestamp: time.Now(),
	})
}

// Sessions 列出所有會話
func (h *Handler) Sessions(c *gin.Context) {
	sessions, err := h.store.GetAllSessions(c.Request.Context())
	if err != nil {
		storeFailure(c, err, "Failed to retrieve sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// History 取得單一會話的紀錄，新到舊
func (h *Handler) History(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	records, err := h.store.GetSessionChats(c.Request.Context(), sessionID)
	if err != nil {
		storeFailure(c, err, "Failed to retrieve chat history")
		return
	}

	history := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		history = append(history, HistoryItem{
			ID:          r.ID,
			Ingredients: r.Ingredients,
			Recipes:     recipesOrEmpty(r.Recipes),
			Timestamp:   r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// DeleteSession 刪除會話內所有紀錄
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	records, err := h.store.GetSessionChats(ctx, sessionID)
	if err != nil {
		storeFailure(c, err, "Failed to delete session")
		return
	}
	if len(records) == 0 {
		abortWithError(c, common.ErrNotFound.WithMessage("Session not found"))
		return
	}

	if _, err := h.store.DeleteSessionChats(ctx, sessionID); err != nil {
		storeFailure(c, err, "Failed to delete session")
		return
	}

	common.LogInfo("會話已刪除",
		zap.String("session_id", sessionID),
		zap.Int("records", len(records)),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

// UpdateSessionTitle 更新會話內所有紀錄的標題
func (h *Handler) UpdateSessionTitle(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}

	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Title cannot be empty"))
		return
	}

	updated, err := h.store.UpdateSessionTitle(c.Request.Context(), sessionID, req.Title)
	if err != nil {
		storeFailure(c, err, "Failed to update session title")
		return
	}
	if !updated {
		abortWithError(c, common.ErrNotFound.WithMessage("Session not found"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session title updated successfully",
		"title":   req.Title,
	})
}

// Recent 最近的紀錄（跨會話）
func (h *Handler) Recent(c *gin.Context) {
	limit := chatStore.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, common.ErrInvalidRequest.WithMessage("limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := h.store.GetRecentChats(c.Request.Context(), limit)
	if err != nil {
		storeFailure(c, err, "Failed to retrieve recent chats")
		return
	}

	chats := make([]ChatItem, 0, len(records))
	for _, r := range records {
		chats = append(chats, toChatItem(r))
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat 取得單筆紀錄
func (h *Handler) GetChat(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	record, err := h.store.GetChatByID(c.Request.Context(), chatID)
	if err != nil {
		storeFailure(c, err, "Failed to retrieve chat")
		return
	}
	c.JSON(http.StatusOK, toChatItem(*record))
}

// UpdateChat 部分更新單筆紀錄
func (h *Handler) UpdateChat(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	var req UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var update chatStore.ChatUpdate
	if req.Ingredients != nil {
		if strings.TrimSpace(*req.Ingredients) == "" {
			abortWithError(c, common.ErrInvalidRequest.WithMessage("Ingredients cannot be empty"))
			return
		}
		update.Ingredients = req.Ingredients
	}
	if req.Recipes != nil {
		recipes := recipe.RepairItems(*req.Recipes)
		if len(recipes) == 0 {
			abortWithError(c, common.ErrInvalidRequest.WithMessage("No valid recipes provided"))
			return
		}
		update.Recipes = &recipes
	}
	if update.Empty() {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Nothing to update"))
		return
	}

	ctx := c.Request.Context()
	updated, err := h.store.UpdateChat(ctx, chatID, update)
	if err != nil {
		storeFailure(c, err, "Failed to update chat")
		return
	}
	if !updated {
		abortWithError(c, common.ErrNotFound.WithMessage("Chat not found"))
		return
	}

	record, err := h.store.GetChatByID(ctx, chatID)
	if err != nil {
		storeFailure(c, err, "Failed to retrieve chat")
		return
	}
	c.JSON(http.StatusOK, toChatItem(*record))
}

// DeleteChat 刪除單筆紀錄
func (h *Handler) DeleteChat(c *gin.Context) {
	chatID, ok := chatParam(c)
	if !ok {
		return
	}

	deleted, err := h.store.DeleteChat(c.Request.Context(), chatID)
	if err != nil {
		storeFailure(c, err, "Failed to delete chat")
		return
	}
	if !deleted {
		abortWithError(c, common.ErrNotFound.WithMessage("Chat not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

// fieldMessages 驗證失敗時對外的訊息，key 為 欄位.規則
var fieldMessages = map[string]string{
	"Ingredients.required": "Ingredients cannot be empty",
	"SessionID.required":   "Session ID cannot be empty",
	"Title.required":       "Title cannot be empty",
	"Title.max":            "Title must be at most 500 characters",
}

// bindError 將綁定錯誤轉為錯誤回應
func bindError(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		abortWithError(c, common.ErrPayloadTooLarge)
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
			abortWithError(c, common.ErrInvalidRequest.WithMessage(msg))
			return
		}
	}

	common.LogWarn("請求格式無效",
		zap.Error(err),
		zap.String("request_id", requestid.Get(c)),
	)
	abortWithError(c, common.ErrInvalidRequest.WithMessage("Invalid request format"))
}

func sessionParam(c *gin.Context) (string, bool) {
	sessionID := c.Param("session_id")
	if strings.TrimSpace(sessionID) == "" {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Session ID cannot be empty"))
		return "", false
	}
	return sessionID, true
}

func chatParam(c *gin.Context) (string, bool) {
	chatID := c.Param("chat_id")
	if strings.TrimSpace(chatID) == "" {
		abortWithError(c, common.ErrInvalidRequest.WithMessage("Chat ID cannot be empty"))
		return "", false
	}
	return chatID, true
}

// storeFailure 找不到時回傳 404，其餘錯誤記錄後回傳 500
func storeFailure(c *gin.Context, err error, detail string) {
	if errors.Is(err, chatStore.ErrChatNotFound) {
		abortWithError(c, common.ErrNotFound.WithMessage("Chat not found"))
		return
	}

	common.LogError(detail,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestid.Get(c)),
	)
	abortWithError(c, common.ErrInternalError.WithMessage(detail))
}

func abortWithError(c *gin.Context, err *common.CustomError) {
	c.AbortWithStatusJSON(err.Status, err.Response())
}

func toChatItem(r chatStore.ChatRecord) ChatItem {
	return ChatItem{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Title:       r.Title,
		Ingredients: r.Ingredients,
		Recipes:     recipesOrEmpty(r.Recipes),
		Timestamp:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func recipesOrEmpty(recipes []common.Recipe) []common.Recipe {
	if recipes == nil {
		return []common.Recipe{}
	}
	return recipes
}
