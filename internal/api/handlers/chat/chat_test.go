package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"recipe-analyzer/internal/api/middleware"
	chatStore "recipe-analyzer/internal/core/chat"
	"recipe-analyzer/internal/core/recipe"
	"recipe-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	store   chatStore.Store
	recipes []common.Recipe
}

func (g *fakeGenerator) GenerateAndStore(ctx context.Context, sessionID, ingredients string) recipe.Result {
	result := recipe.Result{Recipes: g.recipes}
	if g.store != nil && len(g.recipes) > 0 {
		id, err := g.store.Save(ctx, sessionID, ingredients, g.recipes, "")
		if err == nil {
			result.ChatID = id
		}
	}
	return result
}

// brokenStore 所有讀取都失敗
type brokenStore struct {
	*chatStore.MemoryStore
}

func (brokenStore) GetAllSessions(context.Context) ([]chatStore.SessionSummary, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) GetSessionChats(context.Context, string) ([]chatStore.ChatRecord, error) {
	return nil, errors.New("connection refused")
}

func sampleRecipes() []common.Recipe {
	return recipe.RepairItems([]interface{}{map[string]interface{}{"name": "Fried Rice"}})
}

func setup(t *testing.T) (*gin.Engine, *chatStore.MemoryStore) {
	t.Helper()
	store := chatStore.NewMemoryStore()
	return newRouter(NewHandler(&fakeGenerator{store: store, recipes: sampleRecipes()}, store)), store
}

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.Register(r.Group("/api/chat"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestSend(t *testing.T) {
	r, store := setup(t)

	w := do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"rice, egg","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SendResponse
	decode(t, w, &resp)
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.Recipes, 1)
	assert.Equal(t, "Fried Rice", resp.Recipes[0].Name)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, 1, store.Len())
}

func TestSendValidation(t *testing.T) {
	r, store := setup(t)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"blank ingredients", `{"ingredients":"   ","session_id":"s1"}`, "Ingredients cannot be empty"},
		{"missing ingredients", `{"session_id":"s1"}`, "Ingredients cannot be empty"},
		{"missing session", `{"ingredients":"egg"}`, "Session ID cannot be empty"},
		{"empty session", `{"ingredients":"egg","session_id":""}`, "Session ID cannot be empty"},
		{"blank session", `{"ingredients":"egg","session_id":"  "}`, "Session ID cannot be empty"},
		{"wrong type", `{"ingredients":["egg"],"session_id":"s1"}`, "Invalid request format"},
		{"malformed json", `{"ingredients":`, "Invalid request format"},
		{"empty body", ``, "Invalid request format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/chat/send", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp common.ErrorResponse
			decode(t, w, &resp)
			assert.Equal(t, tt.detail, resp.Detail)
			assert.Equal(t, common.ErrCodeInvalidRequest, resp.ErrorCode)
		})
	}
	assert.Zero(t, store.Len())
}

func TestSendNoRecipes(t *testing.T) {
	r := newRouter(NewHandler(&fakeGenerator{}, chatStore.NewMemoryStore()))

	w := do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg","session_id":"s1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp common.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, common.ErrCodeGenerationFailed, resp.ErrorCode)
}

func TestSessionsAndHistory(t *testing.T) {
	r, _ := setup(t)

	w := do(r, http.MethodGet, "/api/chat/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg","session_id":"s1"}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"ham","session_id":"s1"}`).Code)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"leek","session_id":"s2"}`).Code)

	var sessions struct {
		Sessions []map[string]interface{} `json:"sessions"`
	}
	decode(t, do(r, http.MethodGet, "/api/chat/sessions", ""), &sessions)
	require.Len(t, sessions.Sessions, 2)
	for _, s := range sessions.Sessions {
		assert.Contains(t, s, "id")
		assert.Equal(t, chatStore.DefaultTitle, s["name"])
		assert.Contains(t, s, "createdAt")
	}

	var history struct {
		History []HistoryItem `json:"history"`
	}
	w = do(r, http.MethodGet, "/api/chat/history/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &history)
	require.Len(t, history.History, 2)
	for _, item := range history.History {
		assert.NotEmpty(t, item.ID)
		assert.Len(t, item.Recipes, 1)
	}

	w = do(r, http.MethodGet, "/api/chat/history/unknown", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"history":[]}`, w.Body.String())
}

func TestHistoryBlankSession(t *testing.T) {
	r, _ := setup(t)

	w := do(r, http.MethodGet, "/api/chat/history/%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSession(t *testing.T) {
	r, store := setup(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg","session_id":"s1"}`).Code)

	w := do(r, http.MethodDelete, "/api/chat/session/s1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Session deleted successfully"}`, w.Body.String())
	assert.Zero(t, store.Len())

	w = do(r, http.MethodDelete, "/api/chat/session/s1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp common.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "Session not found", resp.Detail)
}

func TestUpdateSessionTitle(t *testing.T) {
	r, store := setup(t)
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg","session_id":"s1"}`).Code)

	w := do(r, http.MethodPut, "/api/chat/session/s1/title", `{"title":"Breakfast ideas"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Session title updated successfully","title":"Breakfast ideas"}`, w.Body.String())

	sessions, err := store.GetAllSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Breakfast ideas", sessions[0].Name)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		detail string
	}{
		{"missing title", "/api/chat/session/s1/title", `{}`, http.StatusBadRequest, "Title cannot be empty"},
		{"empty title", "/api/chat/session/s1/title", `{"title":""}`, http.StatusBadRequest, "Title cannot be empty"},
		{"blank title", "/api/chat/session/s1/title", `{"title":" "}`, http.StatusBadRequest, "Title cannot be empty"},
		{"title too long", "/api/chat/session/s1/title", `{"title":"` + strings.Repeat("é", MaxTitleLength+1) + `"}`, http.StatusBadRequest, "Title must be at most 500 characters"},
		{"max length title", "/api/chat/session/s1/title", `{"title":"` + strings.Repeat("é", MaxTitleLength) + `"}`, http.StatusOK, ""},
		{"unknown session", "/api/chat/session/nope/title", `{"title":"x"}`, http.StatusNotFound, "Session not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			if tt.detail != "" {
				var resp common.ErrorResponse
				decode(t, w, &resp)
				assert.Equal(t, tt.detail, resp.Detail)
			}
		})
	}
}

func TestRecentChats(t *testing.T) {
	r, _ := setup(t)
	for _, s := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg `+s+`","session_id":"`+s+`"}`).Code)
	}

	var resp struct {
		Chats []ChatItem `json:"chats"`
	}
	w := do(r, http.MethodGet, "/api/chat/recent?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Len(t, resp.Chats, 2)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/chat/recent?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/chat/recent?limit=0", "").Code)
}

func TestSingleChatLifecycle(t *testing.T) {
	r, store := setup(t)
	ctx := context.Background()
	id, err := store.Save(ctx, "s1", "egg", sampleRecipes(), "")
	require.NoError(t, err)

	var item ChatItem
	w := do(r, http.MethodGet, "/api/chat/messages/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &item)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "s1", item.SessionID)

	w = do(r, http.MethodPut, "/api/chat/messages/"+id,
		`{"recipes":[{"name":"Omelette","nutrition":{"calories":"250"}},{"name":{"bad":true}}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &item)
	require.Len(t, item.Recipes, 1)
	assert.Equal(t, "Omelette", item.Recipes[0].Name)
	assert.Equal(t, 250, item.Recipes[0].Nutrition.Calories)
	assert.Equal(t, recipe.DefaultIngredient, item.Recipes[0].Ingredients[0])
	assert.Equal(t, "egg", item.Ingredients)

	w = do(r, http.MethodPut, "/api/chat/messages/"+id, `{"recipes":[{"name":"Frittata","nutrition":{"calories":310,"protein":"20g","carbs":"5g"}}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &item)
	require.Len(t, item.Recipes, 1)
	assert.Equal(t, 310, item.Recipes[0].Nutrition.Calories)

	w = do(r, http.MethodPut, "/api/chat/messages/"+id, `{"recipes":[{"name":"Omelette","nutrition":{"calories":"250"}}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/api/chat/messages/"+id, `{"ingredients":"egg, cheese"}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &item)
	assert.Equal(t, "egg, cheese", item.Ingredients)
	assert.Equal(t, "Omelette", item.Recipes[0].Name)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/chat/messages/"+id, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/chat/messages/"+id, `{"recipes":[42]}`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/api/chat/messages/missing", `{"ingredients":"x"}`).Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/chat/messages/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/chat/messages/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/chat/messages/"+id, "").Code)
}

func TestSendBodyTooLarge(t *testing.T) {
	store := chatStore.NewMemoryStore()
	r := gin.New()
	group := r.Group("/api/chat", middleware.BodySizeLimit(32))
	NewHandler(&fakeGenerator{store: store, recipes: sampleRecipes()}, store).Register(group)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/send",
		strings.NewReader(`{"ingredients":"`+strings.Repeat("a", 64)+`","session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var resp common.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, common.ErrCodePayloadTooLarge, resp.ErrorCode)
	assert.Zero(t, store.Len())
}

func TestStoreFailureIsGeneric(t *testing.T) {
	store := brokenStore{chatStore.NewMemoryStore()}
	r := newRouter(NewHandler(&fakeGenerator{recipes: sampleRecipes()}, store))

	w := do(r, http.MethodGet, "/api/chat/sessions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp common.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, common.ErrCodeInternalError, resp.ErrorCode)
	assert.Equal(t, "Failed to retrieve sessions", resp.Detail)
	assert.NotContains(t, w.Body.String(), "connection refused")

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodDelete, "/api/chat/session/s1", "").Code)

	w = do(r, http.MethodPost, "/api/chat/send", `{"ingredients":"egg","session_id":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
