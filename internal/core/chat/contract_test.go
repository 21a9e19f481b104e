package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"recipe-analyzer/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可控制的時間來源
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// storeFactory 為每個子測試建立全新的儲存
type storeFactory func(t *testing.T, opts ...Option) Store

func sampleRecipes(name string) []common.Recipe {
	return []common.Recipe{{
		Name:         name,
		Ingredients:  []string{"chicken", "rice"},
		Instructions: []string{"Cook the rice.", "Grill the chicken."},
		CookingTime:  "40 minutes",
		Difficulty:   common.DifficultyMedium,
		Nutrition:    common.NutritionInfo{Calories: 520, Protein: "38g", Carbs: "60g"},
	}}
}

// runStoreContract 所有後端必須通過的行為測試
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("save then get by id round trips", func(t *testing.T) {
		store := newStore(t)
		recipes := sampleRecipes("Chicken Rice Bowl")

		id, err := store.Save(ctx, "session-1", "chicken, rice", recipes, "")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		record, err := store.GetChatByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, record.ID)
		assert.Equal(t, "session-1", record.SessionID)
		assert.Equal(t, DefaultTitle, record.Title)
		assert.Equal(t, "chicken, rice", record.Ingredients)
		assert.Equal(t, recipes, record.Recipes)
		assert.False(t, record.CreatedAt.IsZero())
		assert.Equal(t, record.CreatedAt, record.UpdatedAt)
	})

	t.Run("save keeps explicit title", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, "session-1", "eggs", sampleRecipes("Omelette"), "Breakfast ideas")
		require.NoError(t, err)

		record, err := store.GetChatByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Breakfast ideas", record.Title)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetChatByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrChatNotFound)
	})

	t.Run("session chats are filtered and newest first", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, WithClock(clock.Now))

		first, err := store.Save(ctx, "session-a", "first", sampleRecipes("A1"), "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		_, err = store.Save(ctx, "session-b", "other", sampleRecipes("B1"), "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		second, err := store.Save(ctx, "session-a", "second", sampleRecipes("A2"), "")
		require.NoError(t, err)

		chats, err := store.GetSessionChats(ctx, "session-a")
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, second, chats[0].ID)
		assert.Equal(t, first, chats[1].ID)
		for _, chat := range chats {
			assert.Equal(t, "session-a", chat.SessionID)
		}

		empty, err := store.GetSessionChats(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("identical timestamps are ordered by id", func(t *testing.T) {
		clock := newFakeClock()
		ids := []string{"id-a", "id-c", "id-b"}
		next := 0
		store := newStore(t, WithClock(clock.Now), WithIDGenerator(func() string {
			id := ids[next]
			next++
			return id
		}))

		for range ids {
			_, err := store.Save(ctx, "same", "x", sampleRecipes("X"), "")
			require.NoError(t, err)
		}

		chats, err := store.GetSessionChats(ctx, "same")
		require.NoError(t, err)
		require.Len(t, chats, 3)
		assert.Equal(t, []string{"id-c", "id-b", "id-a"}, []string{chats[0].ID, chats[1].ID, chats[2].ID})
	})

	t.Run("sessions use title of latest record", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, WithClock(clock.Now))

		_, err := store.Save(ctx, "session-a", "x", sampleRecipes("X"), "Old title")
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = store.Save(ctx, "session-b", "y", sampleRecipes("Y"), "Other")
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = store.Save(ctx, "session-a", "z", sampleRecipes("Z"), "New title")
		require.NoError(t, err)

		sessions, err := store.GetAllSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "session-a", sessions[0].ID)
		assert.Equal(t, "New title", sessions[0].Name)
		assert.Equal(t, clock.Now().UTC(), sessions[0].CreatedAt)
		assert.Equal(t, "session-b", sessions[1].ID)
		assert.Equal(t, "Other", sessions[1].Name)
	})

	t.Run("recent chats honour limit", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, WithClock(clock.Now))

		var last string
		for i := 0; i < 5; i++ {
			id, err := store.Save(ctx, fmt.Sprintf("s-%d", i%2), "x", sampleRecipes("X"), "")
			require.NoError(t, err)
			last = id
			clock.Advance(time.Second)
		}

		recent, err := store.GetRecentChats(ctx, 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, last, recent[0].ID)

		all, err := store.GetRecentChats(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("delete chat reports removal", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, "session-1", "x", sampleRecipes("X"), "")
		require.NoError(t, err)

		deleted, err := store.DeleteChat(ctx, id)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = store.DeleteChat(ctx, id)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = store.GetChatByID(ctx, id)
		assert.ErrorIs(t, err, ErrChatNotFound)
	})

	t.Run("delete session removes only that session", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(ctx, "doomed", "x", sampleRecipes("X"), "")
		require.NoError(t, err)
		_, err = store.Save(ctx, "doomed", "y", sampleRecipes("Y"), "")
		require.NoError(t, err)
		keep, err := store.Save(ctx, "kept", "z", sampleRecipes("Z"), "")
		require.NoError(t, err)

		ok, err := store.DeleteSessionChats(ctx, "doomed")
		require.NoError(t, err)
		assert.True(t, ok)

		chats, err := store.GetSessionChats(ctx, "doomed")
		require.NoError(t, err)
		assert.Empty(t, chats)

		_, err = store.GetChatByID(ctx, keep)
		assert.NoError(t, err)
	})

	t.Run("delete empty session succeeds without changes", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, "kept", "z", sampleRecipes("Z"), "")
		require.NoError(t, err)

		ok, err := store.DeleteSessionChats(ctx, "nobody")
		require.NoError(t, err)
		assert.True(t, ok)

		recent, err := store.GetRecentChats(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, id, recent[0].ID)
	})

	t.Run("update chat applies partial changes", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, WithClock(clock.Now))
		id, err := store.Save(ctx, "session-1", "chicken", sampleRecipes("Old"), "")
		require.NoError(t, err)

		clock.Advance(time.Minute)
		updatedRecipes := sampleRecipes("New")
		ok, err := store.UpdateChat(ctx, id, ChatUpdate{Recipes: &updatedRecipes})
		require.NoError(t, err)
		assert.True(t, ok)

		record, err := store.GetChatByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "chicken", record.Ingredients)
		assert.Equal(t, updatedRecipes, record.Recipes)
		assert.True(t, record.UpdatedAt.After(record.CreatedAt))

		ingredients := "chicken, leek"
		ok, err = store.UpdateChat(ctx, id, ChatUpdate{Ingredients: &ingredients})
		require.NoError(t, err)
		assert.True(t, ok)

		record, err = store.GetChatByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "chicken, leek", record.Ingredients)
		assert.Equal(t, updatedRecipes, record.Recipes)
	})

	t.Run("update chat without fields is a no-op", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, "session-1", "chicken", sampleRecipes("Old"), "")
		require.NoError(t, err)

		ok, err := store.UpdateChat(ctx, id, ChatUpdate{})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update unknown chat returns false", func(t *testing.T) {
		store := newStore(t)
		ingredients := "x"
		ok, err := store.UpdateChat(ctx, "missing", ChatUpdate{Ingredients: &ingredients})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update session title touches every record", func(t *testing.T) {
		store := newStore(t)
		a, err := store.Save(ctx, "session-1", "x", sampleRecipes("X"), "")
		require.NoError(t, err)
		b, err := store.Save(ctx, "session-1", "y", sampleRecipes("Y"), "")
		require.NoError(t, err)
		other, err := store.Save(ctx, "session-2", "z", sampleRecipes("Z"), "")
		require.NoError(t, err)

		ok, err := store.UpdateSessionTitle(ctx, "session-1", "Dinner")
		require.NoError(t, err)
		assert.True(t, ok)

		for _, id := range []string{a, b} {
			record, err := store.GetChatByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Dinner", record.Title)
		}
		record, err := store.GetChatByID(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, DefaultTitle, record.Title)
	})

	t.Run("update title of unknown session mutates nothing", func(t *testing.T) {
		store := newStore(t)
		id, err := store.Save(ctx, "session-1", "x", sampleRecipes("X"), "")
		require.NoError(t, err)

		ok, err := store.UpdateSessionTitle(ctx, "unknown", "Whatever")
		require.NoError(t, err)
		assert.False(t, ok)

		record, err := store.GetChatByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, DefaultTitle, record.Title)
	})

	t.Run("health check passes", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
