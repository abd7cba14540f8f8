package repository

import (
	"fmt"
	"testing"

	"github.com/fyerfyer/math-tutor/internal/database"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupChatRepo 创建测试用的会话仓储
func setupChatRepo(t *testing.T) ChatRepository {
	db, err := database.SetupTestDB()
	require.NoError(t, err)
	return NewChatRepositoryWithDB(db)
}

func TestChatSessionCRUD(t *testing.T) {
	repo := setupChatRepo(t)

	session := &models.ChatSession{
		ID:    "sess-1",
		Title: "derivaatat",
	}
	require.NoError(t, repo.CreateSession(session))

	t.Run("get session", func(t *testing.T) {
		got, err := repo.GetSession("sess-1")
		require.NoError(t, err)
		assert.Equal(t, "derivaatat", got.Title)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("session not found", func(t *testing.T) {
		_, err := repo.GetSession("missing")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("update session", func(t *testing.T) {
		session.Title = "integraalit"
		require.NoError(t, repo.UpdateSession(session))

		got, err := repo.GetSession("sess-1")
		require.NoError(t, err)
		assert.Equal(t, "integraalit", got.Title)
	})

	t.Run("list sessions", func(t *testing.T) {
		sessions, total, err := repo.ListSessions(0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, sessions, 1)
	})

	t.Run("delete session removes messages", func(t *testing.T) {
		require.NoError(t, repo.SaveMessage(&models.ChatMessage{
			SessionID: "sess-1",
			Role:      models.RoleUser,
			Content:   "kysymys",
		}))

		require.NoError(t, repo.DeleteSession("sess-1"))

		_, err := repo.GetSession("sess-1")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)

		messages, err := repo.GetMessages("sess-1")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})
}

func TestChatMessages(t *testing.T) {
	repo := setupChatRepo(t)

	require.NoError(t, repo.CreateSession(&models.ChatSession{ID: "sess-msg", Title: "test"}))

	for i := 0; i < 6; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		require.NoError(t, repo.SaveMessage(&models.ChatMessage{
			SessionID: "sess-msg",
			Role:      role,
			Content:   fmt.Sprintf("message %d", i),
		}))
	}

	t.Run("messages in order", func(t *testing.T) {
		messages, err := repo.GetMessages("sess-msg")
		require.NoError(t, err)
		require.Len(t, messages, 6)
		for i, msg := range messages {
			assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content)
		}
	})

	t.Run("recent messages window", func(t *testing.T) {
		messages, err := repo.GetRecentMessages("sess-msg", 4)
		require.NoError(t, err)
		require.Len(t, messages, 4)

		// 返回最后4条，按时间升序
		assert.Equal(t, "message 2", messages[0].Content)
		assert.Equal(t, "message 5", messages[3].Content)
	})

	t.Run("recent with zero window", func(t *testing.T) {
		messages, err := repo.GetRecentMessages("sess-msg", 0)
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("clear messages", func(t *testing.T) {
		require.NoError(t, repo.ClearMessages("sess-msg"))

		messages, err := repo.GetMessages("sess-msg")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("message requires session id", func(t *testing.T) {
		assert.Error(t, repo.SaveMessage(&models.ChatMessage{Content: "orphan"}))
	})
}
