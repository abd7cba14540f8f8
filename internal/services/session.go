package services

import (
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HistoryWindow 构建提示词时携带的最近消息条数
const HistoryWindow = 4

// SessionManager 辅导会话管理器
// 负责会话生命周期和对话历史，存储后端通过仓储注入
type SessionManager struct {
	repo   repository.ChatRepository // 会话仓储
	logger *logrus.Logger            // 日志记录器
}

// NewSessionManager 创建会话管理器
func NewSessionManager(repo repository.ChatRepository, logger *logrus.Logger) *SessionManager {
	if logger == nil {
		logger = logrus.New()
	}

	return &SessionManager{
		repo:   repo,
		logger: logger,
	}
}

// CreateSession 创建新的辅导会话
func (m *SessionManager) CreateSession(title string) (*models.ChatSession, error) {
	if title == "" {
		title = "New tutoring session"
	}

	session := &models.ChatSession{
		ID:    uuid.New().String(),
		Title: title,
	}

	if err := m.repo.CreateSession(session); err != nil {
		return nil, err
	}

	m.logger.WithField("session_id", session.ID).Info("Tutoring session created")
	return session, nil
}

// GetSession 获取会话信息
func (m *SessionManager) GetSession(sessionID string) (*models.ChatSession, error) {
	return m.repo.GetSession(sessionID)
}

// ListSessions 列出会话
func (m *SessionManager) ListSessions(offset, limit int) ([]*models.ChatSession, int64, error) {
	return m.repo.ListSessions(offset, limit)
}

// DeleteSession 删除会话及其历史
func (m *SessionManager) DeleteSession(sessionID string) error {
	return m.repo.DeleteSession(sessionID)
}

// AppendExchange 保存一轮问答到会话历史
// sources记录回答引用的课程材料片段
func (m *SessionManager) AppendExchange(sessionID string, question string, answer string, sources []models.Source) error {
	if err := m.repo.SaveMessage(&models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   question,
	}); err != nil {
		return err
	}

	assistantMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   answer,
	}

	if err := assistantMsg.SetSources(sources); err != nil {
		m.logger.WithError(err).Warn("Failed to encode answer sources")
	}

	return m.repo.SaveMessage(assistantMsg)
}

// RecentHistory 获取会话最近的消息，用于构建提示词
// 按时间升序返回至多HistoryWindow条
func (m *SessionManager) RecentHistory(sessionID string) ([]*models.ChatMessage, error) {
	return m.repo.GetRecentMessages(sessionID, HistoryWindow)
}

// GetMessages 获取会话的完整历史
func (m *SessionManager) GetMessages(sessionID string) ([]*models.ChatMessage, error) {
	return m.repo.GetMessages(sessionID)
}

// ClearHistory 清空会话历史，会话本身保留
func (m *SessionManager) ClearHistory(sessionID string) error {
	if _, err := m.repo.GetSession(sessionID); err != nil {
		return err
	}

	m.logger.WithField("session_id", sessionID).Info("Clearing session history")
	return m.repo.ClearMessages(sessionID)
}
