package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/math-tutor/internal/database"
	"github.com/fyerfyer/math-tutor/internal/models"
	"gorm.io/gorm"
)

// chatRepository 辅导会话仓储实现
type chatRepository struct {
	db *gorm.DB // 数据库连接
}

// NewChatRepository 创建会话仓储实例
func NewChatRepository() ChatRepository {
	return &chatRepository{
		db: database.MustDB(),
	}
}

// NewChatRepositoryWithDB 使用指定的数据库连接创建会话仓储实例
func NewChatRepositoryWithDB(db *gorm.DB) ChatRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &chatRepository{
		db: db,
	}
}

// CreateSession 创建会话
func (r *chatRepository) CreateSession(session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	return r.db.Create(session).Error
}

// GetSession 根据ID获取会话
func (r *chatRepository) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions 列出会话，支持分页
func (r *chatRepository) ListSessions(offset, limit int) ([]*models.ChatSession, int64, error) {
	var sessions []*models.ChatSession
	var total int64

	if err := r.db.Model(&models.ChatSession{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// UpdateSession 更新会话信息
func (r *chatRepository) UpdateSession(session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	return r.db.Save(session).Error
}

// DeleteSession 删除会话及其消息
func (r *chatRepository) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", id).Delete(&models.ChatSession{}).Error
	})
}

// SaveMessage 保存一条消息
func (r *chatRepository) SaveMessage(message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("message session ID cannot be empty")
	}

	return r.db.Create(message).Error
}

// GetMessages 获取会话的所有消息，按时间升序
func (r *chatRepository) GetMessages(sessionID string) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// GetRecentMessages 获取会话最近的n条消息，按时间升序返回
func (r *chatRepository) GetRecentMessages(sessionID string, n int) ([]*models.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	var messages []*models.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// 反转为时间升序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ClearMessages 清空会话的所有消息
func (r *chatRepository) ClearMessages(sessionID string) error {
	return r.db.Where("session_id = ?", sessionID).
		Delete(&models.ChatMessage{}).Error
}
