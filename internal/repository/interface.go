package repository

import "github.com/fyerfyer/math-tutor/internal/models"

// DocumentRepository 课程材料仓储接口
// 负责材料元数据和分块处理状态的存储与检索
type DocumentRepository interface {
	// Create 创建材料记录
	Create(doc *models.Document) error

	// Update 更新材料记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取材料
	GetByID(id string) (*models.Document, error)

	// List 列出材料列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除材料及其分块记录
	Delete(id string) error

	// UpdateStatus 更新材料处理状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新材料处理进度
	UpdateProgress(id string, progress int) error

	// SaveChunks 批量保存材料分块记录
	SaveChunks(chunks []*models.DocumentChunk) error

	// GetChunks 获取材料的所有分块记录
	GetChunks(docID string) ([]*models.DocumentChunk, error)

	// GetPendingChunks 获取材料中尚未写入向量库的分块记录
	GetPendingChunks(docID string) ([]*models.DocumentChunk, error)

	// MarkChunkStored 标记分块已写入向量库
	MarkChunkStored(docID string, chunkID string) error

	// MarkChunkFailed 标记分块写入失败并记录原因
	MarkChunkFailed(docID string, chunkID string, reason string) error

	// CountChunks 统计材料的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除材料的所有分块记录
	DeleteChunks(docID string) error
}

// ChatRepository 辅导会话仓储接口
// 负责会话和消息的存储与检索
type ChatRepository interface {
	// CreateSession 创建会话
	CreateSession(session *models.ChatSession) error

	// GetSession 根据ID获取会话
	GetSession(id string) (*models.ChatSession, error)

	// ListSessions 列出会话，支持分页
	ListSessions(offset, limit int) ([]*models.ChatSession, int64, error)

	// UpdateSession 更新会话信息
	UpdateSession(session *models.ChatSession) error

	// DeleteSession 删除会话及其消息
	DeleteSession(id string) error

	// SaveMessage 保存一条消息
	SaveMessage(message *models.ChatMessage) error

	// GetMessages 获取会话的所有消息，按时间升序
	GetMessages(sessionID string) ([]*models.ChatMessage, error)

	// GetRecentMessages 获取会话最近的n条消息，按时间升序
	GetRecentMessages(sessionID string, n int) ([]*models.ChatMessage, error)

	// ClearMessages 清空会话的所有消息
	ClearMessages(sessionID string) error
}
