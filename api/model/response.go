package model

import (
	"time"

	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 材料上传响应
type DocumentUploadResponse struct {
	DocumentID string `json:"document_id"` // 材料ID
	FileName   string `json:"file_name"`   // 文件名
	Status     string `json:"status"`      // 处理状态
}

// DocumentInfo 材料信息
type DocumentInfo struct {
	DocumentID   string     `json:"document_id"`             // 材料ID
	FileName     string     `json:"file_name"`               // 文件名
	FileType     string     `json:"file_type"`               // 文件类型
	FileSize     int64      `json:"file_size"`               // 文件大小（字节）
	Status       string     `json:"status"`                  // 处理状态
	Progress     int        `json:"progress"`                // 处理进度（0-100）
	ChunkCount   int        `json:"chunk_count"`             // 分块数量
	FailedChunks []string   `json:"failed_chunks,omitempty"` // 入库失败的分块ID
	Error        string     `json:"error,omitempty"`         // 错误信息
	UploadedAt   time.Time  `json:"uploaded_at"`             // 上传时间
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`  // 处理完成时间
}

// ConvertToDocumentInfo 将材料模型转换为响应信息
func ConvertToDocumentInfo(doc *models.Document) DocumentInfo {
	failedChunks, _ := doc.GetFailedChunks()

	return DocumentInfo{
		DocumentID:   doc.ID,
		FileName:     doc.FileName,
		FileType:     doc.FileType,
		FileSize:     doc.FileSize,
		Status:       string(doc.Status),
		Progress:     doc.Progress,
		ChunkCount:   doc.ChunkCount,
		FailedChunks: failedChunks,
		Error:        doc.Error,
		UploadedAt:   doc.UploadedAt,
		ProcessedAt:  doc.ProcessedAt,
	}
}

// DocumentListResponse 材料列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 材料列表
}

// DocumentDeleteResponse 材料删除响应
type DocumentDeleteResponse struct {
	Success    bool   `json:"success"`     // 是否成功
	DocumentID string `json:"document_id"` // 材料ID
}

// IngestResultResponse 入库/重试结果响应
type IngestResultResponse struct {
	DocumentID   string   `json:"document_id"`             // 材料ID
	ChunkCount   int      `json:"chunk_count"`             // 分块总数
	StoredCount  int      `json:"stored_count"`            // 成功写入的分块数
	FailedChunks []string `json:"failed_chunks,omitempty"` // 失败的分块ID
	Async        bool     `json:"async"`                   // 是否转入异步处理
}

// KnowledgeStatsResponse 知识库统计响应
type KnowledgeStatsResponse struct {
	TotalChunks    int    `json:"total_chunks"`    // 知识库中的分块总数
	CollectionName string `json:"collection_name"` // 集合名称
	DocumentCount  int64  `json:"document_count"`  // 材料总数
}

// SourceInfo 回答引用的材料片段
type SourceInfo struct {
	ChunkID  string  `json:"chunk_id"` // 分块ID
	Source   string  `json:"source"`   // 来源文件名
	Position int     `json:"position"` // 分块位置
	Text     string  `json:"text"`     // 片段文本
	Score    float32 `json:"score"`    // 相似度得分
}

// AskResponse 辅导问答响应
type AskResponse struct {
	Question  string       `json:"question"`             // 学生问题
	Answer    string       `json:"answer"`               // 辅导回答
	Sources   []SourceInfo `json:"sources"`              // 引用的材料片段
	SessionID string       `json:"session_id,omitempty"` // 会话ID
	Model     string       `json:"model"`                // 使用的模型
	Cached    bool         `json:"cached"`               // 是否来自缓存
}

// ConvertToSourceInfo 将检索结果转换为来源信息
func ConvertToSourceInfo(chunks []services.RetrievedChunk) []SourceInfo {
	if len(chunks) == 0 {
		return []SourceInfo{}
	}

	sources := make([]SourceInfo, len(chunks))
	for i, chunk := range chunks {
		sources[i] = SourceInfo{
			ChunkID:  chunk.ChunkID,
			Source:   chunk.Source,
			Position: chunk.Position,
			Text:     chunk.Text,
			Score:    chunk.Score,
		}
	}
	return sources
}

// SessionInfo 会话信息
type SessionInfo struct {
	SessionID string    `json:"session_id"` // 会话ID
	Title     string    `json:"title"`      // 会话标题
	CreatedAt time.Time `json:"created_at"` // 创建时间
	UpdatedAt time.Time `json:"updated_at"` // 更新时间
}

// ConvertToSessionInfo 将会话模型转换为响应信息
func ConvertToSessionInfo(session *models.ChatSession) SessionInfo {
	return SessionInfo{
		SessionID: session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Total    int64         `json:"total"`     // 总数量
	Page     int           `json:"page"`      // 当前页码
	PageSize int           `json:"page_size"` // 每页大小
	Sessions []SessionInfo `json:"sessions"`  // 会话列表
}

// MessageInfo 会话消息信息
type MessageInfo struct {
	Role      string    `json:"role"`              // 消息角色
	Content   string    `json:"content"`           // 消息内容
	Sources   string    `json:"sources,omitempty"` // 引用来源（JSON）
	CreatedAt time.Time `json:"created_at"`        // 创建时间
}

// SessionMessagesResponse 会话历史响应
type SessionMessagesResponse struct {
	SessionID string        `json:"session_id"` // 会话ID
	Messages  []MessageInfo `json:"messages"`   // 消息列表
}

// ConvertToMessageInfo 将消息模型转换为响应信息
func ConvertToMessageInfo(messages []*models.ChatMessage) []MessageInfo {
	infos := make([]MessageInfo, len(messages))
	for i, msg := range messages {
		infos[i] = MessageInfo{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Sources:   string(msg.Sources),
			CreatedAt: msg.CreatedAt,
		}
	}
	return infos
}

// QuizResponse 练习题生成响应
type QuizResponse struct {
	Topic        string `json:"topic"`         // 题目主题
	NumQuestions int    `json:"num_questions"` // 题目数量
	Markdown     string `json:"markdown"`      // Markdown格式内容
	HTML         string `json:"html"`          // 渲染后的HTML
}

// TaskInfoResponse 任务状态响应
type TaskInfoResponse struct {
	TaskID      string     `json:"task_id"`                // 任务ID
	Type        string     `json:"type"`                   // 任务类型
	DocumentID  string     `json:"document_id"`            // 关联的材料ID
	Status      string     `json:"status"`                 // 任务状态
	Progress    float64    `json:"progress"`               // 处理进度
	Error       string     `json:"error,omitempty"`        // 错误信息
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始处理时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间
}
