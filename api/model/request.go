package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DocumentUploadRequest 课程材料上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // 文件对象
}

// DocumentIDRequest 按ID操作材料的请求
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"` // 材料ID
}

// DocumentListRequest 材料列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status   string `form:"status" json:"status" binding:"omitempty,oneof=uploaded processing completed failed"` // 状态过滤
	FileName string `form:"file_name" json:"file_name" binding:"omitempty"`                                      // 文件名过滤
	FileType string `form:"file_type" json:"file_type" binding:"omitempty"`                                      // 类型过滤
}

// AskRequest 辅导问答请求
type AskRequest struct {
	Question  string `json:"question" binding:"required,notblank"` // 学生问题
	SessionID string `json:"session_id" binding:"omitempty"`       // 会话ID，为空则不携带历史
	TopK      int    `json:"top_k" binding:"omitempty,min=1"`      // 检索片段数量
	MaxTokens int    `json:"max_tokens" binding:"omitempty,min=1"` // 回答的最大token数
}

// SessionCreateRequest 创建会话请求
type SessionCreateRequest struct {
	Title string `json:"title" binding:"omitempty,max=200"` // 会话标题
}

// SessionIDRequest 按ID操作会话的请求
type SessionIDRequest struct {
	ID string `uri:"id" binding:"required"` // 会话ID
}

// ComputeRequest 符号计算请求
type ComputeRequest struct {
	Expression string `json:"expression" binding:"required"`                                                       // 数学表达式
	Operation  string `json:"operation" binding:"required,oneof=simplify solve derivative integral expand factor"` // 计算操作
	Variable   string `json:"variable" binding:"omitempty"`    // 变量名，默认x
	Order      int    `json:"order" binding:"omitempty,min=1"` // 求导阶数
	LowerBound string `json:"lower_bound" binding:"omitempty"` // 定积分下限
	UpperBound string `json:"upper_bound" binding:"omitempty"` // 定积分上限
}

// QuizRequest 练习题生成请求
type QuizRequest struct {
	Topic        string `json:"topic" binding:"required,notblank"`              // 题目主题
	NumQuestions int    `json:"num_questions" binding:"omitempty,min=1,max=10"` // 题目数量
}

// TaskIDRequest 按ID查询任务的请求
type TaskIDRequest struct {
	ID string `uri:"id" binding:"required"` // 任务ID
}
