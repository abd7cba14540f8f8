package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole 会话消息的角色
type MessageRole string

const (
	// RoleUser 学生提出的问题
	RoleUser MessageRole = "user"
	// RoleAssistant 辅导助手的回答
	RoleAssistant MessageRole = "assistant"
	// RoleSystem 系统提示词
	RoleSystem MessageRole = "system"
)

// ChatSession 辅导会话
// 一个会话对应一名学生的一段连续辅导对话
type ChatSession struct {
	ID        string    `gorm:"primaryKey"` // 不透明的uuid
	Title     string    `gorm:"not null"`   // 会话标题
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

func (s *ChatSession) BeforeUpdate(tx *gorm.DB) error {
	s.UpdatedAt = time.Now()
	return nil
}

func (ChatSession) TableName() string {
	return "tutor_sessions"
}

// ChatMessage 会话中的单条消息
// 助手消息附带引用的课程材料片段
type ChatMessage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"not null;index"`
	Role      MessageRole    `gorm:"not null;type:varchar(20)"`
	Content   string         `gorm:"type:text;not null"`
	Sources   datatypes.JSON `gorm:"type:json"` // []Source的JSON编码
	CreatedAt time.Time      `gorm:"not null"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return nil
}

func (ChatMessage) TableName() string {
	return "tutor_messages"
}

// SetSources 将引用片段编码进消息
func (m *ChatMessage) SetSources(sources []Source) error {
	if len(sources) == 0 {
		m.Sources = nil
		return nil
	}

	data, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	m.Sources = data
	return nil
}

// ParseSources 解码消息引用的片段，无引用时返回nil
func (m *ChatMessage) ParseSources() ([]Source, error) {
	if len(m.Sources) == 0 {
		return nil, nil
	}

	var sources []Source
	if err := json.Unmarshal(m.Sources, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// Source 回答引用的课程材料片段
type Source struct {
	ChunkID  string  `json:"chunk_id"`        // 分块ID
	Source   string  `json:"source"`          // 来源文件名
	Position int     `json:"position"`        // 分块在文件内的序号
	Text     string  `json:"text"`            // 引用的文本
	Score    float32 `json:"score,omitempty"` // 相似度得分
}
