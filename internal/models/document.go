package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 课程资料处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 资料已上传，等待入库
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 资料入库处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 资料入库完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 资料入库失败
	DocStatusFailed DocumentStatus = "failed"
)

// Document 课程资料元数据模型
// 记录上传文件的入库状态，支持取消后按文档粒度续传
type Document struct {
	ID           string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName     string         `gorm:"not null"`           // 文件名（chunk的source字段来源）
	FileType     string         `gorm:"not null"`           // 文件类型扩展名
	FilePath     string         `gorm:"not null"`           // 文件路径
	FileSize     int64          `gorm:"not null"`           // 文件大小（字节）
	Status       DocumentStatus `gorm:"not null;index"`     // 处理状态
	UploadedAt   time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt  *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt    time.Time      `gorm:"not null;index"`     // 更新时间
	Progress     int            `gorm:"not null;default:0"` // 处理进度（0-100）
	Error        string         `gorm:"type:text"`          // 错误信息
	ChunkCount   int            `gorm:"not null;default:0"` // 切分出的chunk数量
	FailedChunks datatypes.JSON `gorm:"type:json"`          // 入库失败的chunk id列表
	Metadata     datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	RetryCount   int            `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// SetFailedChunks 记录入库失败的chunk id列表
func (d *Document) SetFailedChunks(chunkIDs []string) error {
	data, err := json.Marshal(chunkIDs)
	if err != nil {
		return err
	}
	d.FailedChunks = datatypes.JSON(data)
	return nil
}

// GetFailedChunks 返回入库失败的chunk id列表
func (d *Document) GetFailedChunks() ([]string, error) {
	if len(d.FailedChunks) == 0 {
		return nil, nil
	}
	var chunkIDs []string
	if err := json.Unmarshal(d.FailedChunks, &chunkIDs); err != nil {
		return nil, err
	}
	return chunkIDs, nil
}

// DocumentChunk 文档chunk数据模型
// 在关系库中跟踪每个chunk的入库结果，失败的chunk可单独重试
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string    `gorm:"not null;index"`           // 所属文档ID
	ChunkID    string    `gorm:"not null;uniqueIndex"`     // chunk唯一ID：{source}_chunk_{index}
	Position   int       `gorm:"not null"`                 // 序号，从0开始单调递增
	Text       string    `gorm:"type:text;not null"`       // chunk文本内容
	TokenCount int       `gorm:"not null"`                 // 分词器统计的token数
	Stored     bool      `gorm:"not null;default:false"`   // 是否已写入向量库
	Error      string    `gorm:"type:text"`                // 入库失败原因
	CreatedAt  time.Time `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time `gorm:"not null"`                 // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (dc *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	dc.CreatedAt = now
	dc.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (dc *DocumentChunk) BeforeUpdate(tx *gorm.DB) (err error) {
	dc.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
