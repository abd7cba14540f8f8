package vectordb

import (
	"errors"
	"time"
)

// 常用错误定义
var (
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid chunk ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// ChunkRecord 向量库中持久化的chunk记录
// 每条记录对应恰好一个chunk id和一个固定维度的向量
type ChunkRecord struct {
	ID         string                 // chunk唯一标识：{source}_chunk_{index}
	Source     string                 // 来源文件名
	ChunkIndex int                    // 在source内的序号
	Text       string                 // chunk文本内容
	TokenCount int                    // token数量
	Vector     []float32              // 向量表示，维度必须与集合一致
	CreatedAt  time.Time              // 创建时间
	Metadata   map[string]interface{} // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 检索结果
type SearchResult struct {
	Chunk    ChunkRecord // chunk记录
	Score    float32     // 相似度得分（越大越相似）
	Distance float32     // 原始距离
}

// AddFailure 单条写入失败的记录
type AddFailure struct {
	ChunkID string // 失败的chunk id
	Reason  string // 失败原因
}

// AddResult 批量写入结果
// 写入按条目独立成败，失败的id逐条上报，绝不静默丢弃
type AddResult struct {
	Succeeded []string     // 成功写入的chunk id
	Failed    []AddFailure // 写入失败的chunk id及原因
}

// Stats 集合统计信息
type Stats struct {
	TotalChunks    int    `json:"total_chunks"`    // 已持久化的chunk总数
	CollectionName string `json:"collection_name"` // 集合名称
}

// Repository 向量库仓库接口
// 一个Repository实例对应一个命名集合
// 写入操作串行执行（互斥），检索为只读，可无限并发
type Repository interface {
	// Add 批量写入记录，按id做upsert：重复写入同一id会替换其内容
	// 单条失败（如维度不符）不影响其余条目，结果中逐条上报
	Add(records []ChunkRecord) (*AddResult, error)

	// Get 获取单条记录
	Get(id string) (ChunkRecord, error)

	// DeleteBySource 删除指定来源文件的所有chunk
	DeleteBySource(source string) error

	// Search 相似度检索，返回至多k条结果
	// 按得分降序排列，得分相同时按原始插入顺序稳定排序
	Search(vector []float32, k int) ([]SearchResult, error)

	// Count 获取记录总数
	Count() (int, error)

	// Stats 返回集合的即时统计信息
	Stats() (Stats, error)

	// Reset 销毁并重建空集合，不可逆
	Reset() error

	// Dimension 返回向量维数
	Dimension() int

	// CollectionName 返回集合名称
	CollectionName() string

	// Close 关闭数据库连接
	Close() error
}

// Config 向量库配置
type Config struct {
	Type              string       // 实现类型，如 "memory", "faiss"
	Path              string       // 索引文件路径（持久化实现使用）
	Collection        string       // 集合名称，一个知识库一个集合
	Dimension         int          // 向量维度
	DistanceType      DistanceType // 距离计算类型
	CreateIfNotExists bool         // 如果不存在是否创建
	InMemory          bool         // 是否仅在内存中运行
}

// Factory 向量库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}
