package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/math-tutor/internal/embedding"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 默认检索返回的片段数量
const DefaultTopK = 3

// RetrievedChunk 检索到的课程材料片段
type RetrievedChunk struct {
	ChunkID  string  `json:"chunk_id"` // 分块ID
	Source   string  `json:"source"`   // 来源文件名
	Position int     `json:"position"` // 分块位置
	Text     string  `json:"text"`     // 片段文本
	Score    float32 `json:"score"`    // 相似度得分
}

// RetrievalService 课程材料检索服务
// 将学生问题向量化后在知识库中查找最相关的片段
type RetrievalService struct {
	embedder embedding.Client    // 嵌入模型客户端
	vectorDB vectordb.Repository // 向量数据库
	topK     int                 // 默认返回的片段数量
	logger   *logrus.Logger      // 日志记录器
}

// RetrievalOption 检索服务配置选项
type RetrievalOption func(*RetrievalService)

// WithTopK 设置默认返回的片段数量
func WithTopK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithRetrievalLogger 设置日志记录器
func WithRetrievalLogger(logger *logrus.Logger) RetrievalOption {
	return func(s *RetrievalService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRetrievalService 创建一个新的检索服务
func NewRetrievalService(embedder embedding.Client, vectorDB vectordb.Repository, opts ...RetrievalOption) *RetrievalService {
	srv := &RetrievalService{
		embedder: embedder,
		vectorDB: vectorDB,
		topK:     DefaultTopK,
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// Retrieve 检索与问题最相关的材料片段
// k小于等于0时使用默认值；没有任何相关材料时返回ErrNoRelevantMaterial，
// 而不是静默的空列表
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = s.topK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailure, err)
	}

	results, err := s.vectorDB.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	if len(results) == 0 {
		s.logger.WithField("top_k", k).Debug("No relevant material found for query")
		return nil, models.ErrNoRelevantMaterial
	}

	chunks := make([]RetrievedChunk, len(results))
	for i, result := range results {
		chunks[i] = RetrievedChunk{
			ChunkID:  result.Chunk.ID,
			Source:   result.Chunk.Source,
			Position: result.Chunk.ChunkIndex,
			Text:     result.Chunk.Text,
			Score:    result.Score,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"query_length": len(query),
		"top_k":        k,
		"result_count": len(chunks),
	}).Debug("Knowledge base retrieval completed")

	return chunks, nil
}

// Texts 提取检索结果的文本内容，保持得分排序
func Texts(chunks []RetrievedChunk) []string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return texts
}
