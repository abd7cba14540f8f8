package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/math-tutor/internal/cache"
	"github.com/fyerfyer/math-tutor/internal/llm"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/sirupsen/logrus"
)

// TutorAnswer 辅导回答
type TutorAnswer struct {
	Answer    string           `json:"answer"`     // 回答内容
	Sources   []RetrievedChunk `json:"sources"`    // 引用的课程材料片段
	SessionID string           `json:"session_id"` // 会话ID（如果有）
	Model     string           `json:"model"`      // 使用的模型
	Cached    bool             `json:"cached"`     // 是否来自缓存
}

// TutorService 数学辅导服务
// 负责协调材料检索、对话历史和大模型生成回答
type TutorService struct {
	retrieval *RetrievalService // 检索服务
	llm       llm.Client        // 大模型客户端
	sessions  *SessionManager   // 会话管理器
	cache     cache.Cache       // 问答缓存
	cacheTTL  time.Duration     // 缓存有效期
	maxTokens int               // 回答的最大Token数
	logger    *logrus.Logger    // 日志记录器
}

// TutorOption 辅导服务配置选项
type TutorOption func(*TutorService)

// WithCacheTTL 设置缓存有效期
func WithCacheTTL(ttl time.Duration) TutorOption {
	return func(s *TutorService) {
		s.cacheTTL = ttl
	}
}

// WithAnswerMaxTokens 设置回答的最大Token数
func WithAnswerMaxTokens(tokens int) TutorOption {
	return func(s *TutorService) {
		if tokens > 0 {
			s.maxTokens = tokens
		}
	}
}

// WithTutorLogger 设置日志记录器
func WithTutorLogger(logger *logrus.Logger) TutorOption {
	return func(s *TutorService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTutorService 创建辅导服务实例
func NewTutorService(
	retrieval *RetrievalService,
	llmClient llm.Client,
	sessions *SessionManager,
	qaCache cache.Cache,
	opts ...TutorOption,
) *TutorService {
	service := &TutorService{
		retrieval: retrieval,
		llm:       llmClient,
		sessions:  sessions,
		cache:     qaCache,
		cacheTTL:  24 * time.Hour, // 默认缓存24小时
		maxTokens: 2000,           // 默认回答长度上限
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Ask 回答学生问题
// sessionID非空时携带会话历史并将本轮问答写入历史
func (s *TutorService) Ask(ctx context.Context, sessionID string, question string) (*TutorAnswer, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	// 无会话的问题可以直接命中缓存
	if sessionID == "" && s.cache != nil {
		cacheKey := cache.GenerateCacheKey("tutor", question)
		if cached, found, err := s.cache.Get(cacheKey); err == nil && found {
			return &TutorAnswer{
				Answer: cached,
				Model:  s.llm.Name(),
				Cached: true,
			}, nil
		}
	}

	// 1. 检索相关课程材料
	// 没有相关材料不是错误，提示词构建会放入兜底说明
	chunks, err := s.retrieval.Retrieve(ctx, question, 0)
	if err != nil && !errors.Is(err, models.ErrNoRelevantMaterial) {
		return nil, fmt.Errorf("failed to retrieve course materials: %w", err)
	}

	// 2. 载入会话历史
	var history []llm.Message
	if sessionID != "" {
		recent, err := s.sessions.RecentHistory(sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session history: %w", err)
		}
		for _, msg := range recent {
			history = append(history, llm.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}

	// 3. 构建提示词并调用大模型
	messages := llm.BuildTutorMessages(question, Texts(chunks), history)
	response, err := s.llm.Chat(ctx, messages, llm.WithChatMaxTokens(s.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := &TutorAnswer{
		Answer:    response.Text,
		Sources:   chunks,
		SessionID: sessionID,
		Model:     response.ModelName,
	}

	// 4. 更新会话历史
	if sessionID != "" {
		sources := make([]models.Source, len(chunks))
		for i, chunk := range chunks {
			sources[i] = models.Source{
				ChunkID:  chunk.ChunkID,
				Source:   chunk.Source,
				Position: chunk.Position,
				Text:     chunk.Text,
				Score:    chunk.Score,
			}
		}
		if err := s.sessions.AppendExchange(sessionID, question, response.Text, sources); err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to save exchange to session history")
		}
	}

	// 5. 缓存无会话的问答结果
	if sessionID == "" && s.cache != nil {
		cacheKey := cache.GenerateCacheKey("tutor", question)
		if err := s.cache.Set(cacheKey, response.Text, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache answer")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"source_count": len(chunks),
		"tokens_used":  response.TokensUsed,
	}).Info("Tutor answer generated")

	return answer, nil
}

// ClearCache 清除问答缓存
func (s *TutorService) ClearCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear()
}
