package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
// 同时支持标准OpenAI端点和Azure OpenAI端点
type OpenAIClient struct {
	client     *openai.Client // OpenAI API客户端
	model      string         // 使用的嵌入模型
	config     *Config        // 客户端配置
	dimensions int            // 向量维度
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	if config.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "OpenAI API key is required")
	}

	var clientConfig openai.ClientConfig
	if config.AzureBaseURL != "" {
		clientConfig = openai.DefaultAzureConfig(config.APIKey, config.AzureBaseURL)
		if config.APIVersion != "" {
			clientConfig.APIVersion = config.APIVersion
		}
	} else {
		clientConfig = openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
		}
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		config:     config,
		dimensions: config.Dimensions,
	}, nil
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成嵌入向量
// 命中速率限制时按指数退避重试
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)

		req := openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.model),
		}

		resp, err := c.client.CreateEmbeddings(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Data) != len(texts) {
				return nil, NewEmbeddingError(ErrCodeServerError,
					fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
			}
			vectors := make([][]float32, len(resp.Data))
			for _, d := range resp.Data {
				vectors[d.Index] = d.Embedding
			}
			return vectors, nil
		}

		lastErr = err
		if isRateLimitError(err) && attempt < maxRetries {
			// 指数退避策略
			wait := time.Duration(1<<uint(attempt+1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		break
	}

	if isRateLimitError(lastErr) {
		return nil, ErrRateLimited
	}
	return nil, NewEmbeddingError(ErrCodeServerError, lastErr.Error())
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Dimensions 返回向量维度
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}

// isRateLimitError 判断是否是速率限制错误
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("azure", NewOpenAIClient)
}
