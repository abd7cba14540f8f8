package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIClient 基于OpenAI接口的大模型客户端
// 同时支持OpenAI官方API和Azure OpenAI部署
type OpenAIClient struct {
	client *openai.Client
	config *Config
	logger *logrus.Logger
}

// NewOpenAIClient 创建一个新的OpenAI大模型客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, "api key is required")
	}

	var clientCfg openai.ClientConfig
	if cfg.AzureBaseURL != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureBaseURL)
		clientCfg.APIVersion = cfg.APIVersion
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logrus.New(),
	}, nil
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "prompt is empty")
	}

	opts := applyGenerateOptions(options)
	messages := []Message{{Role: RoleUser, Content: prompt}}
	return c.chat(ctx, messages, opts)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages are empty")
	}

	return c.chat(ctx, messages, applyChatOptions(options))
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// chat 执行对话请求，失败时按指数退避重试
func (c *OpenAIClient) chat(ctx context.Context, messages []Message, opts *callOptions) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}
	if opts.maxTokens != nil {
		req.MaxTokens = *opts.maxTokens
	}
	if opts.temperature != nil {
		req.Temperature = *opts.temperature
	}
	if opts.topP != nil {
		req.TopP = *opts.topP
	}

	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff.String(),
			}).Warn("retrying chat completion request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if !isRetryableAPIError(err) {
				break
			}
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = NewLLMError(ErrCodeServerError, "empty response choices")
			continue
		}

		choice := resp.Choices[0]
		return &Response{
			Text:         choice.Message.Content,
			TokensUsed:   resp.Usage.TotalTokens,
			ModelName:    resp.Model,
			FinishReason: string(choice.FinishReason),
		}, nil
	}

	return nil, fmt.Errorf("chat completion failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

// isRetryableAPIError 判断接口错误是否可以重试
func isRetryableAPIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// 网络层错误按可重试处理
	return true
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("azure", NewOpenAIClient)
}
