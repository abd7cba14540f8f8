package llm

import (
	"context"
	"time"
)

// 支持的模型名称
const (
	ModelGPT4oMini = "gpt-4o-mini"
	ModelGPT4o     = "gpt-4o"
)

// Client 大模型客户端接口
// 辅导和练习题生成都通过这个接口调用模型
type Client interface {
	// Generate 根据单条提示词生成回答
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Chat 带历史的多轮对话
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 大模型客户端配置
type Config struct {
	APIKey       string        // API密钥
	BaseURL      string        // API基础URL
	AzureBaseURL string        // Azure OpenAI端点，设置后走Azure协议
	APIVersion   string        // Azure API版本
	Model        string        // 模型名称
	Timeout      time.Duration // 请求超时时间
	MaxRetries   int           // 最大重试次数
	MaxTokens    int           // 默认最大生成token数
	Temperature  float32       // 默认采样温度(0.0-2.0)
	TopP         float32       // 默认核采样阈值(0.0-1.0)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelGPT4oMini,
		APIVersion:  "2024-02-01",
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Option 客户端级配置选项
type Option func(*Config)

// NewConfig 应用选项到默认配置上
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAzure 切换到Azure OpenAI端点
// apiVersion为空时保留默认版本
func WithAzure(endpoint string, apiVersion string) Option {
	return func(c *Config) {
		c.AzureBaseURL = endpoint
		if apiVersion != "" {
			c.APIVersion = apiVersion
		}
	}
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

func WithMaxTokens(tokens int) Option {
	return func(c *Config) { c.MaxTokens = tokens }
}

func WithTemperature(temp float32) Option {
	return func(c *Config) { c.Temperature = temp }
}

func WithTopP(topP float32) Option {
	return func(c *Config) { c.TopP = topP }
}

// callOptions 单次请求级的采样参数覆盖
// nil表示沿用客户端配置的默认值
type callOptions struct {
	maxTokens   *int
	temperature *float32
	topP        *float32
}

// GenerateOption 生成请求的选项
type GenerateOption func(*callOptions)

// ChatOption 对话请求的选项
type ChatOption func(*callOptions)

func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *callOptions) { o.maxTokens = &tokens }
}

func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *callOptions) { o.temperature = &temp }
}

func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *callOptions) { o.topP = &topP }
}

func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *callOptions) { o.maxTokens = &tokens }
}

func WithChatTemperature(temp float32) ChatOption {
	return func(o *callOptions) { o.temperature = &temp }
}

func WithChatTopP(topP float32) ChatOption {
	return func(o *callOptions) { o.topP = &topP }
}

func applyGenerateOptions(options []GenerateOption) *callOptions {
	opts := &callOptions{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

func applyChatOptions(options []ChatOption) *callOptions {
	opts := &callOptions{}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// Factory 大模型客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端实现
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按提供商名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewLLMError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
