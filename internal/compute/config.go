package compute

import (
	"time"
)

// ServiceConfig 存储符号计算服务连接配置
// 符号计算由独立的SymPy服务提供
type ServiceConfig struct {
	BaseURL    string        // 计算服务基础URL
	Timeout    time.Duration // 请求超时时间
	MaxRetries int           // 最大重试次数
	RetryDelay time.Duration // 重试间隔
}

// DefaultConfig 返回默认配置
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		BaseURL:    "http://localhost:8000/api",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// WithBaseURL 设置基础URL
func (c *ServiceConfig) WithBaseURL(url string) *ServiceConfig {
	c.BaseURL = url
	return c
}

// WithTimeout 设置请求超时时间
func (c *ServiceConfig) WithTimeout(timeout time.Duration) *ServiceConfig {
	c.Timeout = timeout
	return c
}

// WithRetry 设置重试参数
func (c *ServiceConfig) WithRetry(maxRetries int, retryDelay time.Duration) *ServiceConfig {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
	return c
}
