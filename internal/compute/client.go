package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// httpDoer 是计算服务的底层HTTP客户端接口
type httpDoer interface {
	// Post 发送POST请求并解析JSON响应
	Post(ctx context.Context, path string, data interface{}, result interface{}) error
	// Get 发送GET请求并解析JSON响应
	Get(ctx context.Context, path string, result interface{}) error
}

// HTTPClient 实现了计算服务的HTTP客户端
type HTTPClient struct {
	client  *http.Client
	config  *ServiceConfig
	headers map[string]string
	logger  *logrus.Logger
}

// APIError 表示计算服务返回的错误
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("compute API error (status code: %d): %s - %s", e.StatusCode, e.Message, e.Detail)
}

// NewHTTPClient 创建一个新的计算服务HTTP客户端
func NewHTTPClient(config *ServiceConfig) *HTTPClient {
	if config == nil {
		config = DefaultConfig()
	}

	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPClient{
		client: client,
		config: config,
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"User-Agent":   "Math-Tutor-Go-Client/1.0",
		},
		logger: logrus.New(),
	}
}

// Get 发送GET请求到计算服务
func (c *HTTPClient) Get(ctx context.Context, path string, result interface{}) error {
	url := fmt.Sprintf("%s%s", c.config.BaseURL, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	return c.doRequestWithRetry(req, result)
}

// Post 发送POST请求到计算服务
func (c *HTTPClient) Post(ctx context.Context, path string, data interface{}, result interface{}) error {
	url := fmt.Sprintf("%s%s", c.config.BaseURL, path)

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	return c.doRequestWithRetry(req, result)
}

// doRequestWithRetry 执行HTTP请求并支持重试
func (c *HTTPClient) doRequestWithRetry(req *http.Request, result interface{}) error {
	var lastErr error
	var resp *http.Response

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return fmt.Errorf("request context canceled: %w", req.Context().Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
				// 增加退避时间
			}
		}

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"url":     req.URL.String(),
			"error":   lastErr.Error(),
		}).Warn("compute service request failed")
	}

	if lastErr != nil {
		return fmt.Errorf("HTTP request failed: %w", lastErr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    "compute API call failed",
		}

		// 尝试解析错误详情
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
			apiErr.Detail = errResp.Detail
		} else {
			apiErr.Detail = string(body)
		}

		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response JSON: %w", err)
		}
	}

	return nil
}
