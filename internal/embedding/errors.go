package embedding

import (
	"errors"
	"fmt"
)

// 嵌入服务错误码，1000段留给嵌入层
const (
	ErrCodeInvalidAPIKey  = 1001
	ErrCodeInvalidRequest = 1002
	ErrCodeNetworkError   = 1003
	ErrCodeRateLimited    = 1004
	ErrCodeServerError    = 1005
	ErrCodeTimeout        = 1006
	ErrCodeEmptyInput     = 1007
)

// EmbeddingError 带错误码的嵌入层错误
// 调用方通过Code区分是否值得重试
type EmbeddingError struct {
	Code    int
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// NewEmbeddingError 创建嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{Code: code, Message: message}
}

var (
	// ErrEmptyText 输入文本为空
	ErrEmptyText = NewEmbeddingError(ErrCodeEmptyInput, "input text cannot be empty")
	// ErrRateLimited 触发服务端限流
	ErrRateLimited = NewEmbeddingError(ErrCodeRateLimited, "too many requests, rate limit exceeded")
)

// 瞬时故障对应的错误码，批处理器对这些错误退避后重试
var retryableCodes = map[int]bool{
	ErrCodeRateLimited:  true,
	ErrCodeNetworkError: true,
	ErrCodeServerError:  true,
	ErrCodeTimeout:      true,
}

// IsRetryable 判断错误是否为瞬时故障
func IsRetryable(err error) bool {
	var embErr EmbeddingError
	if errors.As(err, &embErr) {
		return retryableCodes[embErr.Code]
	}
	return false
}
