package types

import (
	"errors"
	"fmt"
)

// 层级适配器使用的哨兵错误
var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrItemTooLarge 条目超过层级允许的最大尺寸
	ErrItemTooLarge = errors.New("cache item too large")
	// ErrClosed 缓存已关闭
	ErrClosed = errors.New("cache is closed")
	// ErrCorruptItem 存储内容无法解析
	ErrCorruptItem = errors.New("corrupt cache item")
)

// IsCacheMiss 判断是否为缓存未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// ErrorCode represents a unified error code for the HTTP surface.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrInvalidPattern     ErrorCode = "INVALID_PATTERN"
	ErrNotFound           ErrorCode = "CACHE_MISS"
	ErrWriteFailed        ErrorCode = "WRITE_FAILED"
	ErrDeleteFailed       ErrorCode = "DELETE_FAILED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
