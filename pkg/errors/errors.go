// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 事件日志错误 (2xxx)
	CodeEventConflict    ErrorCode = "2001"
	CodeUnknownEventType ErrorCode = "2002"
	CodeSequenceGap      ErrorCode = "2003"
	CodeThreadClosed     ErrorCode = "2004"

	// 资源错误 (3xxx)
	CodeProjectNotFound ErrorCode = "3001"
	CodeThreadNotFound  ErrorCode = "3002"
	CodeChunkNotFound   ErrorCode = "3003"

	// 业务错误 (4xxx)
	CodeRetrievalFailed  ErrorCode = "4001"
	CodeAllSourcesFailed ErrorCode = "4002"
	CodeBudgetExceeded   ErrorCode = "4003"
	CodeLLMCallFailed    ErrorCode = "4004"
	CodeEmbeddingFailed  ErrorCode = "4005"

	// 外部服务错误 (5xxx)
	CodeDatabaseError     ErrorCode = "5001"
	CodeCacheError        ErrorCode = "5002"
	CodeVectorIndexError  ErrorCode = "5003"
	CodeLexicalIndexError ErrorCode = "5004"
	CodeLLMProviderError  ErrorCode = "5005"
	CodeOntologyError     ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeUnknownEventType:
		return http.StatusBadRequest
	case CodeNotFound, CodeProjectNotFound, CodeThreadNotFound, CodeChunkNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeEventConflict, CodeThreadClosed:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeBudgetExceeded:
		return http.StatusUnprocessableEntity
	case CodeServiceUnavailable, CodeAllSourcesFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrEventConflict    = New(CodeEventConflict, "event sequence conflict")
	ErrUnknownEventType = New(CodeUnknownEventType, "unknown event type")
	ErrSequenceGap      = New(CodeSequenceGap, "event sequence gap detected")
	ErrThreadClosed     = New(CodeThreadClosed, "thread already closed")

	ErrProjectNotFound = New(CodeProjectNotFound, "project not found")
	ErrThreadNotFound  = New(CodeThreadNotFound, "thread not found")

	ErrRetrievalFailed  = New(CodeRetrievalFailed, "retrieval failed")
	ErrAllSourcesFailed = New(CodeAllSourcesFailed, "all retrieval sources failed")
	ErrBudgetExceeded   = New(CodeBudgetExceeded, "token budget exceeded")
	ErrLLMCallFailed    = New(CodeLLMCallFailed, "LLM call failed")
	ErrEmbeddingFailed  = New(CodeEmbeddingFailed, "embedding failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
