// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
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
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeDocumentNotFound ErrorCode = "3001"

	// 业务错误 (4xxx)
	CodeExtractionFailed ErrorCode = "4002"
	CodeEmbeddingFailed  ErrorCode = "4006"

	// 外部服务错误 (5xxx)
	CodeDatabaseError ErrorCode = "5001"
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
	if e.Detail != "" && e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Message, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配，使 errors.Is(err, ErrServiceUnavailable) 穿透 %w 链生效
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息（返回副本，不修改预定义错误）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
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

// InvalidArgument 参数错误（调用方问题，不重试）
func InvalidArgument(format string, args ...any) *AppError {
	return New(CodeInvalidParam, "invalid argument").WithDetail(fmt.Sprintf(format, args...))
}

// ServiceUnavailable 后端不可达或未配置（可重试 / 可降级）
func ServiceUnavailable(detail string, err error) *AppError {
	e := New(CodeServiceUnavailable, "service unavailable").WithDetail(detail)
	e.Err = err
	return e
}

// EmbeddingFailed 向量化失败
func EmbeddingFailed(err error) *AppError {
	return Wrap(err, CodeEmbeddingFailed, "embedding failed")
}

// ExtractionFailed 文档解析失败
func ExtractionFailed(path string, err error) *AppError {
	e := Wrap(err, CodeExtractionFailed, "document extraction failed")
	e.Detail = path
	return e
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeNotFound, CodeDocumentNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case CodeEmbeddingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误（用于 errors.Is 比较）
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid argument")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrDocumentNotFound = New(CodeDocumentNotFound, "document not found")
	ErrExtractionFailed = New(CodeExtractionFailed, "document extraction failed")
	ErrEmbeddingFailed  = New(CodeEmbeddingFailed, "embedding failed")
)

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsCode 判断错误链中是否包含指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// HTTPStatus 返回错误对应的 HTTP 状态码
func HTTPStatus(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
