// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"math"
	"strconv"
	"time"

	"theme-gen-ai-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	ErrorCode   string   `json:"error_code,omitempty"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`

	// 额度与限流拒绝时携带的数值信息
	Limit           *int       `json:"limit,omitempty"`
	Remaining       *int       `json:"remaining,omitempty"`
	ResetAt         *time.Time `json:"reset_at,omitempty"`
	RetryAfter      *int       `json:"retry_after,omitempty"`
	SuggestedAction string     `json:"suggested_action,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(200, Response[T]{
		Code:    200,
		Message: "success",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Accepted 返回接受处理响应 (202)
func Accepted[T any](c *gin.Context, data T) {
	c.JSON(202, Response[T]{
		Code:    202,
		Message: "accepted",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Error 返回错误响应
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		TraceID: c.GetString("trace_id"),
	})
}

// ErrorWithDetail 返回带详情的错误响应
func ErrorWithDetail(c *gin.Context, httpCode int, message string, detail *ErrorDetail) {
	c.JSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		Error:   detail,
		TraceID: c.GetString("trace_id"),
	})
}

// Fail 按应用错误返回响应，未知错误统一为 500
func Fail(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	detail := &ErrorDetail{ErrorCode: string(appErr.Code), Details: appErr.Detail}
	ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, detail)
}

// AbortFail 与 Fail 相同但终止后续中间件
func AbortFail(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}

// RateLimited 返回 429 限流响应
func RateLimited(c *gin.Context, limit int, retryAfter time.Duration) {
	secs := RetryAfterSeconds(retryAfter)
	remaining := 0
	c.Header("Retry-After", strconv.Itoa(secs))
	ErrorWithDetail(c, 429, "too many requests, please slow down", &ErrorDetail{
		ErrorCode:  string(errors.CodeTooManyRequests),
		Limit:      &limit,
		Remaining:  &remaining,
		RetryAfter: &secs,
	})
}

// QuotaExceeded 返回 429 额度耗尽响应
func QuotaExceeded(c *gin.Context, limit, used int, resetAt time.Time, suggestedAction string) {
	remaining := 0
	secs := RetryAfterSeconds(time.Until(resetAt))
	c.Header("Retry-After", strconv.Itoa(secs))
	detail := &ErrorDetail{
		ErrorCode:       string(errors.CodeQuotaExceeded),
		Details:         "used " + strconv.Itoa(used) + " of " + strconv.Itoa(limit) + " generations today",
		Limit:           &limit,
		Remaining:       &remaining,
		ResetAt:         &resetAt,
		RetryAfter:      &secs,
		SuggestedAction: suggestedAction,
	}
	if suggestedAction != "" {
		detail.Suggestions = []string{suggestedAction}
	}
	ErrorWithDetail(c, 429, errors.ErrQuotaExceeded.Message, detail)
}

// RetryAfterSeconds 向上取整为秒，至少 1 秒
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	ErrorWithDetail(c, 400, message, &ErrorDetail{ErrorCode: string(errors.CodeInvalidParam)})
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, message string) {
	Error(c, 404, message)
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, 500, message)
}

// ServiceUnavailable 返回 503 错误
func ServiceUnavailable(c *gin.Context, message string) {
	ErrorWithDetail(c, 503, message, &ErrorDetail{ErrorCode: string(errors.CodeLLMProviderError)})
}
