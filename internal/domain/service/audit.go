// Package service 定义跨层的领域端口
package service

import "context"

// AuditInput 一次供应商调用的可审计数据
type AuditInput struct {
	ActorID  string
	Kind     string
	Provider string
	Model    string

	PromptSummary   string
	ResponseSummary string

	InputTokens  int
	OutputTokens int
	Cost         float64
	LatencyMs    int64

	Success  bool
	ErrorMsg string
	Metadata map[string]any
}

// AuditRecorder 负责写入审计日志，返回记录 ID。
// 约定：实现为 best-effort，写入失败由调用方记录日志，不影响调用结果。
type AuditRecorder interface {
	Record(ctx context.Context, in AuditInput) (string, error)
}
