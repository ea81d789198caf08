package service

import (
	"context"

	"theme-gen-ai-api/internal/domain/entity"
)

// JobQueue 任务投递端口
type JobQueue interface {
	PublishJob(ctx context.Context, job *entity.GenerationJob) error
}

// ContentSink 批量生成结果落地端口
type ContentSink interface {
	Materialize(ctx context.Context, theme, style, length, content string) (string, error)
}

// NopContentSink 不落地
type NopContentSink struct{}

func (NopContentSink) Materialize(context.Context, string, string, string, string) (string, error) {
	return "", nil
}
