package repository

import (
	"context"

	"theme-gen-ai-api/internal/domain/entity"
)

// AuditLogRepository 审计日志仓储接口，只追加
type AuditLogRepository interface {
	Create(ctx context.Context, entry *entity.AuditLogEntry) error
}

// ContentTemplateRepository 模板仓储接口
type ContentTemplateRepository interface {
	Create(ctx context.Context, tpl *entity.ContentTemplate) error
}
