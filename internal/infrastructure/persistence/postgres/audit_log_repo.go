// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"theme-gen-ai-api/internal/domain/entity"
)

// AuditLogRepository 审计日志仓储实现
type AuditLogRepository struct {
	client *Client
}

func NewAuditLogRepository(client *Client) *AuditLogRepository {
	return &AuditLogRepository{client: client}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *entity.AuditLogEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.AuditLogRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(entry).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}
	return nil
}
