package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"theme-gen-ai-api/internal/domain/entity"
)

// ContentTemplateRepository 模板仓储实现
type ContentTemplateRepository struct {
	client *Client
}

func NewContentTemplateRepository(client *Client) *ContentTemplateRepository {
	return &ContentTemplateRepository{client: client}
}

func (r *ContentTemplateRepository) Create(ctx context.Context, tpl *entity.ContentTemplate) error {
	ctx, span := tracer.Start(ctx, "postgres.ContentTemplateRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(tpl).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create content template: %w", err)
	}
	return nil
}

// Materialize 写入一条模板记录，返回记录 ID
func (r *ContentTemplateRepository) Materialize(ctx context.Context, theme, style, length, content string) (string, error) {
	tpl := &entity.ContentTemplate{
		ID:      uuid.NewString(),
		Theme:   theme,
		Style:   style,
		Length:  length,
		Content: content,
		Source:  "ai_bulk",
	}
	if err := r.Create(ctx, tpl); err != nil {
		return "", err
	}
	return tpl.ID, nil
}
