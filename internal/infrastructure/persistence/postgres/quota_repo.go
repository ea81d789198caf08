// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"theme-gen-ai-api/internal/domain/entity"
)

// QuotaRepository 每日额度仓储实现
type QuotaRepository struct {
	client *Client
}

// NewQuotaRepository 创建额度仓储
func NewQuotaRepository(client *Client) *QuotaRepository {
	return &QuotaRepository{client: client}
}

// Ensure 记录不存在时创建
func (r *QuotaRepository) Ensure(ctx context.Context, quota *entity.ActorQuota) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Ensure")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(quota).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to ensure actor quota: %w", err)
	}
	return nil
}

// Get 获取额度记录
func (r *QuotaRepository) Get(ctx context.Context, actorID string) (*entity.ActorQuota, error) {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var quota entity.ActorQuota
	if err := db.First(&quota, "actor_id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get actor quota: %w", err)
	}
	return &quota, nil
}

// ResetIfStale 跨日后首次访问时清零，同日重复调用不产生变更
func (r *QuotaRepository) ResetIfStale(ctx context.Context, actorID, today string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.ResetIfStale")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ? AND last_reset_date <> ?", actorID, today).
		Updates(map[string]interface{}{
			"used_today":      0,
			"reserved":        0,
			"last_reset_date": today,
		})
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to reset actor quota: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Reserve 条件预占：不限额度或 used + reserved + cost <= limit
func (r *QuotaRepository) Reserve(ctx context.Context, actorID string, cost int) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Reserve")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ? AND (daily_limit = ? OR used_today + reserved + ? <= daily_limit)", actorID, entity.UnlimitedQuota, cost).
		Update("reserved", gorm.Expr("reserved + ?", cost))
	if res.Error != nil {
		span.RecordError(res.Error)
		return false, fmt.Errorf("failed to reserve actor quota: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Commit 将预占转为已用
func (r *QuotaRepository) Commit(ctx context.Context, actorID string, cost int) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Commit")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ?", actorID).
		Updates(map[string]interface{}{
			"used_today": gorm.Expr("used_today + ?", cost),
			"reserved":   gorm.Expr("CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END", cost, cost),
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit actor quota: %w", err)
	}
	return nil
}

// Release 释放预占，不低于 0
func (r *QuotaRepository) Release(ctx context.Context, actorID string, cost int) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Release")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ?", actorID).
		Update("reserved", gorm.Expr("CASE WHEN reserved >= ? THEN reserved - ? ELSE 0 END", cost, cost)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release actor quota: %w", err)
	}
	return nil
}

// Reset 管理员清零
func (r *QuotaRepository) Reset(ctx context.Context, actorID, today string) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.Reset")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ?", actorID).
		Updates(map[string]interface{}{
			"used_today":      0,
			"reserved":        0,
			"last_reset_date": today,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to reset actor quota: %w", err)
	}
	return nil
}

// SetLimit 修改额度与档位，同时清零已用
func (r *QuotaRepository) SetLimit(ctx context.Context, actorID string, dailyLimit int, isPremium bool, today string) error {
	ctx, span := tracer.Start(ctx, "postgres.QuotaRepository.SetLimit")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.ActorQuota{}).
		Where("actor_id = ?", actorID).
		Updates(map[string]interface{}{
			"daily_limit":     dailyLimit,
			"is_premium":      isPremium,
			"used_today":      0,
			"last_reset_date": today,
		}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set actor quota limit: %w", err)
	}
	return nil
}
