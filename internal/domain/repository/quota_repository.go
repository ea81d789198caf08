package repository

import (
	"context"

	"theme-gen-ai-api/internal/domain/entity"
)

// QuotaRepository 每日额度仓储接口
// 所有变更均为单条条件 UPDATE，行级原子。
type QuotaRepository interface {
	// Ensure 记录不存在时创建
	Ensure(ctx context.Context, quota *entity.ActorQuota) error

	// Get 获取额度记录，不存在时返回 nil, nil
	Get(ctx context.Context, actorID string) (*entity.ActorQuota, error)

	// ResetIfStale 当 last_reset_date 不等于 today 时清零，返回是否发生重置
	ResetIfStale(ctx context.Context, actorID, today string) (bool, error)

	// Reserve 在额度允许时预占 cost，返回是否成功
	Reserve(ctx context.Context, actorID string, cost int) (bool, error)

	// Commit 将预占转为已用
	Commit(ctx context.Context, actorID string, cost int) error

	// Release 释放预占
	Release(ctx context.Context, actorID string, cost int) error

	// Reset 无条件清零
	Reset(ctx context.Context, actorID, today string) error

	// SetLimit 修改额度与档位并清零
	SetLimit(ctx context.Context, actorID string, dailyLimit int, isPremium bool, today string) error
}
