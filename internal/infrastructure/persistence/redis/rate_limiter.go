// Package redis 提供 Redis 限流器实现
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter 固定窗口限流器
// 窗口从首次命中开始，计数随键过期一起消失。
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Hit 记录一次命中并返回窗口内计数
func (l *RateLimiter) Hit(ctx context.Context, key string, decay time.Duration) (int64, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Hit")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int64("ratelimit.decay_ms", decay.Milliseconds()),
	)
	defer span.End()

	var incr *redis.IntCmd
	_, err := l.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, decay)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to hit rate limit %s: %w", key, err)
	}

	count := incr.Val()
	span.SetAttributes(attribute.Int64("ratelimit.current_count", count))
	return count, nil
}

// Attempts 当前窗口内的计数
func (l *RateLimiter) Attempts(ctx context.Context, key string) (int64, error) {
	val, err := l.client.Get(ctx, key)
	if err != nil {
		if IsNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rate limit %s: %w", key, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit counter %s: %w", key, err)
	}
	return n, nil
}

// TooMany 计数是否已达到上限
func (l *RateLimiter) TooMany(ctx context.Context, key string, maxAttempts int) (bool, error) {
	attempts, err := l.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	return attempts >= int64(maxAttempts), nil
}

// AvailableIn 窗口剩余时间
func (l *RateLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.AvailableIn")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	ttl, err := l.client.rdb.PTTL(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get rate limit ttl %s: %w", key, err)
	}
	// -1 无过期、-2 不存在
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear 清除计数
func (l *RateLimiter) Clear(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "ratelimit.Clear")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	return l.client.Del(ctx, key)
}
