// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"theme-gen-ai-api/internal/domain/entity"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache JSON 值缓存
type Cache struct {
	client *Client
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Put 写入缓存值
func (c *Cache) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Put",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, bytes, ttl); err != nil {
		return fmt.Errorf("failed to set cache %s: %w", key, err)
	}
	return nil
}

// Get 读取缓存值到 dest，键不存在时返回 false
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("failed to get cache %s: %w", key, err)
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	if err := json.Unmarshal(val, dest); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to unmarshal cache %s: %w", key, err)
	}
	return true, nil
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	return c.client.Del(ctx, keys...)
}

// ResultKeyPrefix 任务结果键前缀
const ResultKeyPrefix = "genjob:result:"

// ResultKey 构建任务结果键
func ResultKey(jobID string) string {
	return ResultKeyPrefix + jobID
}

// ResultCache 异步任务结果缓存
type ResultCache struct {
	cache *Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewResultCache 创建任务结果缓存
func NewResultCache(cache *Cache, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{cache: cache, ttl: ttl}
}

// Key 返回任务结果键
func (r *ResultCache) Key(jobID string) string {
	return ResultKey(jobID)
}

// Put 写入任务结果，重试时覆盖
func (r *ResultCache) Put(ctx context.Context, result *entity.JobResult) error {
	return r.cache.Put(ctx, ResultKey(result.JobID), result, r.ttl)
}

// Get 读取任务结果，同一任务的并发轮询合并为一次读取
func (r *ResultCache) Get(ctx context.Context, jobID string) (*entity.JobResult, bool, error) {
	key := ResultKey(jobID)
	// 共享读取不随首个调用方取消
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		var result entity.JobResult
		found, err := r.cache.Get(shared, key, &result)
		if err != nil || !found {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	// 共享结果需拷贝，避免调用方互相修改
	result := *v.(*entity.JobResult)
	return &result, true, nil
}

// Delete 删除任务结果
func (r *ResultCache) Delete(ctx context.Context, jobID string) error {
	return r.cache.Delete(ctx, ResultKey(jobID))
}
