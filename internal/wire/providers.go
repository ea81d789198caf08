// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"
	"time"

	"theme-gen-ai-api/internal/application/audit"
	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/application/job"
	"theme-gen-ai-api/internal/application/provider"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/application/ratelimit"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/internal/infrastructure/llm"
	"theme-gen-ai-api/internal/infrastructure/messaging"
	"theme-gen-ai-api/internal/infrastructure/persistence/postgres"
	"theme-gen-ai-api/internal/infrastructure/persistence/redis"
	"theme-gen-ai-api/internal/interfaces/http/handler"
	"theme-gen-ai-api/internal/interfaces/http/router"
	"theme-gen-ai-api/pkg/logger"
)

// Worker 任务执行进程依赖
type Worker struct {
	Consumer *messaging.Consumer
	Runner   *job.Runner
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Postgres.AutoMigrate {
		if err := client.AutoMigrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideResultCache 提供任务结果缓存
func ProvideResultCache(cache *redis.Cache, cfg *config.Config) *redis.ResultCache {
	return redis.NewResultCache(cache, cfg.Cache.ResultTTL)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	rs := cfg.Messaging.RedisStream
	return messaging.NewProducer(redisClient.Redis(), messaging.Stream(rs.Stream), int64(rs.MaxLen))
}

// ProvideMessagingConsumer 提供消息消费者，退避起点取单项任务退避配置
func ProvideMessagingConsumer(redisClient *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	backoff := messaging.BackoffConfig{
		Initial:    rs.RetryBackoff.Initial,
		Max:        rs.RetryBackoff.Max,
		Multiplier: rs.RetryBackoff.Multiplier,
	}
	if cfg.Jobs.Single.Backoff > 0 {
		backoff.Initial = cfg.Jobs.Single.Backoff
	}
	group := messaging.ConsumerGroupGenWorker
	if rs.ConsumerGroupPrefix != "" {
		group = messaging.ConsumerGroup(rs.ConsumerGroupPrefix + "-" + string(messaging.ConsumerGroupGenWorker))
	}
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.Stream(rs.Stream),
		Group:         group,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    retryLimit(rs.RetryLimit, cfg.Jobs.Single.MaxAttempts),
		Backoff:       backoff,
		ReclaimIdle:   reclaimIdle(cfg.Jobs),
	})
}

// reclaimIdle 认领阈值取最长任务超时再加一分钟，运行中的任务不会被重投
func reclaimIdle(jobs config.JobsConfig) time.Duration {
	policies := job.PoliciesFromConfig(jobs)
	return max(policies.Single.Timeout, policies.Bulk.Timeout) + time.Minute
}

// retryLimit 重投上限不低于单项任务最大尝试次数
func retryLimit(configured, maxAttempts int) int {
	if configured < maxAttempts {
		return maxAttempts
	}
	return configured
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// ProvideRateLimiter 提供策略限流器
func ProvideRateLimiter(store *redis.RateLimiter, cfg *config.Config) *ratelimit.Limiter {
	overrides := make(map[string]ratelimit.Policy, len(cfg.RateLimit.Policies))
	for name, p := range cfg.RateLimit.Policies {
		overrides[name] = ratelimit.Policy{Name: name, MaxAttempts: p.MaxAttempts, Decay: p.Decay}
	}
	return ratelimit.NewLimiter(store, overrides, cfg.RateLimit.Enabled)
}

// ProvideTiers 提供档位默认额度
func ProvideTiers(cfg *config.Config) quota.Tiers {
	return quota.Tiers{Free: cfg.Quota.FreeDailyLimit, Premium: cfg.Quota.PremiumDailyLimit}
}

// ProvideLedger 提供额度账本，时区非法时回落到 UTC
func ProvideLedger(ctx context.Context, repo *postgres.QuotaRepository, tx *postgres.TxManager, tiers quota.Tiers, cfg *config.Config) *quota.Ledger {
	loc, err := time.LoadLocation(cfg.Quota.TimeZone)
	if err != nil {
		logger.Warn(ctx, "invalid quota time zone, falling back to UTC", "time_zone", cfg.Quota.TimeZone, "error", err.Error())
		loc = time.UTC
	}
	return quota.NewLedger(repo, tx, quota.NewClaimsDirectory(tiers), tiers, loc)
}

// ProvideLLMConfig 提供 LLM 配置
func ProvideLLMConfig(cfg *config.Config) *config.LLMConfig {
	return &cfg.LLM
}

// ProvideProviderClient 提供供应商客户端
func ProvideProviderClient(factory *llm.EinoFactory, recorder *audit.Recorder, cfg *config.Config) *provider.Client {
	return provider.NewClient(factory, provider.NewPriceTable(cfg.LLM.Prices), recorder, provider.Options{
		TextTimeout:  cfg.LLM.TextTimeout,
		ImageTimeout: cfg.LLM.ImageTimeout,
	})
}

// ProvideOrchestrator 提供生成编排器
func ProvideOrchestrator(limiter *ratelimit.Limiter, ledger *quota.Ledger, client *provider.Client) *generation.Orchestrator {
	return generation.NewOrchestrator(limiter, ledger, client)
}

// ProvideJobPolicies 提供任务重试策略
func ProvideJobPolicies(cfg *config.Config) job.Policies {
	return job.PoliciesFromConfig(cfg.Jobs)
}

// ProvideJobService 提供任务服务
func ProvideJobService(jobs *postgres.JobRepository, producer *messaging.Producer, results *redis.ResultCache, limiter *ratelimit.Limiter, ledger *quota.Ledger, policies job.Policies) *job.Service {
	return job.NewService(jobs, producer, results, limiter, ledger, policies)
}

// ProvideContentSink 提供批量结果落地端口，关闭落地时为空实现
func ProvideContentSink(repo *postgres.ContentTemplateRepository, cfg *config.Config) service.ContentSink {
	if !cfg.Jobs.Materialize {
		return service.NopContentSink{}
	}
	return repo
}

// ProvideBulkProcessor 提供批量处理器
func ProvideBulkProcessor(orch *generation.Orchestrator, sink service.ContentSink, jobs *postgres.JobRepository, cfg *config.Config) *job.BulkProcessor {
	return job.NewBulkProcessor(orch, sink, jobs, job.BulkConfig{
		ItemDelay:   cfg.Jobs.ItemDelay,
		Materialize: cfg.Jobs.Materialize,
	})
}

// ProvideRunner 提供任务执行器
func ProvideRunner(jobs *postgres.JobRepository, results *redis.ResultCache, orch *generation.Orchestrator, bulk *job.BulkProcessor, policies job.Policies) *job.Runner {
	return job.NewRunner(jobs, results, orch, bulk, policies)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(pg *postgres.Client, redisClient *redis.Client, cfg *config.Config) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    redisClient,
	})
}

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers router.Handlers) *router.Router {
	return router.New(cfg, handlers)
}
