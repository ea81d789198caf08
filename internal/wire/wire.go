//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"theme-gen-ai-api/internal/application/audit"
	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/application/job"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/internal/infrastructure/llm"
	"theme-gen-ai-api/internal/infrastructure/persistence/postgres"
	"theme-gen-ai-api/internal/infrastructure/persistence/redis"
	"theme-gen-ai-api/internal/interfaces/http/handler"
	"theme-gen-ai-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		GenerationSet,
		JobSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化任务执行进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		ProvideMessagingConsumer,
		GenerationSet,
		WorkerSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	wire.Build(ProvidePostgresClient)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewQuotaRepository,
	postgres.NewAuditLogRepository,
	postgres.NewJobRepository,
	postgres.NewContentTemplateRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.AuditLogRepository), new(*postgres.AuditLogRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideResultCache,
	ProvideRateLimiter,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// GenerationSet 同步生成链路
var GenerationSet = wire.NewSet(
	ProvideTiers,
	ProvideLedger,
	ProvideLLMConfig,
	llm.NewEinoFactory,
	audit.NewRecorder,
	ProvideProviderClient,
	ProvideOrchestrator,
	ProvideJobPolicies,
)

// JobSet 任务入队
var JobSet = wire.NewSet(
	ProvideJobService,
)

// WorkerSet 任务执行
var WorkerSet = wire.NewSet(
	ProvideContentSink,
	ProvideBulkProcessor,
	ProvideRunner,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewGenerationHandler,
	handler.NewJobHandler,
	handler.NewQuotaHandler,
	handler.NewAdminHandler,
	wire.Bind(new(handler.Orchestrator), new(*generation.Orchestrator)),
	wire.Bind(new(handler.JobService), new(*job.Service)),
	wire.Bind(new(handler.QuotaService), new(*quota.Ledger)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
