// Package generation 编排一次生成请求：限流、额度准入、供应商调用与记账
package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"theme-gen-ai-api/internal/application/provider"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/application/ratelimit"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
)

// Status 编排结果类型
type Status string

const (
	StatusSuccess       Status = "success"
	StatusQuotaExceeded Status = "quota_exceeded"
	StatusRateLimited   Status = "rate_limited"
	StatusProviderError Status = "provider_error"
	StatusInvalidParams Status = "invalid_params"
)

// Request 编排入参；ActorID 为空表示匿名请求，以 ClientIP 作为限流主体且不计额度
type Request struct {
	ActorID  string
	ClientIP string
	Kind     entity.GenerationKind
	Params   entity.GenerationParams
	Provider string
	Model    string
}

// Options 编排选项
type Options struct {
	// SkipRateLimit 异步重试时跳过限流，入队时已计数
	SkipRateLimit bool
	// SkipQuota 管理员批量任务不占用主体额度
	SkipQuota bool
}

// Result 编排结果
type Result struct {
	Status  Status                    `json:"status"`
	Outcome *entity.GenerationOutcome `json:"outcome,omitempty"`
	// QuotaRemaining 成功后的剩余额度，-1 表示不限或匿名
	QuotaRemaining int                 `json:"quota_remaining"`
	RetryAfter     time.Duration       `json:"-"`
	Admission      *quota.Admission    `json:"admission,omitempty"`
	RateLimit      *ratelimit.Decision `json:"-"`
	ErrorDetail    string              `json:"error_detail,omitempty"`
}

// Generator 供应商调用端口
type Generator interface {
	Generate(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationOutcome, error)
}

// QuotaLedger 额度端口
type QuotaLedger interface {
	CheckAndConsume(ctx context.Context, actorID string, cost int) (*quota.Admission, error)
	Commit(ctx context.Context, adm *quota.Admission) (int, error)
	Release(ctx context.Context, adm *quota.Admission) error
}

// RateLimiter 限流端口
type RateLimiter interface {
	Policy(name string) ratelimit.Policy
	Attempt(ctx context.Context, policy ratelimit.Policy, subject string) ratelimit.Decision
}

// Orchestrator 生成编排器
type Orchestrator struct {
	limiter   RateLimiter
	ledger    QuotaLedger
	generator Generator
	now       func() time.Time
}

// NewOrchestrator 创建编排器，limiter 可为空（不限流）
func NewOrchestrator(limiter RateLimiter, ledger QuotaLedger, generator Generator) *Orchestrator {
	return &Orchestrator{
		limiter:   limiter,
		ledger:    ledger,
		generator: generator,
		now:       time.Now,
	}
}

// PolicyFor 生成类型对应的限流策略名
func PolicyFor(kind entity.GenerationKind) string {
	if kind == entity.GenerationKindImage {
		return ratelimit.PolicyCaption.Name
	}
	return ratelimit.PolicyGeneration.Name
}

// RequestGeneration 执行一次同步生成，供应商只调用一次。
// 准入拒绝与供应商失败都以 Result 返回，error 仅表示额度存储等基础设施故障。
func (o *Orchestrator) RequestGeneration(ctx context.Context, req Request, opts Options) (*Result, error) {
	actorID := strings.TrimSpace(req.ActorID)
	kind := req.Kind
	log := logger.FromContext(ctx).With("kind", string(kind))

	if err := provider.ValidateParams(kind, req.Params); err != nil {
		return o.finish(kind, &Result{Status: StatusInvalidParams, ErrorDetail: err.Error(), QuotaRemaining: entity.UnlimitedQuota}), nil
	}

	// 1. 限流：命中先于额度检查记录
	if !opts.SkipRateLimit && o.limiter != nil {
		subject := actorID
		if subject == "" {
			subject = req.ClientIP
		}
		if subject != "" {
			decision := o.limiter.Attempt(ctx, o.limiter.Policy(PolicyFor(kind)), subject)
			if !decision.Allowed {
				log.Info("generation rate limited", "retry_after", decision.RetryAfter)
				return o.finish(kind, &Result{
					Status:     StatusRateLimited,
					RetryAfter: decision.RetryAfter,
					RateLimit:  &decision,
				}), nil
			}
		}
	}

	// 2. 额度准入，匿名请求不计额度
	var adm *quota.Admission
	if actorID != "" && !opts.SkipQuota {
		var err error
		adm, err = o.ledger.CheckAndConsume(ctx, actorID, 1)
		if err != nil {
			return nil, err
		}
		if !adm.Allowed {
			metrics.AdmissionRejected.WithLabelValues("quota_exceeded", PolicyFor(kind)).Inc()
			log.Info("generation quota exceeded", "limit", adm.Limit, "used", adm.Used)
			return o.finish(kind, &Result{Status: StatusQuotaExceeded, Admission: adm}), nil
		}
	}

	// 3. 供应商调用
	outcome, err := o.generator.Generate(ctx, &entity.GenerationRequest{
		ActorID:     actorID,
		Kind:        kind,
		Params:      req.Params,
		Provider:    req.Provider,
		Model:       req.Model,
		RequestedAt: o.now(),
	})
	if err != nil {
		o.release(ctx, adm)
		if errors.Is(err, provider.ErrInvalidParams) {
			return o.finish(kind, &Result{Status: StatusInvalidParams, ErrorDetail: err.Error(), QuotaRemaining: entity.UnlimitedQuota}), nil
		}
		return o.finish(kind, &Result{Status: StatusProviderError, ErrorDetail: err.Error(), Admission: adm}), nil
	}

	// 4. 失败：释放预占，不计费
	if !outcome.Success {
		o.release(ctx, adm)
		log.Warn("provider call failed", "provider", outcome.Provider, "model", outcome.Model, "detail", outcome.ErrorDetail)
		return o.finish(kind, &Result{Status: StatusProviderError, Outcome: outcome, ErrorDetail: outcome.ErrorDetail, Admission: adm}), nil
	}

	// 5. 成功：计入已用
	remaining := entity.UnlimitedQuota
	if adm != nil {
		remaining, err = o.ledger.Commit(context.WithoutCancel(ctx), adm)
		if err != nil {
			logger.Error(ctx, "failed to commit quota after successful generation", err, "actor_id", actorID)
			remaining = adm.Remaining
		}
	}
	return o.finish(kind, &Result{Status: StatusSuccess, Outcome: outcome, QuotaRemaining: remaining, Admission: adm}), nil
}

func (o *Orchestrator) release(ctx context.Context, adm *quota.Admission) {
	if adm == nil {
		return
	}
	if err := o.ledger.Release(context.WithoutCancel(ctx), adm); err != nil {
		logger.Error(ctx, "failed to release quota reservation", err, "actor_id", adm.ActorID)
	}
}

func (o *Orchestrator) finish(kind entity.GenerationKind, res *Result) *Result {
	metrics.GenerationTotal.WithLabelValues(string(kind), string(res.Status)).Inc()
	return res
}
