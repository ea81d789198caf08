// Package job 提供异步生成任务的入队、执行、重试与结果查询
package job

import (
	"errors"
	"time"

	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
)

// ErrRetryLater 本次尝试失败但仍可重试，队列应重新投递
var ErrRetryLater = errors.New("job attempt failed, retry later")

// RetryPolicy 任务类别的重试策略
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	// FailAfter 自首次尝试起的总时长上限，0 表示不限
	FailAfter time.Duration
	Backoff   time.Duration
}

// 内置策略
var (
	SinglePolicy = RetryPolicy{MaxAttempts: 3, Timeout: 120 * time.Second, FailAfter: 10 * time.Minute, Backoff: 5 * time.Second}
	BulkPolicy   = RetryPolicy{MaxAttempts: 1, Timeout: 3600 * time.Second}
)

// Policies 按任务类别划分的策略
type Policies struct {
	Single RetryPolicy
	Bulk   RetryPolicy
}

// DefaultPolicies 内置策略表
func DefaultPolicies() Policies {
	return Policies{Single: SinglePolicy, Bulk: BulkPolicy}
}

// PoliciesFromConfig 以配置覆盖内置策略，非法值保留默认
func PoliciesFromConfig(cfg config.JobsConfig) Policies {
	return Policies{
		Single: mergePolicy(SinglePolicy, cfg.Single),
		Bulk:   mergePolicy(BulkPolicy, cfg.Bulk),
	}
}

func mergePolicy(base RetryPolicy, c config.RetryPolicyConfig) RetryPolicy {
	if c.MaxAttempts > 0 {
		base.MaxAttempts = c.MaxAttempts
	}
	if c.Timeout > 0 {
		base.Timeout = c.Timeout
	}
	if c.FailAfter > 0 {
		base.FailAfter = c.FailAfter
	}
	if c.Backoff > 0 {
		base.Backoff = c.Backoff
	}
	return base
}

// For 返回任务类型对应的策略
func (p Policies) For(jobType entity.JobType) RetryPolicy {
	if jobType.IsBulk() {
		return p.Bulk
	}
	return p.Single
}

// apply 将策略写入任务记录
func (p RetryPolicy) apply(job *entity.GenerationJob) {
	job.MaxAttempts = p.MaxAttempts
	job.TimeoutSeconds = int(p.Timeout / time.Second)
	job.FailAfterSeconds = int(p.FailAfter / time.Second)
}
