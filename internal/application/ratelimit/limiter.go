// Package ratelimit 提供按动作与主体划分的固定窗口限流策略
package ratelimit

import (
	"context"
	"strings"
	"time"

	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
)

// Policy 命名限流策略
type Policy struct {
	Name        string
	MaxAttempts int
	Decay       time.Duration
}

// 内置策略；registration、login 与 otp 系列供认证层使用，登录成功后以 ClearOn 清除窗口
var (
	PolicyGeneration   = Policy{Name: "generation", MaxAttempts: 5, Decay: time.Minute}
	PolicyCaption      = Policy{Name: "caption", MaxAttempts: 3, Decay: time.Minute}
	PolicyRegistration = Policy{Name: "registration", MaxAttempts: 5, Decay: time.Hour}
	PolicyLogin        = Policy{Name: "login", MaxAttempts: 5, Decay: 15 * time.Minute}
	PolicyOTPSend      = Policy{Name: "otp-send", MaxAttempts: 3, Decay: 10 * time.Minute}
	PolicyOTPVerify    = Policy{Name: "otp-verify", MaxAttempts: 2, Decay: 5 * time.Minute}
)

// DefaultPolicies 内置策略表
func DefaultPolicies() map[string]Policy {
	out := make(map[string]Policy)
	for _, p := range []Policy{PolicyGeneration, PolicyCaption, PolicyRegistration, PolicyLogin, PolicyOTPSend, PolicyOTPVerify} {
		out[p.Name] = p
	}
	return out
}

// Key 构建限流键 ratelimit:{action}:{subject}
func Key(action, subject string) string {
	return "ratelimit:" + action + ":" + strings.ToLower(strings.TrimSpace(subject))
}

// Store 计数存储
type Store interface {
	Hit(ctx context.Context, key string, decay time.Duration) (int64, error)
	Attempts(ctx context.Context, key string) (int64, error)
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
	Clear(ctx context.Context, key string) error
}

// Decision 限流判定
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Limit      int
	Remaining  int
}

// Limiter 策略限流器，存储故障时放行
type Limiter struct {
	store    Store
	policies map[string]Policy
	enabled  bool
}

// NewLimiter 创建限流器，overrides 按名称覆盖内置策略
func NewLimiter(store Store, overrides map[string]Policy, enabled bool) *Limiter {
	policies := DefaultPolicies()
	for name, p := range overrides {
		if p.MaxAttempts <= 0 || p.Decay <= 0 {
			continue
		}
		p.Name = name
		policies[name] = p
	}
	return &Limiter{store: store, policies: policies, enabled: enabled}
}

// Policy 按名称获取策略，未知名称回落到 generation
func (l *Limiter) Policy(name string) Policy {
	if p, ok := l.policies[name]; ok {
		return p
	}
	return l.policies[PolicyGeneration.Name]
}

// Check 只检查不计数
func (l *Limiter) Check(ctx context.Context, policy Policy, subject string) Decision {
	if !l.enabled || l.store == nil {
		return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts}
	}
	key := Key(policy.Name, subject)

	attempts, err := l.store.Attempts(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limiter unavailable, allowing request", "policy", policy.Name, "error", err)
		return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts}
	}
	if attempts >= int64(policy.MaxAttempts) {
		return l.denied(ctx, policy, key)
	}
	return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts - int(attempts)}
}

// Attempt 记录一次命中并按命中后的计数判定。
// 计数由存储原子递增，并发请求不会同时越过上限；被拒绝的命中也计入窗口。
func (l *Limiter) Attempt(ctx context.Context, policy Policy, subject string) Decision {
	if !l.enabled || l.store == nil {
		return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts}
	}
	key := Key(policy.Name, subject)

	count, err := l.store.Hit(ctx, key, policy.Decay)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limiter unavailable, allowing request", "policy", policy.Name, "error", err)
		return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts}
	}
	if count > int64(policy.MaxAttempts) {
		return l.denied(ctx, policy, key)
	}
	return Decision{Allowed: true, Limit: policy.MaxAttempts, Remaining: policy.MaxAttempts - int(count)}
}

func (l *Limiter) denied(ctx context.Context, policy Policy, key string) Decision {
	retry, err := l.store.AvailableIn(ctx, key)
	if err != nil || retry <= 0 {
		retry = policy.Decay
	}
	metrics.AdmissionRejected.WithLabelValues("rate_limited", policy.Name).Inc()
	logger.FromContext(ctx).Debug("rate limited", "policy", policy.Name, "retry_after", retry)
	return Decision{Allowed: false, RetryAfter: retry, Limit: policy.MaxAttempts, Remaining: 0}
}

// ClearOn 清除某主体在策略下的计数
func (l *Limiter) ClearOn(ctx context.Context, policy Policy, subject string) {
	if l.store == nil {
		return
	}
	if err := l.store.Clear(ctx, Key(policy.Name, subject)); err != nil {
		logger.FromContext(ctx).Warn("failed to clear rate limit", "policy", policy.Name, "error", err)
	}
}
