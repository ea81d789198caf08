// Package quota 提供主体每日生成额度的准入与记账
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/repository"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/pkg/metrics"
)

const dateLayout = "2006-01-02"

// 额度耗尽时给出的建议
const (
	SuggestUpgrade      = "upgrade"
	SuggestWaitForReset = "wait_for_reset"
)

// NeedsReset 判断是否跨日需要清零
func NeedsReset(lastResetDate, today string) bool {
	return lastResetDate != today
}

// Tiers 档位默认额度
type Tiers struct {
	Free    int
	Premium int
}

// Admission 一次准入结果，Allowed 时持有预占额度
type Admission struct {
	ActorID         string    `json:"-"`
	Cost            int       `json:"-"`
	Allowed         bool      `json:"allowed"`
	Remaining       int       `json:"remaining"`
	Limit           int       `json:"limit"`
	Used            int       `json:"used"`
	ResetAt         time.Time `json:"reset_at"`
	SuggestedAction string    `json:"suggested_action,omitempty"`

	reserved bool
}

// QuotaStatus 额度状态
type QuotaStatus struct {
	Limit     int       `json:"limit"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Unlimited bool      `json:"unlimited"`
	IsPremium bool      `json:"is_premium"`
}

// Ledger 额度账本
type Ledger struct {
	repo      repository.QuotaRepository
	tx        repository.Transactor
	directory service.ActorDirectory
	tiers     Tiers
	loc       *time.Location
	now       func() time.Time
}

// NewLedger 创建额度账本，tx 可为空
func NewLedger(repo repository.QuotaRepository, tx repository.Transactor, directory service.ActorDirectory, tiers Tiers, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		repo:      repo,
		tx:        tx,
		directory: directory,
		tiers:     tiers,
		loc:       loc,
		now:       time.Now,
	}
}

func (l *Ledger) today() string {
	return l.now().In(l.loc).Format(dateLayout)
}

// resetAt 下一个自然日零点
func (l *Ledger) resetAt() time.Time {
	now := l.now().In(l.loc)
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, l.loc)
}

// load 获取额度记录，不存在时按身份服务给出的档位创建，跨日时惰性清零
func (l *Ledger) load(ctx context.Context, actorID string) (*entity.ActorQuota, error) {
	today := l.today()

	q, err := l.repo.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q, err = l.create(ctx, actorID, today)
		if err != nil {
			return nil, err
		}
	}

	if NeedsReset(q.LastResetDate, today) {
		if _, err := l.repo.ResetIfStale(ctx, actorID, today); err != nil {
			return nil, err
		}
		if q, err = l.repo.Get(ctx, actorID); err != nil {
			return nil, err
		}
		if q == nil {
			return nil, fmt.Errorf("actor quota %s vanished after reset", actorID)
		}
	}
	return q, nil
}

func (l *Ledger) create(ctx context.Context, actorID, today string) (*entity.ActorQuota, error) {
	limit, premium := l.tiers.Free, false
	if l.directory != nil {
		actor, err := l.directory.Lookup(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup actor %s: %w", actorID, err)
		}
		if actor != nil {
			premium = actor.IsPremium
			limit = l.limitFor(actor)
		}
	}

	if err := l.repo.Ensure(ctx, &entity.ActorQuota{
		ActorID:       actorID,
		DailyLimit:    limit,
		LastResetDate: today,
		IsPremium:     premium,
	}); err != nil {
		return nil, err
	}

	q, err := l.repo.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("actor quota %s not created", actorID)
	}
	return q, nil
}

func (l *Ledger) limitFor(actor *service.Actor) int {
	if actor.DailyLimit != 0 {
		return actor.DailyLimit
	}
	if actor.IsPremium {
		return l.tiers.Premium
	}
	return l.tiers.Free
}

// CheckAndConsume 检查额度并预占 cost 个单位
// 额度不足是正常结果而非错误；只有 Commit 才真正计入已用。
func (l *Ledger) CheckAndConsume(ctx context.Context, actorID string, cost int) (*Admission, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, fmt.Errorf("actor id is required")
	}
	if cost <= 0 {
		cost = 1
	}

	q, err := l.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	adm := &Admission{
		ActorID: actorID,
		Cost:    cost,
		Limit:   q.DailyLimit,
		Used:    q.UsedToday,
		ResetAt: l.resetAt(),
	}

	if !q.Unlimited() && q.UsedToday+q.Reserved+cost > q.DailyLimit {
		return l.deny(adm, q), nil
	}

	ok, err := l.repo.Reserve(ctx, actorID, cost)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发请求抢先占用了剩余额度
		return l.deny(adm, q), nil
	}

	adm.Allowed = true
	adm.reserved = true
	if q.Unlimited() {
		adm.Remaining = entity.UnlimitedQuota
	} else {
		adm.Remaining = max(0, q.DailyLimit-q.UsedToday-q.Reserved-cost)
	}
	return adm, nil
}

// Precheck 只检查额度是否足够，不预占。用于异步入队，真正的准入在执行时完成。
func (l *Ledger) Precheck(ctx context.Context, actorID string, cost int) (*Admission, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, fmt.Errorf("actor id is required")
	}
	if cost <= 0 {
		cost = 1
	}
	q, err := l.load(ctx, actorID)
	if err != nil {
		return nil, err
	}
	adm := &Admission{
		ActorID: actorID,
		Cost:    cost,
		Limit:   q.DailyLimit,
		Used:    q.UsedToday,
		ResetAt: l.resetAt(),
	}
	if !q.Unlimited() && q.UsedToday+q.Reserved+cost > q.DailyLimit {
		return l.deny(adm, q), nil
	}
	adm.Allowed = true
	adm.Remaining = q.Remaining()
	return adm, nil
}

func (l *Ledger) deny(adm *Admission, q *entity.ActorQuota) *Admission {
	adm.Allowed = false
	adm.Remaining = 0
	adm.SuggestedAction = SuggestUpgrade
	if q.IsPremium {
		adm.SuggestedAction = SuggestWaitForReset
	}
	return adm
}

// Commit 生成成功后将预占计入已用，返回最新剩余额度
func (l *Ledger) Commit(ctx context.Context, adm *Admission) (int, error) {
	if adm == nil || !adm.reserved {
		return 0, fmt.Errorf("admission holds no reservation")
	}
	if err := l.repo.Commit(ctx, adm.ActorID, adm.Cost); err != nil {
		return 0, err
	}
	adm.reserved = false
	metrics.QuotaCommitted.Add(float64(adm.Cost))

	q, err := l.repo.Get(ctx, adm.ActorID)
	if err != nil || q == nil {
		// 已记账，剩余额度按准入时推算
		return adm.Remaining, nil
	}
	adm.Used = q.UsedToday
	adm.Remaining = q.Remaining()
	return adm.Remaining, nil
}

// Release 生成失败时释放预占，不计费
func (l *Ledger) Release(ctx context.Context, adm *Admission) error {
	if adm == nil || !adm.reserved {
		return nil
	}
	if err := l.repo.Release(ctx, adm.ActorID, adm.Cost); err != nil {
		return err
	}
	adm.reserved = false
	return nil
}

// Status 查询额度状态
func (l *Ledger) Status(ctx context.Context, actorID string) (*QuotaStatus, error) {
	q, err := l.load(ctx, strings.TrimSpace(actorID))
	if err != nil {
		return nil, err
	}
	return &QuotaStatus{
		Limit:     q.DailyLimit,
		Used:      q.UsedToday,
		Remaining: q.Remaining(),
		ResetAt:   l.resetAt(),
		Unlimited: q.Unlimited(),
		IsPremium: q.IsPremium,
	}, nil
}

// Reset 管理员清零当日已用
func (l *Ledger) Reset(ctx context.Context, actorID string) error {
	if _, err := l.load(ctx, actorID); err != nil {
		return err
	}
	return l.repo.Reset(ctx, actorID, l.today())
}

// Upgrade 升级为高级档位，newLimit 为 0 时使用高级档位默认额度
func (l *Ledger) Upgrade(ctx context.Context, actorID string, newLimit int) (*QuotaStatus, error) {
	if newLimit == 0 {
		newLimit = l.tiers.Premium
	}
	if newLimit < entity.UnlimitedQuota {
		return nil, fmt.Errorf("invalid daily limit %d", newLimit)
	}

	apply := func(ctx context.Context) error {
		if _, err := l.load(ctx, actorID); err != nil {
			return err
		}
		return l.repo.SetLimit(ctx, actorID, newLimit, true, l.today())
	}
	var err error
	if l.tx != nil {
		err = l.tx.WithTransaction(ctx, apply)
	} else {
		err = apply(ctx)
	}
	if err != nil {
		return nil, err
	}
	return l.Status(ctx, actorID)
}
