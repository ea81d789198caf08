package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"theme-gen-ai-api/internal/application/provider"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/application/ratelimit"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/infrastructure/persistence/postgres"
	"theme-gen-ai-api/internal/infrastructure/persistence/redis"
)

type fakeGenerator struct {
	calls   int
	fail    bool
	err     error
	content string
}

func (g *fakeGenerator) Generate(_ context.Context, req *entity.GenerationRequest) (*entity.GenerationOutcome, error) {
	g.calls++
	if err := provider.ValidateParams(req.Kind, req.Params); err != nil {
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.fail {
		return &entity.GenerationOutcome{Success: false, ErrorDetail: "upstream 503", Model: "m"}, nil
	}
	content := g.content
	if content == "" {
		content = "Happy birthday!"
	}
	return &entity.GenerationOutcome{Success: true, Content: content, OutputTokens: 5, Model: "m"}, nil
}

type fixture struct {
	orch   *Orchestrator
	gen    *fakeGenerator
	quotas *postgres.QuotaRepository
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:orch_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	client := postgres.NewClientFromDB(db)
	require.NoError(t, client.AutoMigrate(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	quotas := postgres.NewQuotaRepository(client)
	tiers := quota.Tiers{Free: 10, Premium: 100}
	ledger := quota.NewLedger(quotas, postgres.NewTxManager(client), quota.NewClaimsDirectory(tiers), tiers, time.UTC)
	limiter := ratelimit.NewLimiter(redis.NewRateLimiter(redis.NewClientFromRedis(rdb)), nil, true)
	gen := &fakeGenerator{}

	return &fixture{
		orch:   NewOrchestrator(limiter, ledger, gen),
		gen:    gen,
		quotas: quotas,
		mr:     mr,
	}
}

func (f *fixture) seedUsage(t *testing.T, actorID string, limit, used int) {
	t.Helper()
	require.NoError(t, f.quotas.Ensure(context.Background(), &entity.ActorQuota{
		ActorID:       actorID,
		DailyLimit:    limit,
		UsedToday:     used,
		LastResetDate: time.Now().UTC().Format("2006-01-02"),
	}))
}

func textReq(actorID string) Request {
	return Request{
		ActorID: actorID,
		Kind:    entity.GenerationKindText,
		Params:  entity.GenerationParams{Theme: "birthday", Style: "casual", Length: "short"},
	}
}

func TestRequestGeneration_LastUnitScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUsage(t, "a1", 10, 9)

	res, err := f.orch.RequestGeneration(ctx, textReq("a1"), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 0, res.QuotaRemaining)

	q, err := f.quotas.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 10, q.UsedToday)
	assert.Equal(t, 0, q.Reserved)

	res, err = f.orch.RequestGeneration(ctx, textReq("a1"), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusQuotaExceeded, res.Status)
	require.NotNil(t, res.Admission)
	assert.Equal(t, 0, res.Admission.Remaining)
	assert.Equal(t, quota.SuggestUpgrade, res.Admission.SuggestedAction)
	assert.Equal(t, 1, f.gen.calls, "quota-denied request must not reach the provider")
}

func TestRequestGeneration_NoChargeOnProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUsage(t, "a2", 10, 3)
	f.gen.fail = true

	res, err := f.orch.RequestGeneration(ctx, textReq("a2"), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusProviderError, res.Status)
	assert.Equal(t, "upstream 503", res.ErrorDetail)

	q, err := f.quotas.Get(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, 3, q.UsedToday)
	assert.Equal(t, 0, q.Reserved)
}

func TestRequestGeneration_GeneratorErrorReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUsage(t, "a3", 10, 0)
	f.gen.err = errors.New("boom")

	res, err := f.orch.RequestGeneration(ctx, textReq("a3"), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusProviderError, res.Status)

	q, err := f.quotas.Get(ctx, "a3")
	require.NoError(t, err)
	assert.Equal(t, 0, q.UsedToday)
	assert.Equal(t, 0, q.Reserved)
}

func TestRequestGeneration_RateLimitedBeforeQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := f.orch.RequestGeneration(ctx, textReq("a4"), Options{})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status, "request %d", i+1)
	}

	f.mr.FastForward(30 * time.Second)
	res, err := f.orch.RequestGeneration(ctx, textReq("a4"), Options{})
	require.NoError(t, err)
	require.Equal(t, StatusRateLimited, res.Status)
	assert.InDelta(t, 30*time.Second, res.RetryAfter, float64(time.Second))
	assert.Equal(t, 5, f.gen.calls)

	q, err := f.quotas.Get(ctx, "a4")
	require.NoError(t, err)
	assert.Equal(t, 5, q.UsedToday)

	// 同步调用方可以跳过限流
	res, err = f.orch.RequestGeneration(ctx, textReq("a4"), Options{SkipRateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)

	f.mr.FastForward(31 * time.Second)
	res, err = f.orch.RequestGeneration(ctx, textReq("a4"), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestRequestGeneration_AnonymousUsesIPAndSkipsQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := Request{
		ClientIP: "203.0.113.7",
		Kind:     entity.GenerationKindImage,
		Params:   entity.GenerationParams{ImageURL: "https://cdn.example.com/a.jpg"},
	}
	for i := 0; i < 3; i++ {
		res, err := f.orch.RequestGeneration(ctx, req, Options{})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, entity.UnlimitedQuota, res.QuotaRemaining)
	}
	res, err := f.orch.RequestGeneration(ctx, req, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, res.Status)
	assert.True(t, f.mr.Exists("ratelimit:caption:203.0.113.7"))
}

func TestRequestGeneration_InvalidParams(t *testing.T) {
	f := newFixture(t)
	req := textReq("a5")
	req.Params.Length = "epic"

	res, err := f.orch.RequestGeneration(context.Background(), req, Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidParams, res.Status)
	assert.Zero(t, f.gen.calls)
	assert.False(t, f.mr.Exists("ratelimit:generation:a5"))
}

func TestRequestGeneration_UnlimitedActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedUsage(t, "vip", entity.UnlimitedQuota, 500)

	res, err := f.orch.RequestGeneration(ctx, textReq("vip"), Options{SkipRateLimit: true})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, entity.UnlimitedQuota, res.QuotaRemaining)
}
