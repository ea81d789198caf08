package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/infrastructure/persistence/redis"
)

func newRedisLimiter(t *testing.T, overrides map[string]Policy) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLimiter(redis.NewRateLimiter(redis.NewClientFromRedis(rdb)), overrides, true), mr
}

func TestKey_NormalizesSubject(t *testing.T) {
	assert.Equal(t, "ratelimit:generation:user@example.com", Key("generation", "  User@Example.COM "))
	assert.Equal(t, "ratelimit:caption:10.0.0.1", Key("caption", "10.0.0.1"))
}

func TestLimiter_MonotonicWindowScenario(t *testing.T) {
	l, mr := newRedisLimiter(t, nil)
	ctx := context.Background()
	policy := l.Policy("generation")
	require.Equal(t, 5, policy.MaxAttempts)

	for i := 1; i <= 5; i++ {
		d := l.Attempt(ctx, policy, "a1")
		require.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	mr.FastForward(30 * time.Second)
	d := l.Attempt(ctx, policy, "a1")
	assert.False(t, d.Allowed)
	assert.InDelta(t, 30*time.Second, d.RetryAfter, float64(time.Second))

	// 其他主体不受影响
	assert.True(t, l.Attempt(ctx, policy, "a2").Allowed)

	mr.FastForward(31 * time.Second)
	assert.True(t, l.Attempt(ctx, policy, "a1").Allowed)
}

func TestLimiter_ConcurrentAttemptsNeverExceedMax(t *testing.T) {
	l, mr := newRedisLimiter(t, nil)
	ctx := context.Background()
	policy := l.Policy("generation")

	for round := 0; round < 5; round++ {
		mr.FlushAll()
		var allowed atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if l.Attempt(ctx, policy, "a1").Allowed {
					allowed.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		require.Equal(t, int32(policy.MaxAttempts), allowed.Load(), "round %d", round)
	}

	d := l.Attempt(ctx, policy, "a1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_ClearOnAndOverrides(t *testing.T) {
	l, _ := newRedisLimiter(t, map[string]Policy{"login": {MaxAttempts: 1, Decay: time.Minute}})
	ctx := context.Background()
	login := l.Policy("login")
	assert.Equal(t, 1, login.MaxAttempts)

	assert.True(t, l.Attempt(ctx, login, "u@example.com").Allowed)
	assert.False(t, l.Check(ctx, login, "U@example.com").Allowed)

	l.ClearOn(ctx, login, "u@example.com")
	assert.True(t, l.Check(ctx, login, "u@example.com").Allowed)
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}
func (brokenStore) Attempts(context.Context, string) (int64, error) { return 0, errors.New("down") }
func (brokenStore) AvailableIn(context.Context, string) (time.Duration, error) {
	return 0, errors.New("down")
}
func (brokenStore) Clear(context.Context, string) error { return errors.New("down") }

func TestLimiter_FailsOpen(t *testing.T) {
	l := NewLimiter(brokenStore{}, nil, true)
	ctx := context.Background()

	assert.True(t, l.Attempt(ctx, PolicyCaption, "a1").Allowed)
	assert.True(t, l.Check(ctx, PolicyCaption, "a1").Allowed)
	l.ClearOn(ctx, PolicyCaption, "a1")
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(brokenStore{}, nil, false)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Attempt(context.Background(), PolicyOTPVerify, "x").Allowed)
	}
}

func TestDefaultPolicies(t *testing.T) {
	p := DefaultPolicies()
	assert.Equal(t, Policy{Name: "otp-send", MaxAttempts: 3, Decay: 10 * time.Minute}, p["otp-send"])
	assert.Equal(t, 15*time.Minute, p["login"].Decay)
	assert.Len(t, p, 6)
}
