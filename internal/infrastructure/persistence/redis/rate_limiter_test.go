package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	client, mr := newTestClient(t)
	l := NewRateLimiter(client)
	ctx := context.Background()
	key := "ratelimit:generation:a1"

	for i := 1; i <= 5; i++ {
		tooMany, err := l.TooMany(ctx, key, 5)
		require.NoError(t, err)
		assert.False(t, tooMany, "hit %d", i)

		count, err := l.Hit(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, i, count)
	}

	tooMany, err := l.TooMany(ctx, key, 5)
	require.NoError(t, err)
	assert.True(t, tooMany)

	// 后续命中不延长窗口
	mr.FastForward(30 * time.Second)
	_, err = l.Hit(ctx, key, time.Minute)
	require.NoError(t, err)
	retry, err := l.AvailableIn(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, 30*time.Second, retry, float64(time.Second))

	mr.FastForward(31 * time.Second)
	tooMany, err = l.TooMany(ctx, key, 5)
	require.NoError(t, err)
	assert.False(t, tooMany)

	attempts, err := l.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestRateLimiter_Clear(t *testing.T) {
	client, _ := newTestClient(t)
	l := NewRateLimiter(client)
	ctx := context.Background()

	_, err := l.Hit(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Clear(ctx, "k"))

	attempts, err := l.Attempts(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, attempts)

	retry, err := l.AvailableIn(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, retry)
}
