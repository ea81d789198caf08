package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/domain/entity"
)

func TestResultCache_PutGetAndExpire(t *testing.T) {
	client, mr := newTestClient(t)
	rc := NewResultCache(NewCache(client), time.Hour)
	ctx := context.Background()

	_, found, err := rc.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.Put(ctx, &entity.JobResult{
		JobID:   "job-1",
		Status:  entity.JobStatusSucceeded,
		Outcome: &entity.GenerationOutcome{Success: true, Content: "hello"},
	}))
	assert.True(t, mr.Exists("genjob:result:job-1"))

	got, found, err := rc.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", got.Outcome.Content)

	// 重试覆盖
	require.NoError(t, rc.Put(ctx, &entity.JobResult{JobID: "job-1", Status: entity.JobStatusFailedPermanent, Permanent: true}))
	got, _, err = rc.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, got.Permanent)

	mr.FastForward(time.Hour + time.Second)
	_, found, err = rc.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResultCache_ConcurrentPolls(t *testing.T) {
	client, _ := newTestClient(t)
	rc := NewResultCache(NewCache(client), 0)
	ctx := context.Background()
	require.NoError(t, rc.Put(ctx, &entity.JobResult{JobID: "j", Status: entity.JobStatusSucceeded, Attempts: 1}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, found, err := rc.Get(ctx, "j")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 1, got.Attempts)
		}()
	}
	wg.Wait()
}

func TestResultCache_CancelledPollerDoesNotFailOthers(t *testing.T) {
	client, _ := newTestClient(t)
	rc := NewResultCache(NewCache(client), 0)
	require.NoError(t, rc.Put(context.Background(), &entity.JobResult{JobID: "j", Status: entity.JobStatusRunning}))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ctx := context.Background()
		if i%2 == 0 {
			ctx = cancelled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, found, err := rc.Get(ctx, "j")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, entity.JobStatusRunning, got.Status)
		}()
	}
	wg.Wait()
}

func TestCache_GetCorruptValue(t *testing.T) {
	client, mr := newTestClient(t)
	c := NewCache(client)
	require.NoError(t, mr.Set("bad", "{not json"))

	var dest map[string]any
	_, err := c.Get(context.Background(), "bad", &dest)
	assert.Error(t, err)
}
