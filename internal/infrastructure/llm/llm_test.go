package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/config"
)

type stubChatModel struct {
	calls int
	err   error
}

func (s *stubChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (s *stubChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
}

func TestBreakerChatModel_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubChatModel{err: errors.New("upstream 502")}
	b := NewBreakerChatModel("test-open", inner, config.BreakerConfig{
		ConsecutiveFailures: 2,
		OpenTimeout:         50 * time.Millisecond,
		HalfOpenRequests:    1,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Generate(ctx, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Generate(ctx, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the provider")

	// 半开探测成功后关闭
	time.Sleep(80 * time.Millisecond)
	inner.err = nil
	msg, err := b.Generate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerChatModel_CanceledDoesNotTrip(t *testing.T) {
	inner := &stubChatModel{err: context.Canceled}
	b := NewBreakerChatModel("test-cancel", inner, config.BreakerConfig{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 3, inner.calls)
}

func TestEinoFactory_LazyCacheAndModels(t *testing.T) {
	cfg := &config.LLMConfig{
		DefaultProvider: "openrouter",
		Providers: map[string]config.ProviderConfig{
			"openrouter": {Model: "openai/gpt-4o-mini", VisionModel: "openai/gpt-4o"},
			"openai":     {Model: "gpt-4o-mini"},
		},
	}
	built := 0
	f := NewEinoFactoryWithBuilder(cfg, func(_ context.Context, _ string, _ config.ProviderConfig) (model.BaseChatModel, error) {
		built++
		return &stubChatModel{}, nil
	})
	ctx := context.Background()

	m1, err := f.Default(ctx)
	require.NoError(t, err)
	m2, err := f.Get(ctx, "openrouter")
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, built)

	_, err = f.Get(ctx, "missing")
	assert.Error(t, err)

	assert.Equal(t, "openai/gpt-4o", f.VisionModel(""))
	assert.Equal(t, "gpt-4o-mini", f.VisionModel("openai"))
	assert.Equal(t, "gpt-4o-mini", f.TextModel("openai"))
}
