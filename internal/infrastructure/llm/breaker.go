package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	gobreaker "github.com/sony/gobreaker/v2"

	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/metrics"
)

// ErrProviderUnavailable 熔断打开或半开探测已满，调用被快速拒绝
var ErrProviderUnavailable = errors.New("llm provider circuit open")

// BreakerChatModel 为 ChatModel 增加熔断保护。
// 连续失败达到阈值后打开，OpenTimeout 之后放行半开探测，探测成功则关闭。
type BreakerChatModel struct {
	name  string
	inner model.BaseChatModel
	cb    *gobreaker.CircuitBreaker[*schema.Message]
}

// NewBreakerChatModel 创建带熔断器的 ChatModel
func NewBreakerChatModel(name string, inner model.BaseChatModel, cfg config.BreakerConfig) *BreakerChatModel {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}

	metrics.LLMBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*schema.Message](gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Default().Info("llm breaker state transition",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.LLMBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		// 调用方取消不计为供应商失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerChatModel{name: name, inner: inner, cb: cb}
}

// Generate 在熔断器保护下调用底层模型
func (b *BreakerChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msg, err := b.cb.Execute(func() (*schema.Message, error) {
		return b.inner.Generate(ctx, input, opts...)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, b.name)
		}
		return nil, err
	}
	return msg, nil
}

// Stream 只对建立流的阶段计入熔断
func (b *BreakerChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var reader *schema.StreamReader[*schema.Message]
	_, err := b.cb.Execute(func() (*schema.Message, error) {
		r, err := b.inner.Stream(ctx, input, opts...)
		if err != nil {
			return nil, err
		}
		reader = r
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, b.name)
		}
		return nil, err
	}
	return reader, nil
}

// State 返回当前熔断状态
func (b *BreakerChatModel) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
