// Package llm 提供 LLM 供应商客户端（Eino ChatModel + 熔断）
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"theme-gen-ai-api/internal/config"
)

// EinoFactory 管理多个供应商的 Eino ChatModel 客户端实例，每个实例外包一层熔断器
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex

	// build 创建底层 ChatModel，测试中可替换
	build func(ctx context.Context, name string, cfg config.ProviderConfig) (model.BaseChatModel, error)
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		config: cfg,
		models: make(map[string]model.BaseChatModel),
		build:  newOpenAIChatModel,
	}
}

// NewEinoFactoryWithBuilder 使用自定义构造函数创建工厂
func NewEinoFactoryWithBuilder(cfg *config.LLMConfig, build func(ctx context.Context, name string, cfg config.ProviderConfig) (model.BaseChatModel, error)) *EinoFactory {
	f := NewEinoFactory(cfg)
	if build != nil {
		f.build = build
	}
	return f
}

// Get 获取指定供应商的 ChatModel，未指定时返回默认供应商
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name = f.ResolveProvider(name)

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	chatModel, err := f.build(ctx, name, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	wrapped := NewBreakerChatModel(name, chatModel, f.config.Breaker)
	f.models[name] = wrapped
	return wrapped, nil
}

// Default 返回默认 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

// ResolveProvider 空名称时回落到默认供应商
func (f *EinoFactory) ResolveProvider(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return f.config.DefaultProvider
	}
	return name
}

// TextModel 返回供应商的文本模型名
func (f *EinoFactory) TextModel(provider string) string {
	return f.config.Providers[f.ResolveProvider(provider)].Model
}

// VisionModel 返回供应商的多模态模型名，未配置时使用文本模型
func (f *EinoFactory) VisionModel(provider string) string {
	p := f.config.Providers[f.ResolveProvider(provider)]
	if strings.TrimSpace(p.VisionModel) != "" {
		return p.VisionModel
	}
	return p.Model
}

// newOpenAIChatModel 使用 Eino 的 OpenAI 适配器（兼容 OpenRouter 等 OpenAI 协议网关）
func newOpenAIChatModel(ctx context.Context, _ string, providerCfg config.ProviderConfig) (model.BaseChatModel, error) {
	cfg := &openai.ChatModelConfig{
		APIKey:  providerCfg.APIKey,
		BaseURL: providerCfg.BaseURL,
		Model:   providerCfg.Model,
		Timeout: providerCfg.Timeout,
	}
	if providerCfg.MaxTokens > 0 {
		cfg.MaxTokens = &providerCfg.MaxTokens
	}
	if providerCfg.Temperature > 0 {
		cfg.Temperature = ptrFloat32(float32(providerCfg.Temperature))
	}
	return openai.NewChatModel(ctx, cfg)
}

func ptrFloat32(f float32) *float32 {
	return &f
}
