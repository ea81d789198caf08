package provider

import (
	"math"
	"strings"

	"theme-gen-ai-api/internal/config"
)

// Price 每百万 token 的美元价格
type Price struct {
	Input  float64
	Output float64
}

// defaultPrices 内置价格表，key 为模型名（小写）
var defaultPrices = map[string]Price{
	"openai/gpt-4o-mini":               {Input: 0.15, Output: 0.60},
	"gpt-4o-mini":                      {Input: 0.15, Output: 0.60},
	"openai/gpt-4o":                    {Input: 2.50, Output: 10.00},
	"gpt-4o":                           {Input: 2.50, Output: 10.00},
	"anthropic/claude-3.5-haiku":       {Input: 0.80, Output: 4.00},
	"anthropic/claude-3.5-sonnet":      {Input: 3.00, Output: 15.00},
	"google/gemini-flash-1.5":          {Input: 0.075, Output: 0.30},
	"meta-llama/llama-3.1-8b-instruct": {Input: 0.05, Output: 0.05},
}

// PriceTable 模型价格表
type PriceTable struct {
	prices map[string]Price
}

// NewPriceTable 以内置价格为基础，应用配置覆盖
func NewPriceTable(overrides map[string]config.PriceConfig) *PriceTable {
	prices := make(map[string]Price, len(defaultPrices)+len(overrides))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		prices[normalize(k)] = Price{Input: v.Input, Output: v.Output}
	}
	return &PriceTable{prices: prices}
}

// Lookup 查询模型价格；未知模型与 :free 模型价格为 0
func (t *PriceTable) Lookup(model string) (Price, bool) {
	m := normalize(model)
	if m == "" || strings.HasSuffix(m, ":free") {
		return Price{}, false
	}
	if t == nil {
		return Price{}, false
	}
	p, ok := t.prices[m]
	return p, ok
}

// Estimate 估算一次调用的成本（美元），结果非负且只依赖入参
func (t *PriceTable) Estimate(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	cost := float64(max(inputTokens, 0))/1e6*math.Max(p.Input, 0) +
		float64(max(outputTokens, 0))/1e6*math.Max(p.Output, 0)
	return cost
}
