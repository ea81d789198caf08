package dto

import (
	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/domain/entity"
)

// TextGenerationRequest 文案生成请求
type TextGenerationRequest struct {
	Theme    string `json:"theme" binding:"required"`
	Style    string `json:"style"`
	Length   string `json:"length"`
	Context  string `json:"context"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Params 转换为生成参数，风格与长度缺省为 casual / medium
func (r *TextGenerationRequest) Params() entity.GenerationParams {
	p := entity.GenerationParams{Theme: r.Theme, Style: r.Style, Length: r.Length, Context: r.Context}
	if p.Style == "" {
		p.Style = "casual"
	}
	if p.Length == "" {
		p.Length = "medium"
	}
	return p
}

// ImageAnalysisRequest 图片分析请求
type ImageAnalysisRequest struct {
	ImageURL string `json:"image_url" binding:"required"`
	Context  string `json:"context"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Params 转换为生成参数
func (r *ImageAnalysisRequest) Params() entity.GenerationParams {
	return entity.GenerationParams{ImageURL: r.ImageURL, Context: r.Context}
}

// GenerationResponse 同步生成响应
type GenerationResponse struct {
	Content        string                `json:"content,omitempty"`
	Analysis       *entity.ImageAnalysis `json:"analysis,omitempty"`
	InputTokens    int                   `json:"input_tokens"`
	OutputTokens   int                   `json:"output_tokens"`
	CostEstimate   float64               `json:"cost_estimate"`
	LatencyMs      int64                 `json:"latency_ms"`
	Provider       string                `json:"provider,omitempty"`
	Model          string                `json:"model,omitempty"`
	QuotaRemaining *int                  `json:"quota_remaining,omitempty"`
}

// ToGenerationResponse 将编排结果转换为响应 DTO
func ToGenerationResponse(res *generation.Result) *GenerationResponse {
	if res == nil || res.Outcome == nil {
		return nil
	}
	o := res.Outcome
	resp := &GenerationResponse{
		Content:      o.Content,
		Analysis:     o.Analysis,
		InputTokens:  o.InputTokens,
		OutputTokens: o.OutputTokens,
		CostEstimate: o.CostEstimate,
		LatencyMs:    o.ProviderLatencyMs,
		Provider:     o.Provider,
		Model:        o.Model,
	}
	if res.QuotaRemaining >= 0 {
		remaining := res.QuotaRemaining
		resp.QuotaRemaining = &remaining
	}
	return resp
}
