package entity

import "time"

// GenerationKind 生成类型
type GenerationKind string

const (
	GenerationKindText  GenerationKind = "text_generation"
	GenerationKindImage GenerationKind = "image_analysis"
)

// Valid 是否为已知类型
func (k GenerationKind) Valid() bool {
	return k == GenerationKindText || k == GenerationKindImage
}

// GenerationParams 生成参数
type GenerationParams struct {
	Theme   string `json:"theme,omitempty"`
	Style   string `json:"style,omitempty"`
	Length  string `json:"length,omitempty"`
	Context string `json:"context,omitempty"`
	// ImageURL 图片地址或 data URI
	ImageURL string `json:"image_url,omitempty"`
}

// GenerationRequest 一次生成请求
type GenerationRequest struct {
	ActorID     string           `json:"actor_id,omitempty"`
	Kind        GenerationKind   `json:"kind"`
	Params      GenerationParams `json:"params"`
	Provider    string           `json:"provider,omitempty"`
	Model       string           `json:"model,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
}

// ImageAnalysis 图片分析结构化结果
type ImageAnalysis struct {
	Description     string   `json:"description"`
	SuggestedThemes []string `json:"suggested_themes"`
	Mood            string   `json:"mood"`
	Confidence      float64  `json:"confidence"`
}

// GenerationOutcome 一次供应商调用的结果，失败时 ErrorDetail 非空
type GenerationOutcome struct {
	Success           bool           `json:"success"`
	Content           string         `json:"content,omitempty"`
	Analysis          *ImageAnalysis `json:"analysis,omitempty"`
	InputTokens       int            `json:"input_tokens"`
	OutputTokens      int            `json:"output_tokens"`
	CostEstimate      float64        `json:"cost_estimate"`
	ProviderLatencyMs int64          `json:"provider_latency_ms"`
	ErrorDetail       string         `json:"error_detail,omitempty"`
	Provider          string         `json:"provider,omitempty"`
	Model             string         `json:"model,omitempty"`
	AuditLogID        string         `json:"audit_log_id,omitempty"`
}
