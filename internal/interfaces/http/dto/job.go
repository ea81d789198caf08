package dto

import (
	"time"

	"theme-gen-ai-api/internal/application/job"
	"theme-gen-ai-api/internal/domain/entity"
)

// CreateJobRequest 异步生成请求
type CreateJobRequest struct {
	Kind     string `json:"kind"`
	Theme    string `json:"theme"`
	Style    string `json:"style"`
	Length   string `json:"length"`
	Context  string `json:"context"`
	ImageURL string `json:"image_url"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// GenerationKind 请求类型，缺省为文案生成
func (r *CreateJobRequest) GenerationKind() entity.GenerationKind {
	switch r.Kind {
	case "", "text", string(entity.GenerationKindText):
		return entity.GenerationKindText
	case "image", string(entity.GenerationKindImage):
		return entity.GenerationKindImage
	default:
		return entity.GenerationKind(r.Kind)
	}
}

// Params 转换为生成参数
func (r *CreateJobRequest) Params() entity.GenerationParams {
	p := entity.GenerationParams{
		Theme:    r.Theme,
		Style:    r.Style,
		Length:   r.Length,
		Context:  r.Context,
		ImageURL: r.ImageURL,
	}
	if r.GenerationKind() == entity.GenerationKindText {
		if p.Style == "" {
			p.Style = "casual"
		}
		if p.Length == "" {
			p.Length = "medium"
		}
	}
	return p
}

// BulkItemRequest 批量任务单项
type BulkItemRequest struct {
	Theme   string `json:"theme" binding:"required"`
	Style   string `json:"style" binding:"required"`
	Length  string `json:"length" binding:"required"`
	Context string `json:"context"`
}

// BulkOptionsRequest 批量任务选项
type BulkOptionsRequest struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Materialize *bool  `json:"materialize"`
	ItemDelayMs int    `json:"item_delay_ms" binding:"gte=0"`
}

// Options 转换为任务选项
func (r BulkOptionsRequest) Options() job.BulkOptions {
	return job.BulkOptions{
		Provider:    r.Provider,
		Model:       r.Model,
		Materialize: r.Materialize,
		ItemDelayMs: r.ItemDelayMs,
	}
}

// CreateBulkJobRequest 管理员批量任务请求
type CreateBulkJobRequest struct {
	Items []BulkItemRequest `json:"items" binding:"required,dive"`
	BulkOptionsRequest
}

// ParamsList 转换为参数列表
func (r *CreateBulkJobRequest) ParamsList() []entity.GenerationParams {
	out := make([]entity.GenerationParams, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, entity.GenerationParams{Theme: it.Theme, Style: it.Style, Length: it.Length, Context: it.Context})
	}
	return out
}

// CreateTemplateBulkJobRequest 管理员按主题批量生成请求
type CreateTemplateBulkJobRequest struct {
	Theme string  `json:"theme" binding:"required"`
	Count int     `json:"count" binding:"required,gt=0"`
	Seed  *uint64 `json:"seed"`
	BulkOptionsRequest
}

// JobAcceptedResponse 入队响应
type JobAcceptedResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	PollURL string `json:"poll_url"`
}

// NewJobAcceptedResponse 创建入队响应
func NewJobAcceptedResponse(jobID string) *JobAcceptedResponse {
	return &JobAcceptedResponse{
		JobID:   jobID,
		Status:  string(entity.JobStatusPending),
		PollURL: "/v1/generation-jobs/" + jobID,
	}
}

// JobResultResponse 任务结果响应
type JobResultResponse struct {
	JobID      string                    `json:"job_id"`
	JobType    string                    `json:"job_type"`
	Status     string                    `json:"status"`
	Done       bool                      `json:"done"`
	Permanent  bool                      `json:"permanent"`
	Attempts   int                       `json:"attempts"`
	Progress   int                       `json:"progress"`
	Outcome    *entity.GenerationOutcome `json:"outcome,omitempty"`
	Summary    *entity.BulkSummary       `json:"summary,omitempty"`
	Error      string                    `json:"error,omitempty"`
	FinishedAt *time.Time                `json:"finished_at,omitempty"`
	Cached     bool                      `json:"cached"`
}

// ToJobResultResponse 将任务结果转换为响应 DTO
func ToJobResultResponse(r *entity.JobResult, cached bool) *JobResultResponse {
	if r == nil {
		return nil
	}
	return &JobResultResponse{
		JobID:      r.JobID,
		JobType:    string(r.JobType),
		Status:     string(r.Status),
		Done:       r.Status.Terminal(),
		Permanent:  r.Permanent,
		Attempts:   r.Attempts,
		Progress:   r.Progress,
		Outcome:    r.Outcome,
		Summary:    r.Summary,
		Error:      r.Error,
		FinishedAt: r.FinishedAt,
		Cached:     cached,
	}
}
