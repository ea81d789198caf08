// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/application/job"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// JobService 异步任务端口
type JobService interface {
	EnqueueGeneration(ctx context.Context, req job.EnqueueRequest) (*job.EnqueueResult, error)
	EnqueueBulk(ctx context.Context, actorID string, items []entity.GenerationParams, opts job.BulkOptions) (string, error)
	EnqueueTemplateBulk(ctx context.Context, actorID, theme string, count int, seed *uint64, opts job.BulkOptions) (string, error)
	PollResult(ctx context.Context, jobID string) (*entity.JobResult, bool, error)
}

// JobHandler 任务处理器
type JobHandler struct {
	cfg  *config.LLMConfig
	jobs JobService
}

// NewJobHandler 创建任务处理器
func NewJobHandler(cfg *config.LLMConfig, jobs JobService) *JobHandler {
	return &JobHandler{cfg: cfg, jobs: jobs}
}

// CreateJob 提交异步生成任务
// @Summary 提交异步生成任务
// @Tags Jobs
// @Accept json
// @Produce json
// @Param body body dto.CreateJobRequest true "生成参数"
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /v1/generation-jobs [post]
func (h *JobHandler) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	p, m, err := resolveProviderModel(h.cfg, req.Provider, req.Model)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	res, err := h.jobs.EnqueueGeneration(ctx, job.EnqueueRequest{
		ActorID:  currentActorID(c),
		ClientIP: c.ClientIP(),
		Kind:     req.GenerationKind(),
		Params:   req.Params(),
		Provider: p,
		Model:    m,
	})
	if err != nil {
		logger.Error(ctx, "failed to enqueue generation job", err)
		dto.Fail(c, err)
		return
	}

	rejection := &generation.Result{
		Status:      res.Status,
		RetryAfter:  res.RetryAfter,
		RateLimit:   res.RateLimit,
		Admission:   res.Admission,
		ErrorDetail: res.Error,
	}
	if writeAdmissionRejection(c, rejection) {
		return
	}
	dto.Accepted(c, dto.NewJobAcceptedResponse(res.JobID))
}

// GetJob 查询任务结果
// @Summary 查询任务结果
// @Tags Jobs
// @Produce json
// @Param jid path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResultResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/generation-jobs/{jid} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()

	result, cached, err := h.jobs.PollResult(ctx, dto.BindJobID(c))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.Success(c, dto.ToJobResultResponse(result, cached))
}
