// Package handler 提供 HTTP 请求处理器
package handler

import (
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"
	"theme-gen-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AdminHandler 管理员处理器
type AdminHandler struct {
	jobs  JobService
	quota QuotaService
}

// NewAdminHandler 创建管理员处理器
func NewAdminHandler(jobs JobService, q QuotaService) *AdminHandler {
	return &AdminHandler{jobs: jobs, quota: q}
}

// CreateBulkJob 提交批量生成任务
// @Summary 批量生成
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body dto.CreateBulkJobRequest true "批量参数"
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Router /v1/admin/bulk-jobs [post]
func (h *AdminHandler) CreateBulkJob(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateBulkJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	jobID, err := h.jobs.EnqueueBulk(ctx, currentActorID(c), req.ParamsList(), req.Options())
	if err != nil {
		logger.Error(ctx, "failed to enqueue bulk job", err, "items", len(req.Items))
		dto.Fail(c, err)
		return
	}
	dto.Accepted(c, dto.NewJobAcceptedResponse(jobID))
}

// CreateTemplateBulkJob 按主题随机组合风格与长度批量生成
// @Summary 主题批量生成
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body dto.CreateTemplateBulkJobRequest true "批量参数"
// @Success 202 {object} dto.Response[dto.JobAcceptedResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/admin/template-bulk-jobs [post]
func (h *AdminHandler) CreateTemplateBulkJob(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateTemplateBulkJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	jobID, err := h.jobs.EnqueueTemplateBulk(ctx, currentActorID(c), req.Theme, req.Count, req.Seed, req.Options())
	if err != nil {
		logger.Error(ctx, "failed to enqueue template bulk job", err, "theme", req.Theme)
		dto.Fail(c, err)
		return
	}
	dto.Accepted(c, dto.NewJobAcceptedResponse(jobID))
}

// ResetQuota 清零主体当日已用额度
// @Summary 重置额度
// @Tags Admin
// @Produce json
// @Param aid path string true "主体 ID"
// @Success 200 {object} dto.Response[dto.QuotaStatusResponse]
// @Router /v1/admin/actors/{aid}/quota/reset [post]
func (h *AdminHandler) ResetQuota(c *gin.Context) {
	ctx := c.Request.Context()
	actorID := dto.BindActorID(c)
	if actorID == "" {
		dto.BadRequest(c, "actor id is required")
		return
	}

	if err := h.quota.Reset(ctx, actorID); err != nil {
		logger.Error(ctx, "failed to reset quota", err, "target_actor", actorID)
		dto.Fail(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to reset quota"))
		return
	}
	logger.Info(ctx, "quota reset by admin", "target_actor", actorID)

	status, err := h.quota.Status(ctx, actorID)
	if err != nil {
		dto.Fail(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to load quota"))
		return
	}
	dto.Success(c, dto.ToQuotaStatusResponse(actorID, status))
}

// UpgradeQuota 升级主体为高级档位
// @Summary 升级额度
// @Tags Admin
// @Accept json
// @Produce json
// @Param aid path string true "主体 ID"
// @Param body body dto.UpgradeQuotaRequest false "新额度"
// @Success 200 {object} dto.Response[dto.QuotaStatusResponse]
// @Router /v1/admin/actors/{aid}/quota/upgrade [post]
func (h *AdminHandler) UpgradeQuota(c *gin.Context) {
	ctx := c.Request.Context()
	actorID := dto.BindActorID(c)
	if actorID == "" {
		dto.BadRequest(c, "actor id is required")
		return
	}

	var req dto.UpgradeQuotaRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	status, err := h.quota.Upgrade(ctx, actorID, req.DailyLimit)
	if err != nil {
		logger.Error(ctx, "failed to upgrade quota", err, "target_actor", actorID)
		dto.Fail(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to upgrade quota"))
		return
	}
	logger.Info(ctx, "quota upgraded by admin", "target_actor", actorID, "daily_limit", status.Limit)
	dto.Success(c, dto.ToQuotaStatusResponse(actorID, status))
}
