// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// QuotaService 额度查询与管理端口
type QuotaService interface {
	Status(ctx context.Context, actorID string) (*quota.QuotaStatus, error)
	Reset(ctx context.Context, actorID string) error
	Upgrade(ctx context.Context, actorID string, newLimit int) (*quota.QuotaStatus, error)
}

// QuotaHandler 额度处理器
type QuotaHandler struct {
	quota QuotaService
}

// NewQuotaHandler 创建额度处理器
func NewQuotaHandler(q QuotaService) *QuotaHandler {
	return &QuotaHandler{quota: q}
}

// GetQuota 查询当前主体额度
// @Summary 查询额度
// @Tags Quota
// @Produce json
// @Success 200 {object} dto.Response[dto.QuotaStatusResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/quota [get]
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	actorID := currentActorID(c)
	if actorID == "" {
		dto.Fail(c, errors.ErrUnauthorized)
		return
	}

	status, err := h.quota.Status(c.Request.Context(), actorID)
	if err != nil {
		dto.Fail(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to load quota"))
		return
	}
	dto.Success(c, dto.ToQuotaStatusResponse(actorID, status))
}
