// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"
	"theme-gen-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Orchestrator 同步生成编排端口
type Orchestrator interface {
	RequestGeneration(ctx context.Context, req generation.Request, opts generation.Options) (*generation.Result, error)
}

// GenerationHandler 同步生成处理器
type GenerationHandler struct {
	cfg  *config.LLMConfig
	orch Orchestrator
}

// NewGenerationHandler 创建同步生成处理器
func NewGenerationHandler(cfg *config.LLMConfig, orch Orchestrator) *GenerationHandler {
	return &GenerationHandler{cfg: cfg, orch: orch}
}

// GenerateText 生成主题文案
// @Summary 生成主题文案
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body dto.TextGenerationRequest true "生成参数"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/generations/text [post]
func (h *GenerationHandler) GenerateText(c *gin.Context) {
	var req dto.TextGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.generate(c, entity.GenerationKindText, req.Params(), req.Provider, req.Model)
}

// AnalyzeImage 分析图片并给出主题建议
// @Summary 图片分析
// @Tags Generations
// @Accept json
// @Produce json
// @Param body body dto.ImageAnalysisRequest true "图片参数"
// @Success 200 {object} dto.Response[dto.GenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/generations/image [post]
func (h *GenerationHandler) AnalyzeImage(c *gin.Context) {
	var req dto.ImageAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.generate(c, entity.GenerationKindImage, req.Params(), req.Provider, req.Model)
}

func (h *GenerationHandler) generate(c *gin.Context, kind entity.GenerationKind, params entity.GenerationParams, provider, model string) {
	ctx := c.Request.Context()

	p, m, err := resolveProviderModel(h.cfg, provider, model)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	res, err := h.orch.RequestGeneration(ctx, generation.Request{
		ActorID:  currentActorID(c),
		ClientIP: c.ClientIP(),
		Kind:     kind,
		Params:   params,
		Provider: p,
		Model:    m,
	}, generation.Options{})
	if err != nil {
		logger.Error(ctx, "generation request failed", err, "kind", string(kind))
		dto.Fail(c, err)
		return
	}

	if writeAdmissionRejection(c, res) {
		return
	}
	if res.Status == generation.StatusProviderError {
		// 供应商细节只进日志
		logger.Warn(ctx, "generation provider failure", "kind", string(kind), "detail", res.ErrorDetail)
		dto.Fail(c, errors.ErrProviderFailure)
		return
	}
	dto.Success(c, dto.ToGenerationResponse(res))
}
