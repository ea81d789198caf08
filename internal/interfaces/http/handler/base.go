package handler

import (
	"fmt"
	"strings"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// resolveProviderModel 校验调用方指定的 Provider 和 Model，空值交由下游取默认
func resolveProviderModel(cfg *config.LLMConfig, provider, model string) (string, string, error) {
	p := strings.TrimSpace(provider)
	m := strings.TrimSpace(model)
	if len(p) > 32 {
		return "", "", fmt.Errorf("llm provider too long")
	}
	if len(m) > 64 {
		return "", "", fmt.Errorf("llm model too long")
	}
	if p != "" && cfg != nil {
		if _, ok := cfg.Providers[p]; !ok {
			return "", "", fmt.Errorf("llm provider not found: %s", p)
		}
	}
	return p, m, nil
}

// currentActorID 当前认证主体，匿名请求返回空
func currentActorID(c *gin.Context) string {
	if actor, ok := service.ActorFromContext(c.Request.Context()); ok {
		return actor.ID
	}
	return ""
}

// writeAdmissionRejection 输出准入拒绝；非拒绝状态返回 false
func writeAdmissionRejection(c *gin.Context, res *generation.Result) bool {
	switch res.Status {
	case generation.StatusRateLimited:
		limit := 0
		if res.RateLimit != nil {
			limit = res.RateLimit.Limit
		}
		dto.RateLimited(c, limit, res.RetryAfter)
	case generation.StatusQuotaExceeded:
		adm := res.Admission
		if adm == nil {
			dto.Fail(c, errors.ErrQuotaExceeded)
			return true
		}
		dto.QuotaExceeded(c, adm.Limit, adm.Used, adm.ResetAt, adm.SuggestedAction)
	case generation.StatusInvalidParams:
		dto.BadRequest(c, res.ErrorDetail)
	default:
		return false
	}
	return true
}
