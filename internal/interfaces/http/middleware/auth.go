// Package middleware 提供 HTTP 中间件
package middleware

import (
	stderrors "errors"
	"strings"

	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"
	"theme-gen-ai-api/pkg/logger"
	"theme-gen-ai-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// Optional 为 true 时无 Authorization 头按匿名放行，携带无效 Token 仍拒绝
	Optional bool
}

// Auth 认证中间件，将 JWT 声明转换为主体并注入上下文
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if cfg.Optional {
				c.Next()
				return
			}
			dto.AbortFail(c, errors.ErrTokenMissing)
			return
		}

		// 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			dto.AbortFail(c, errors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if stderrors.Is(err, utils.ErrExpiredToken) {
				dto.AbortFail(c, errors.ErrTokenExpired)
				return
			}
			dto.AbortFail(c, errors.ErrTokenInvalid)
			return
		}

		// 确保是 AccessToken
		if claims.Type != "access" || strings.TrimSpace(claims.ActorID) == "" {
			dto.AbortFail(c, errors.ErrTokenInvalid.WithDetail("invalid token type"))
			return
		}

		actor := &service.Actor{
			ID:         strings.TrimSpace(claims.ActorID),
			Role:       claims.Role,
			DailyLimit: claims.DailyLimit,
			IsPremium:  claims.Premium,
		}
		c.Set("actor_id", actor.ID)
		c.Set("role", actor.Role)

		ctx := service.WithActor(c.Request.Context(), actor)
		ctx = logger.WithContext(ctx, logger.ActorIDKey, actor.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
