// Package middleware 提供 HTTP 中间件
package middleware

import (
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/pkg/errors"

	"github.com/gin-gonic/gin"
)

// 角色常量
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RequireRole 角色检查中间件
// 检查当前主体是否为指定角色之一，否则返回 403
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		actor, ok := service.ActorFromContext(c.Request.Context())
		if !ok {
			dto.AbortFail(c, errors.ErrUnauthorized)
			return
		}
		if !roleSet[actor.Role] {
			dto.AbortFail(c, errors.ErrForbidden.WithDetail("role not allowed"))
			return
		}
		c.Next()
	}
}

// RequireAdmin 管理员权限检查中间件（便捷方法）
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}
