// Package router 提供 HTTP 路由配置
package router

import (
	"theme-gen-ai-api/internal/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由。
// 生成接口允许匿名访问（按客户端 IP 限流且不计额度），额度与管理接口必须认证。
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, optionalAuth, requireAuth gin.HandlerFunc) {
	// 同步生成
	generations := v1.Group("/generations", optionalAuth)
	{
		generations.POST("/text", h.Generation.GenerateText)
		generations.POST("/image", h.Generation.AnalyzeImage)
	}

	// 异步任务
	jobs := v1.Group("/generation-jobs", optionalAuth)
	{
		jobs.POST("", h.Job.CreateJob)
		jobs.GET("/:jid", h.Job.GetJob)
	}

	// 额度
	v1.GET("/quota", requireAuth, h.Quota.GetQuota)

	// 管理员
	admin := v1.Group("/admin", requireAuth, middleware.RequireAdmin())
	{
		admin.POST("/bulk-jobs", h.Admin.CreateBulkJob)
		admin.POST("/template-bulk-jobs", h.Admin.CreateTemplateBulkJob)
		admin.POST("/actors/:aid/quota/reset", h.Admin.ResetQuota)
		admin.POST("/actors/:aid/quota/upgrade", h.Admin.UpgradeQuota)
	}
}
