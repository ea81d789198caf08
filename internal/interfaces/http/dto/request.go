// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// JobIDRequest 任务 ID 请求
type JobIDRequest struct {
	JobID string `uri:"jid" binding:"required"`
}

// ActorIDRequest 主体 ID 请求
type ActorIDRequest struct {
	ActorID string `uri:"aid" binding:"required"`
}

// BindJobID 从 URI 绑定任务 ID
func BindJobID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("jid"))
}

// BindActorID 从 URI 绑定主体 ID
func BindActorID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("aid"))
}
