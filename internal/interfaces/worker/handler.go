// Package worker 将队列消息适配为任务执行
package worker

import (
	"context"
	"strings"

	"theme-gen-ai-api/internal/infrastructure/messaging"
	"theme-gen-ai-api/pkg/logger"
)

// JobExecutor 任务执行端口
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) error
	Abandon(ctx context.Context, jobID string, cause error) error
}

// Registrar 消费者注册端口
type Registrar interface {
	RegisterHandler(msgType string, handler messaging.MessageHandler)
	OnDeadLetter(hook messaging.DeadLetterHook)
}

// Register 为三类生成任务消息注册处理器，并在消息进入死信队列时写入终态
func Register(consumer Registrar, exec JobExecutor) {
	handle := HandleJobMessage(exec)
	for _, msgType := range []string{
		messaging.MessageTypeSingle,
		messaging.MessageTypeBulk,
		messaging.MessageTypeTemplateBulk,
	} {
		consumer.RegisterHandler(msgType, handle)
	}
	consumer.OnDeadLetter(DeadLetter(exec))
}

// HandleJobMessage 解析任务消息并执行；返回错误时消息留待重投
func HandleJobMessage(exec JobExecutor) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		jobID := jobIDOf(msg)
		if jobID == "" {
			// 无法解析的消息重投也不会成功
			logger.FromContext(ctx).Warn("dropping job message without job id", "message_id", msg.ID, "type", msg.Type)
			return nil
		}
		return exec.Execute(logger.WithContext(ctx, logger.JobIDKey, jobID), jobID)
	}
}

// DeadLetter 重投耗尽后为任务写入永久失败
func DeadLetter(exec JobExecutor) messaging.DeadLetterHook {
	return func(ctx context.Context, msg *messaging.Message, cause error) {
		jobID := jobIDOf(msg)
		if jobID == "" {
			return
		}
		if err := exec.Abandon(ctx, jobID, cause); err != nil {
			logger.Error(ctx, "failed to record dead-lettered job", err, "job_id", jobID)
		}
	}
}

func jobIDOf(msg *messaging.Message) string {
	if msg == nil {
		return ""
	}
	var payload messaging.GenerationJobMessage
	if err := msg.UnmarshalPayload(&payload); err == nil && strings.TrimSpace(payload.JobID) != "" {
		return strings.TrimSpace(payload.JobID)
	}
	return strings.TrimSpace(msg.ID)
}
