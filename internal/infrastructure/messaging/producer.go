// Package messaging 提供基于 Redis Streams 的任务队列
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	stream Stream
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, stream Stream, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	if stream == "" {
		stream = StreamGenerationJobs
	}
	return &Producer{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishJob 发布生成任务
func (p *Producer) PublishJob(ctx context.Context, job *entity.GenerationJob) error {
	payload := &GenerationJobMessage{
		JobID:   job.ID,
		JobType: string(job.JobType),
		ActorID: job.ActorID,
	}
	msg, err := NewMessage(job.ID, MessageTypeForJob(job.JobType), job.ActorID, payload)
	if err != nil {
		return err
	}

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if traceID, ok := ctx.Value(logger.TraceIDKey).(string); ok && traceID != "" {
		msg.SetMetadata("trace_id", traceID)
	}

	_, err = p.Publish(ctx, p.stream, msg)
	return err
}

// MessageTypeForJob 任务类型对应的消息类型
func MessageTypeForJob(jobType entity.JobType) string {
	switch jobType {
	case entity.JobTypeBulk:
		return MessageTypeBulk
	case entity.JobTypeTemplateBulk:
		return MessageTypeTemplateBulk
	default:
		return MessageTypeSingle
	}
}
