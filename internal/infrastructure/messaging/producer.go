// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
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

// PublishChunkIngest 发布 chunk 摄取任务，由索引 worker 异步消费
func (p *Producer) PublishChunkIngest(ctx context.Context, job *ChunkIngestMessage) (string, error) {
	msg, err := NewMessage(job.IdempotencyKey, "chunk_ingest", job.ProjectID, job)
	if err != nil {
		return "", err
	}

	if job.IdempotencyKey != "" {
		msg.SetMetadata("idempotency_key", job.IdempotencyKey)
	}
	return p.Publish(ctx, StreamChunkIngest, msg)
}

// PublishEventAudit 发布事件日志审计消息
func (p *Producer) PublishEventAudit(ctx context.Context, audit *EventAuditMessage) (string, error) {
	msg, err := NewMessage(audit.EventID, "event_audit", audit.ProjectID, audit)
	if err != nil {
		return "", err
	}

	if audit.TraceID != "" {
		msg.SetMetadata("trace_id", audit.TraceID)
	}
	return p.Publish(ctx, StreamEventAudit, msg)
}

// ChunkIngestMessage chunk 摄取任务消息
type ChunkIngestMessage struct {
	ProjectID      string   `json:"project_id"`
	SourceType     string   `json:"source_type"`
	Title          string   `json:"title,omitempty"`
	Text           string   `json:"text"`
	Entities       []string `json:"entities,omitempty"`
	Producer       string   `json:"producer,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

// EventAuditMessage 事件日志审计消息
type EventAuditMessage struct {
	ProjectID string `json:"project_id"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Sequence  int64  `json:"sequence"`
	Producer  string `json:"producer,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}
