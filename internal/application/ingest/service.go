// Package ingest 提供文档摄取编排：切分索引入库并留痕 chunk_ingested 事件
package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/infrastructure/messaging"
	errs "project-context-api/pkg/errors"
	"project-context-api/pkg/logger"
)

var tracer = otel.Tracer("ingest")

// Service 文档摄取服务
// 同步路径立即索引；异步路径投递到流，由独立 worker 消费
type Service struct {
	indexer  *retrieval.Indexer
	log      *eventlog.Service
	producer *messaging.Producer
}

// NewService 创建摄取服务
func NewService(indexer *retrieval.Indexer, log *eventlog.Service, producer *messaging.Producer) *Service {
	return &Service{
		indexer:  indexer,
		log:      log,
		producer: producer,
	}
}

// Input 摄取入参
type Input struct {
	ProjectID  string
	SourceType entity.SourceType
	Title      string
	Text       string
	Entities   []string
	Producer   string

	// Async 为真时只投递消息，由 index worker 落索引
	Async bool
}

// Result 摄取结果
type Result struct {
	ChunkIDs []string
	Queued   bool
}

var validSourceTypes = map[entity.SourceType]bool{
	entity.SourceTypeDocument:     true,
	entity.SourceTypeEventSummary: true,
	entity.SourceTypeOntologyFact: true,
}

// Ingest 摄取一篇文档
func (s *Service) Ingest(ctx context.Context, in *Input) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest",
		trace.WithAttributes(
			attribute.String("project_id", in.ProjectID),
			attribute.String("source_type", string(in.SourceType)),
			attribute.Bool("async", in.Async),
		))
	defer span.End()

	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, errs.ErrInvalidParam.WithDetail("project_id is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, errs.ErrInvalidParam.WithDetail("text is required")
	}
	if !validSourceTypes[in.SourceType] {
		return nil, errs.ErrInvalidParam.WithDetail("unknown source_type: " + string(in.SourceType))
	}

	if in.Async {
		if s.producer == nil {
			return nil, errs.ErrServiceUnavailable.WithDetail("async ingest requires messaging")
		}
		_, err := s.producer.PublishChunkIngest(ctx, &messaging.ChunkIngestMessage{
			ProjectID:  in.ProjectID,
			SourceType: string(in.SourceType),
			Title:      in.Title,
			Text:       in.Text,
			Entities:   in.Entities,
			Producer:   in.Producer,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Queued: true}, nil
	}

	chunkIDs, err := s.index(ctx, in.ProjectID, in.SourceType, in.Title, in.Text, in.Entities, in.Producer)
	if err != nil {
		return nil, err
	}
	return &Result{ChunkIDs: chunkIDs}, nil
}

// HandleChunkIngest 是 index worker 的流消息处理器
func (s *Service) HandleChunkIngest(ctx context.Context, msg *messaging.Message) error {
	ctx, span := tracer.Start(ctx, "ingest.HandleChunkIngest",
		trace.WithAttributes(attribute.String("message_id", msg.ID)))
	defer span.End()

	var payload messaging.ChunkIngestMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		// 坏消息重试无意义，吞掉并告警，避免占住重试预算
		logger.Error(ctx, "malformed chunk ingest message", err, "message_id", msg.ID)
		return nil
	}

	_, err := s.index(ctx, payload.ProjectID, entity.SourceType(payload.SourceType),
		payload.Title, payload.Text, payload.Entities, payload.Producer)
	return err
}

// Remove 删除指定 chunk 的全部索引痕迹
func (s *Service) Remove(ctx context.Context, projectID string, chunkIDs []string) error {
	ctx, span := tracer.Start(ctx, "ingest.Remove",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("count", len(chunkIDs)),
		))
	defer span.End()

	return s.indexer.DeleteChunks(ctx, projectID, chunkIDs)
}

func (s *Service) index(ctx context.Context, projectID string, sourceType entity.SourceType, title, text string, entities []string, producer string) ([]string, error) {
	chunks, err := s.indexer.IndexDocument(ctx, projectID, sourceType, title, text, entities)
	if err != nil {
		return nil, err
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIDs = append(chunkIDs, chunk.ID)

		payload, merr := entity.MarshalPayload(&entity.ChunkIngestedPayload{
			ChunkID:    chunk.ID,
			SourceType: string(chunk.SourceType),
			Title:      chunk.Title,
		})
		if merr != nil {
			return nil, merr
		}
		// 事件键由 chunk ID 确定性派生，重放同一文档不会产生重复留痕
		if _, err := s.log.Append(ctx, &eventlog.AppendInput{
			ProjectID: projectID,
			EventID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("ingest:"+chunk.ID)).String(),
			Type:      entity.EventTypeChunkIngested,
			Payload:   payload,
			Producer:  producer,
		}); err != nil {
			return nil, err
		}
	}
	return chunkIDs, nil
}
