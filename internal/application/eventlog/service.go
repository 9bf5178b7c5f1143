// Package eventlog 提供项目事件日志的应用服务
package eventlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	"project-context-api/internal/infrastructure/messaging"
	errs "project-context-api/pkg/errors"
	"project-context-api/pkg/logger"
	"project-context-api/pkg/metrics"
)

var tracer = otel.Tracer("eventlog")

// Service 事件日志服务
// 所有状态变化先进日志再进投影；追加前校验事件类型与负载 schema
type Service struct {
	events   repository.EventLogRepository
	threads  repository.ThreadRepository
	turns    repository.TurnRepository
	tx       repository.Transactor
	producer *messaging.Producer
}

// NewService 创建事件日志服务
// producer 可为 nil，审计流是可选的旁路
func NewService(
	events repository.EventLogRepository,
	threads repository.ThreadRepository,
	turns repository.TurnRepository,
	tx repository.Transactor,
	producer *messaging.Producer,
) *Service {
	return &Service{
		events:   events,
		threads:  threads,
		turns:    turns,
		tx:       tx,
		producer: producer,
	}
}

// AppendInput 追加事件入参
type AppendInput struct {
	ProjectID string
	// EventID 调用方提供的去重键；为空时由服务端生成
	EventID  string
	Type     entity.EventType
	Payload  json.RawMessage
	Producer string
}

// AppendOutput 追加事件产出
type AppendOutput struct {
	Event     *entity.Event
	Sequence  int64
	Duplicate bool
}

// Append 校验并追加事件
// 未知事件类型或负载不符合封闭 schema 时整体拒绝，日志无残留
func (s *Service) Append(ctx context.Context, in *AppendInput) (*AppendOutput, error) {
	ctx, span := tracer.Start(ctx, "eventlog.Append",
		trace.WithAttributes(
			attribute.String("project_id", in.ProjectID),
			attribute.String("event_type", string(in.Type)),
		))
	defer span.End()

	if strings.TrimSpace(in.ProjectID) == "" {
		return nil, errs.ErrInvalidParam.WithDetail("project_id is required")
	}
	if !in.Type.IsKnown() {
		metrics.EventAppendsTotal.WithLabelValues(string(in.Type), "rejected").Inc()
		return nil, errs.ErrUnknownEventType
	}
	if err := entity.ValidatePayload(in.Type, in.Payload); err != nil {
		metrics.EventAppendsTotal.WithLabelValues(string(in.Type), "rejected").Inc()
		return nil, errs.Wrap(err, errs.CodeInvalidParam, "invalid event payload")
	}

	event := entity.NewEvent(in.ProjectID, in.Type, in.Payload, in.Producer)
	if strings.TrimSpace(in.EventID) != "" {
		event.ID = in.EventID
	}

	result, err := s.events.Append(ctx, event)
	if err != nil {
		metrics.EventAppendsTotal.WithLabelValues(string(in.Type), "error").Inc()
		return nil, err
	}

	status := "ok"
	if result.Duplicate {
		status = "duplicate"
	}
	metrics.EventAppendsTotal.WithLabelValues(string(in.Type), status).Inc()
	span.SetAttributes(
		attribute.Int64("sequence", result.Sequence),
		attribute.Bool("duplicate", result.Duplicate),
	)

	s.publishAudit(ctx, event, result)
	event.Sequence = result.Sequence
	return &AppendOutput{
		Event:     event,
		Sequence:  result.Sequence,
		Duplicate: result.Duplicate,
	}, nil
}

// publishAudit 旁路发布审计消息，失败只告警
func (s *Service) publishAudit(ctx context.Context, event *entity.Event, result *repository.AppendResult) {
	if s.producer == nil || result.Duplicate {
		return
	}
	_, err := s.producer.PublishEventAudit(ctx, &messaging.EventAuditMessage{
		ProjectID: event.ProjectID,
		EventID:   event.ID,
		EventType: string(event.Type),
		Sequence:  result.Sequence,
		Producer:  event.Producer,
		TraceID:   trace.SpanContextFromContext(ctx).TraceID().String(),
	})
	if err != nil {
		logger.Warn(ctx, "failed to publish event audit",
			"event_id", event.ID,
			"error", err,
		)
	}
}

// OpenThread 幂等打开项目活跃线程
// 已有活跃线程时返回它，不产生新事件
func (s *Service) OpenThread(ctx context.Context, projectID, goalSummary, producer string) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "eventlog.OpenThread",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	if existing, err := s.threads.GetActiveByProject(ctx, projectID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	thread := entity.NewThread(projectID)
	thread.GoalSummary = goalSummary

	var out *entity.Thread
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		created, err := s.threads.CreateIfAbsent(txCtx, thread)
		if err != nil {
			return err
		}
		out = created

		// 并发竞争输掉时不重复记事件
		if created.ID != thread.ID {
			return nil
		}

		payload, err := entity.MarshalPayload(&entity.ThreadOpenedPayload{
			ThreadID:    created.ID,
			GoalSummary: goalSummary,
		})
		if err != nil {
			return err
		}
		_, err = s.events.Append(txCtx, entity.NewEvent(projectID, entity.EventTypeThreadOpened, payload, producer))
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("thread_id", out.ID))
	return out, nil
}

// CloseThread 关闭线程（终态）
func (s *Service) CloseThread(ctx context.Context, projectID, threadID, reason, producer string) error {
	ctx, span := tracer.Start(ctx, "eventlog.CloseThread",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.String("thread_id", threadID),
		))
	defer span.End()

	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil || thread.ProjectID != projectID {
		return errs.ErrThreadNotFound
	}
	if !thread.IsActive() {
		return errs.ErrThreadClosed
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.threads.Close(txCtx, threadID); err != nil {
			return err
		}

		payload, err := entity.MarshalPayload(&entity.ThreadClosedPayload{
			ThreadID: threadID,
			Reason:   reason,
		})
		if err != nil {
			return err
		}
		_, err = s.events.Append(txCtx, entity.NewEvent(projectID, entity.EventTypeThreadClosed, payload, producer))
		return err
	})
}

// RecordTurn 追加一条轮次并在同一事务内记 turn_recorded 事件
// 两者要么同时可见要么都不可见
func (s *Service) RecordTurn(ctx context.Context, projectID, threadID string, role entity.Role, text string, contextRefs []string, producer string) (*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "eventlog.RecordTurn",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.String("thread_id", threadID),
			attribute.String("role", string(role)),
		))
	defer span.End()

	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil || thread.ProjectID != projectID {
		return nil, errs.ErrThreadNotFound
	}
	if !thread.IsActive() {
		return nil, errs.ErrThreadClosed
	}

	turn := entity.NewTurn(threadID, role, text, contextRefs)

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.turns.Create(txCtx, turn); err != nil {
			return err
		}

		payload, err := entity.MarshalPayload(&entity.TurnRecordedPayload{
			ThreadID:    threadID,
			TurnID:      turn.ID,
			Role:        role,
			Text:        text,
			ContextRefs: contextRefs,
		})
		if err != nil {
			return err
		}
		_, err = s.events.Append(txCtx, entity.NewEvent(projectID, entity.EventTypeTurnRecorded, payload, producer))
		return err
	})
	if err != nil {
		return nil, err
	}

	return turn, nil
}

// GetThread 取指定项目下的线程
func (s *Service) GetThread(ctx context.Context, projectID, threadID string) (*entity.Thread, error) {
	thread, err := s.threads.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil || thread.ProjectID != projectID {
		return nil, errs.ErrThreadNotFound
	}
	return thread, nil
}

// RecentTurns 按时间正序返回线程最近 n 条轮次
func (s *Service) RecentTurns(ctx context.Context, projectID, threadID string, n int) ([]*entity.Turn, error) {
	if _, err := s.GetThread(ctx, projectID, threadID); err != nil {
		return nil, err
	}
	return s.turns.RecentByThread(ctx, threadID, n)
}

// ReadSince 按 sequence 升序读取 cursor 之后的事件
func (s *Service) ReadSince(ctx context.Context, projectID string, cursor int64, limit int) ([]*entity.Event, error) {
	ctx, span := tracer.Start(ctx, "eventlog.ReadSince",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int64("cursor", cursor),
		))
	defer span.End()

	start := time.Now()
	events, err := s.events.ReadSince(ctx, projectID, cursor, limit)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("count", len(events)),
		attribute.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return events, nil
}

// LatestCursor 返回项目当前游标
func (s *Service) LatestCursor(ctx context.Context, projectID string) (int64, error) {
	return s.events.LatestCursor(ctx, projectID)
}
