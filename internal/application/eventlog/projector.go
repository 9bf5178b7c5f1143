package eventlog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	errs "project-context-api/pkg/errors"
	"project-context-api/pkg/logger"
)

const replayBatchSize = 500

// ProjectionState 从事件日志重放得到的投影状态
// 同一份日志重放任意次结果一致
type ProjectionState struct {
	Cursor  int64
	Threads []*entity.Thread
	// Turns 按 thread_id 分组，组内保持日志顺序
	Turns map[string][]*entity.Turn
}

// Projector 从事件日志重建线程/轮次投影
type Projector struct {
	events  repository.EventLogRepository
	threads repository.ThreadRepository
	turns   repository.TurnRepository
	tx      repository.Transactor
}

// NewProjector 创建投影器
func NewProjector(
	events repository.EventLogRepository,
	threads repository.ThreadRepository,
	turns repository.TurnRepository,
	tx repository.Transactor,
) *Projector {
	return &Projector{
		events:  events,
		threads: threads,
		turns:   turns,
		tx:      tx,
	}
}

// Replay 从游标 0 开始折叠项目事件，得到纯内存投影
// 发现 sequence 空洞立即报错，不产出部分状态
func (p *Projector) Replay(ctx context.Context, projectID string) (*ProjectionState, error) {
	ctx, span := tracer.Start(ctx, "eventlog.Projector.Replay",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	state := &ProjectionState{
		Turns: make(map[string][]*entity.Turn),
	}
	threadsByID := make(map[string]*entity.Thread)

	cursor := int64(0)
	for {
		events, err := p.events.ReadSince(ctx, projectID, cursor, replayBatchSize)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			if event.Sequence != cursor+1 {
				span.RecordError(errs.ErrSequenceGap)
				return nil, errs.ErrSequenceGap.WithDetail(
					fmt.Sprintf("project %s: expected sequence %d, got %d", projectID, cursor+1, event.Sequence))
			}
			cursor = event.Sequence

			if err := p.apply(state, threadsByID, event); err != nil {
				return nil, err
			}
		}

		if len(events) < replayBatchSize {
			break
		}
	}

	state.Cursor = cursor
	span.SetAttributes(
		attribute.Int64("cursor", cursor),
		attribute.Int("thread_count", len(state.Threads)),
	)
	return state, nil
}

// apply 将单个事件折叠进投影状态
// 未知类型不可能出现（追加侧已拒绝），防御性地报错而不是跳过
func (p *Projector) apply(state *ProjectionState, threadsByID map[string]*entity.Thread, event *entity.Event) error {
	decoded, err := entity.DecodePayload(event.Type, event.Payload)
	if err != nil {
		return fmt.Errorf("replay: event %s (seq %d): %w", event.ID, event.Sequence, err)
	}

	switch payload := decoded.(type) {
	case *entity.ThreadOpenedPayload:
		thread := &entity.Thread{
			ID:          payload.ThreadID,
			ProjectID:   event.ProjectID,
			Status:      entity.ThreadStatusActive,
			GoalSummary: payload.GoalSummary,
			CreatedAt:   event.CreatedAt,
			UpdatedAt:   event.CreatedAt,
		}
		threadsByID[thread.ID] = thread
		state.Threads = append(state.Threads, thread)

	case *entity.ThreadClosedPayload:
		thread, ok := threadsByID[payload.ThreadID]
		if !ok {
			return fmt.Errorf("replay: thread_closed for unknown thread %s (seq %d)", payload.ThreadID, event.Sequence)
		}
		thread.Status = entity.ThreadStatusClosed
		thread.UpdatedAt = event.CreatedAt

	case *entity.TurnRecordedPayload:
		if _, ok := threadsByID[payload.ThreadID]; !ok {
			return fmt.Errorf("replay: turn_recorded for unknown thread %s (seq %d)", payload.ThreadID, event.Sequence)
		}
		state.Turns[payload.ThreadID] = append(state.Turns[payload.ThreadID], &entity.Turn{
			ID:          payload.TurnID,
			ThreadID:    payload.ThreadID,
			Role:        payload.Role,
			Text:        payload.Text,
			ContextRefs: payload.ContextRefs,
			CreatedAt:   event.CreatedAt,
		})

	case *entity.QuestionReceivedPayload, *entity.AnswerRecordedPayload,
		*entity.ChunkIngestedPayload, *entity.OntologyChangedPayload:
		// 留痕事件，不驱动线程投影

	default:
		return fmt.Errorf("replay: unhandled event type %q (seq %d)", event.Type, event.Sequence)
	}

	return nil
}

// Rebuild 丢弃项目投影并按日志重建，整体在一个事务内
func (p *Projector) Rebuild(ctx context.Context, projectID string) (*ProjectionState, error) {
	ctx, span := tracer.Start(ctx, "eventlog.Projector.Rebuild",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	state, err := p.Replay(ctx, projectID)
	if err != nil {
		return nil, err
	}

	err = p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.turns.DeleteByProject(txCtx, projectID); err != nil {
			return err
		}
		if err := p.threads.DeleteByProject(txCtx, projectID); err != nil {
			return err
		}

		for _, thread := range state.Threads {
			if err := p.threads.Restore(txCtx, thread); err != nil {
				return err
			}
			for _, turn := range state.Turns[thread.ID] {
				if err := p.turns.Create(txCtx, turn); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "projection rebuilt",
		"project_id", projectID,
		"cursor", state.Cursor,
		"threads", len(state.Threads),
	)
	return state, nil
}

// Verify 比较重放结果与在线投影，返回是否一致
// 不一致说明投影陈旧，调用方可触发 Rebuild
func (p *Projector) Verify(ctx context.Context, projectID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "eventlog.Projector.Verify",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	state, err := p.Replay(ctx, projectID)
	if err != nil {
		return false, err
	}

	for _, want := range state.Threads {
		got, err := p.threads.GetByID(ctx, want.ID)
		if err != nil {
			return false, err
		}
		if got == nil || got.Status != want.Status {
			span.SetAttributes(attribute.String("diverged_thread", want.ID))
			return false, nil
		}

		wantTurns := state.Turns[want.ID]
		gotTurns, err := p.turns.RecentByThread(ctx, want.ID, len(wantTurns)+1)
		if err != nil {
			return false, err
		}
		if len(gotTurns) != len(wantTurns) {
			span.SetAttributes(attribute.String("diverged_thread", want.ID))
			return false, nil
		}
		for i := range wantTurns {
			if gotTurns[i].ID != wantTurns[i].ID {
				span.SetAttributes(attribute.String("diverged_thread", want.ID))
				return false, nil
			}
		}
	}
	return true, nil
}
