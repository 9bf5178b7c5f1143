// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	"project-context-api/pkg/metrics"
)

// maxAppendRetries 游标竞争时的重试上限
const maxAppendRetries = 3

// EventLogRepository 事件日志仓储实现
// 同一项目的追加在进程内串行化，保证 sequence 单调且无空洞
type EventLogRepository struct {
	client *Client

	mu           sync.Mutex
	projectLocks map[string]*sync.Mutex
}

// NewEventLogRepository 创建事件日志仓储
func NewEventLogRepository(client *Client) *EventLogRepository {
	return &EventLogRepository{
		client:       client,
		projectLocks: make(map[string]*sync.Mutex),
	}
}

// projectLock 获取项目级追加锁
func (r *EventLogRepository) projectLock(projectID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.projectLocks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		r.projectLocks[projectID] = lock
	}
	return lock
}

// Append 追加事件并分配项目内下一个 sequence
// 重复的 (project_id, event_id) 幂等返回已提交的 sequence；
// sequence 唯一约束冲突（跨进程游标竞争）在本地重试，绝不静默丢弃
func (r *EventLogRepository) Append(ctx context.Context, event *entity.Event) (*repository.AppendResult, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventLogRepository.Append")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.EventAppendDuration.Observe(time.Since(start).Seconds())
	}()

	lock := r.projectLock(event.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	// 去重：事件已提交时返回原 sequence
	if seq, ok, err := r.committedSequence(ctx, event.ProjectID, event.ID); err != nil {
		span.RecordError(err)
		return nil, err
	} else if ok {
		return &repository.AppendResult{Sequence: seq, Duplicate: true}, nil
	}

	query := `
		INSERT INTO context_events (id, project_id, sequence, type, payload, producer, created_at)
		SELECT ?, ?, COALESCE(MAX(sequence), 0) + 1, ?, ?::jsonb, ?, NOW()
		FROM context_events
		WHERE project_id = ?
		RETURNING sequence
	`

	var lastErr error
	for attempt := 0; attempt <= maxAppendRetries; attempt++ {
		db := getDB(ctx, r.client.db)

		var sequence int64
		err := db.Raw(query,
			event.ID, event.ProjectID, event.Type, string(event.Payload), event.Producer,
			event.ProjectID,
		).Scan(&sequence).Error
		if err == nil {
			event.Sequence = sequence
			return &repository.AppendResult{Sequence: sequence}, nil
		}

		if !isUniqueViolation(err) {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to append event: %w", err)
		}

		// 唯一约束冲突：可能是并发提交了同一事件，也可能是游标竞争
		if seq, ok, dupErr := r.committedSequence(ctx, event.ProjectID, event.ID); dupErr == nil && ok {
			return &repository.AppendResult{Sequence: seq, Duplicate: true}, nil
		}

		metrics.EventConflictRetries.Inc()
		lastErr = err
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("event append conflict after %d retries: %w", maxAppendRetries, lastErr)
}

// committedSequence 查询事件是否已提交
func (r *EventLogRepository) committedSequence(ctx context.Context, projectID, eventID string) (int64, bool, error) {
	db := getDB(ctx, r.client.db)

	var sequence int64
	err := db.Model(&entity.Event{}).
		Select("sequence").
		Where("project_id = ? AND id = ?", projectID, eventID).
		Take(&sequence).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to check event dedup: %w", err)
	}
	return sequence, true, nil
}

// ReadSince 按 sequence 升序读取 cursor 之后的事件
func (r *EventLogRepository) ReadSince(ctx context.Context, projectID string, cursor int64, limit int) ([]*entity.Event, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventLogRepository.ReadSince")
	defer span.End()

	db := getDB(ctx, r.client.db)

	query := db.Where("project_id = ? AND sequence > ?", projectID, cursor).
		Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var events []*entity.Event
	if err := query.Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// LatestCursor 返回项目当前最大 sequence
func (r *EventLogRepository) LatestCursor(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventLogRepository.LatestCursor")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var cursor int64
	err := db.Model(&entity.Event{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("project_id = ?", projectID).
		Scan(&cursor).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get latest cursor: %w", err)
	}
	return cursor, nil
}

// CountByProject 统计项目事件数
func (r *EventLogRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.EventLogRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	err := db.Model(&entity.Event{}).
		Where("project_id = ?", projectID).
		Count(&total).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

// isUniqueViolation 判断是否为唯一约束冲突
// gorm 的错误翻译覆盖常规写路径，Raw 查询回退到 SQLSTATE 检查
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
}
