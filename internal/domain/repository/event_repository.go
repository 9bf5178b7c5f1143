// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"project-context-api/internal/domain/entity"
)

// AppendResult 追加结果
type AppendResult struct {
	// Sequence 事件在项目内的游标
	Sequence int64
	// Duplicate 标记该事件此前已提交（按 (project_id, event_id) 去重）
	Duplicate bool
}

// EventLogRepository 事件日志仓储接口
// 追加是唯一的写操作，不提供更新和删除
type EventLogRepository interface {
	// Append 追加事件并分配项目内单调递增的 sequence
	// 对重复的 (project_id, event_id) 幂等返回原 sequence
	Append(ctx context.Context, event *entity.Event) (*AppendResult, error)

	// ReadSince 按 sequence 升序读取 cursor 之后的事件
	ReadSince(ctx context.Context, projectID string, cursor int64, limit int) ([]*entity.Event, error)

	// LatestCursor 返回项目当前最大 sequence，空日志返回 0
	LatestCursor(ctx context.Context, projectID string) (int64, error)

	// CountByProject 统计项目事件数
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
