// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"project-context-api/internal/domain/entity"
)

// ThreadRepository 线程仓储接口
type ThreadRepository interface {
	// CreateIfAbsent 幂等创建项目活跃线程，返回当前活跃线程
	// 已存在活跃线程时不报错，直接返回它
	CreateIfAbsent(ctx context.Context, thread *entity.Thread) (*entity.Thread, error)

	// GetByID 根据 ID 获取线程
	GetByID(ctx context.Context, id string) (*entity.Thread, error)

	// GetActiveByProject 获取项目当前活跃线程，不存在时返回 nil
	GetActiveByProject(ctx context.Context, projectID string) (*entity.Thread, error)

	// GetLatestByProject 获取项目最近的线程（活跃或已关闭）
	GetLatestByProject(ctx context.Context, projectID string) (*entity.Thread, error)

	// Close 将线程置为终态 closed
	Close(ctx context.Context, id string) error

	// UpdateGoalSummary 更新目标摘要
	UpdateGoalSummary(ctx context.Context, id, summary string) error

	// Restore 按给定状态原样插入线程（仅用于重放重建）
	Restore(ctx context.Context, thread *entity.Thread) error

	// DeleteByProject 删除项目全部线程（仅用于重放重建）
	DeleteByProject(ctx context.Context, projectID string) error
}

// TurnRepository 轮次仓储接口（仅追加）
type TurnRepository interface {
	// Create 追加轮次
	Create(ctx context.Context, turn *entity.Turn) error

	// RecentByThread 按时间倒序取最近 n 条轮次，再反转为时间正序返回
	RecentByThread(ctx context.Context, threadID string, n int) ([]*entity.Turn, error)

	// ListByThread 按时间正序分页列出轮次
	ListByThread(ctx context.Context, threadID string, pagination Pagination) (*PagedResult[*entity.Turn], error)

	// DeleteByThread 删除线程全部轮次（仅用于重放重建）
	DeleteByThread(ctx context.Context, threadID string) error

	// DeleteByProject 删除项目全部轮次（仅用于重放重建）
	DeleteByProject(ctx context.Context, projectID string) error
}
