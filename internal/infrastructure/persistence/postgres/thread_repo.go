// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"project-context-api/internal/domain/entity"
	apperrors "project-context-api/pkg/errors"
)

// ThreadRepository 线程仓储实现
type ThreadRepository struct {
	client *Client
}

// NewThreadRepository 创建线程仓储
func NewThreadRepository(client *Client) *ThreadRepository {
	return &ThreadRepository{client: client}
}

// CreateIfAbsent 幂等创建活跃线程
// 依赖部分唯一索引（project_id WHERE status='active'）：
// 已有活跃线程时插入冲突，返回既有线程而不是报错
func (r *ThreadRepository) CreateIfAbsent(ctx context.Context, thread *entity.Thread) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.CreateIfAbsent")
	defer span.End()

	db := getDB(ctx, r.client.db)

	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(thread).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	active, getErr := r.GetActiveByProject(ctx, thread.ProjectID)
	if getErr != nil {
		return nil, getErr
	}
	if active == nil {
		return nil, apperrors.ErrThreadNotFound.WithDetail(thread.ProjectID)
	}
	return active, nil
}

// GetByID 根据 ID 获取线程
func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var thread entity.Thread
	if err := db.First(&thread, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &thread, nil
}

// GetActiveByProject 获取项目当前活跃线程
func (r *ThreadRepository) GetActiveByProject(ctx context.Context, projectID string) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.GetActiveByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var thread entity.Thread
	err := db.Where("project_id = ? AND status = ?", projectID, entity.ThreadStatusActive).
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get active thread: %w", err)
	}
	return &thread, nil
}

// GetLatestByProject 获取项目最近的线程
func (r *ThreadRepository) GetLatestByProject(ctx context.Context, projectID string) (*entity.Thread, error) {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.GetLatestByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var thread entity.Thread
	err := db.Where("project_id = ?", projectID).
		Order("created_at DESC").
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest thread: %w", err)
	}
	return &thread, nil
}

// Close 将线程置为 closed（终态，已关闭时幂等）
func (r *ThreadRepository) Close(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.Close")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.Thread{}).
		Where("id = ?", id).
		Update("status", entity.ThreadStatusClosed)
	if result.Error != nil {
		span.RecordError(result.Error)
		return fmt.Errorf("failed to close thread: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrThreadNotFound.WithDetail(id)
	}
	return nil
}

// Restore 按给定状态原样插入线程，重放重建专用
func (r *ThreadRepository) Restore(ctx context.Context, thread *entity.Thread) error {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.Restore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(thread).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to restore thread: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部线程，重放重建专用
func (r *ThreadRepository) DeleteByProject(ctx context.Context, projectID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("project_id = ?", projectID).Delete(&entity.Thread{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete threads: %w", err)
	}
	return nil
}

// UpdateGoalSummary 更新目标摘要
func (r *ThreadRepository) UpdateGoalSummary(ctx context.Context, id, summary string) error {
	ctx, span := tracer.Start(ctx, "postgres.ThreadRepository.UpdateGoalSummary")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.Thread{}).
		Where("id = ?", id).
		Update("goal_summary", summary).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update goal summary: %w", err)
	}
	return nil
}
