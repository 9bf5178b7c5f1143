// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
)

// TurnRepository 轮次仓储实现（仅追加）
type TurnRepository struct {
	client *Client
}

// NewTurnRepository 创建轮次仓储
func NewTurnRepository(client *Client) *TurnRepository {
	return &TurnRepository{client: client}
}

// Create 追加轮次
func (r *TurnRepository) Create(ctx context.Context, turn *entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// RecentByThread 取最近 n 条轮次，按时间正序返回
func (r *TurnRepository) RecentByThread(ctx context.Context, threadID string, n int) ([]*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.RecentByThread")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var turns []*entity.Turn
	err := db.Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Limit(n).
		Find(&turns).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get recent turns: %w", err)
	}

	// 倒序查询结果反转为时间正序
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ListByThread 按时间正序分页列出轮次
func (r *TurnRepository) ListByThread(ctx context.Context, threadID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.ListByThread")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Turn{}).Where("thread_id = ?", threadID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}

	var turns []*entity.Turn
	if err := query.Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	return repository.NewPagedResult(turns, total, pagination), nil
}

// DeleteByThread 删除线程全部轮次（仅用于重放重建投影）
func (r *TurnRepository) DeleteByThread(ctx context.Context, threadID string) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.DeleteByThread")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("thread_id = ?", threadID).Delete(&entity.Turn{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

// DeleteByProject 删除项目全部轮次（仅用于重放重建投影）
func (r *TurnRepository) DeleteByProject(ctx context.Context, projectID string) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.DeleteByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Where("thread_id IN (?)",
		db.Session(&gorm.Session{NewDB: true}).
			Model(&entity.Thread{}).
			Select("id").
			Where("project_id = ?", projectID),
	).Delete(&entity.Turn{}).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete project turns: %w", err)
	}
	return nil
}
