// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
)

// ChunkRepository chunk 元数据仓储实现
type ChunkRepository struct {
	client *Client
}

// NewChunkRepository 创建 chunk 仓储
func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

// Upsert 写入或覆盖 chunk（以 chunk_id 幂等）
func (r *ChunkRepository) Upsert(ctx context.Context, chunk *entity.Chunk) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.Upsert")
	defer span.End()

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"project_id", "source_type", "title", "entities", "text", "metadata"}),
	}).Create(chunk).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取 chunk
func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var chunk entity.Chunk
	if err := db.First(&chunk, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &chunk, nil
}

// GetByIDs 批量获取 chunk，保持入参顺序
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var chunks []*entity.Chunk
	if err := db.Where("id IN ?", ids).Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}

	byID := make(map[string]*entity.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	ordered := make([]*entity.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// ListByProject 分页列出项目 chunk
func (r *ChunkRepository) ListByProject(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Chunk], error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.Chunk{}).Where("project_id = ?", projectID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	var chunks []*entity.Chunk
	if err := query.Order("created_at ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&chunks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	return repository.NewPagedResult(chunks, total, pagination), nil
}

// CountByProject 统计项目 chunk 数
func (r *ChunkRepository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.CountByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var total int64
	if err := db.Model(&entity.Chunk{}).
		Where("project_id = ?", projectID).
		Count(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return total, nil
}
