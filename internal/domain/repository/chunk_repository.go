// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"project-context-api/internal/domain/entity"
)

// ChunkRepository chunk 元数据仓储接口
// chunk 内容不可变，Upsert 以 chunk_id 幂等
type ChunkRepository interface {
	// Upsert 写入或覆盖 chunk
	Upsert(ctx context.Context, chunk *entity.Chunk) error

	// GetByID 根据 ID 获取 chunk
	GetByID(ctx context.Context, id string) (*entity.Chunk, error)

	// GetByIDs 批量获取 chunk，保持入参顺序，缺失的跳过
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Chunk, error)

	// ListByProject 分页列出项目 chunk
	ListByProject(ctx context.Context, projectID string, pagination Pagination) (*PagedResult[*entity.Chunk], error)

	// CountByProject 统计项目 chunk 数
	CountByProject(ctx context.Context, projectID string) (int64, error)
}
