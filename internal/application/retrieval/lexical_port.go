package retrieval

import (
	"context"

	"project-context-api/internal/domain/entity"
)

// LexicalIndex 定义应用层对词法检索的最小依赖（port）
// 倒排索引服务或关系库全文检索都是合法实现，这里不绑定技术选型
type LexicalIndex interface {
	// Index 写入 chunk，按 chunk_id 幂等（重复写入覆盖而不重复）
	Index(ctx context.Context, chunk *entity.Chunk) error

	// Search 按字段加权得分返回排名列表，支持模糊匹配
	Search(ctx context.Context, query, projectID string, limit int) ([]*LexicalResult, error)

	// Delete 按 chunk_id 删除
	Delete(ctx context.Context, chunkID string) error

	// DocCount 返回索引文档数（健康检查与陈旧检测用）
	DocCount(ctx context.Context) (uint64, error)
}

// LexicalResult 词法检索结果
type LexicalResult struct {
	ChunkID string
	Score   float64
	Text    string
}
