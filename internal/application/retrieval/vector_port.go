package retrieval

import "context"

// VectorRepository 定义应用层对向量存储/检索的最小依赖（port）
// 由基础设施层提供具体实现（例如 Milvus）
type VectorRepository interface {
	EnsureCollection(ctx context.Context) error
	Search(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
	Insert(ctx context.Context, projectID string, chunks []*VectorChunk) error
	Delete(ctx context.Context, projectID string, chunkIDs []string) error
}

// VectorSearchParams 向量检索参数
type VectorSearchParams struct {
	ProjectID   string
	QueryVector []float32
	TopK        int
	// SimilarityFloor 之下的结果整体剔除而非低排名保留
	SimilarityFloor float32
	SourceTypes     []string
}

// VectorSearchResult 向量检索结果
type VectorSearchResult struct {
	ID          string
	Score       float32
	SourceType  string
	TextContent string
}

// VectorChunk 待写入向量索引的 chunk
type VectorChunk struct {
	ID          string
	ProjectID   string
	SourceType  string
	TextContent string
	Vector      []float32
}
