// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/pkg/metrics"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	ProjectID   string
	QueryVector []float32
	TopK        int
	// SimilarityFloor 低于此余弦相似度的结果整体剔除，不降权保留
	SimilarityFloor float32
	SourceTypes     []string
}

// SearchResult 检索结果
type SearchResult struct {
	ID          string
	Score       float32
	SourceType  string
	TextContent string
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// CreatePartition 创建项目分区
func (r *Repository) CreatePartition(ctx context.Context, collection, projectID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreatePartition",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("partition", PartitionName(projectID)),
		))
	defer span.End()

	collName := r.client.CollectionName(collection)
	return r.client.milvus.CreatePartition(ctx, collName, PartitionName(projectID))
}

// SearchChunks 按余弦相似度检索项目 chunk
func (r *Repository) SearchChunks(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("project_id", params.ProjectID),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	start := time.Now()
	collName := r.client.CollectionName(CollectionContextChunks)
	partitionName := PartitionName(params.ProjectID)

	defer func() {
		metrics.MilvusSearchDuration.WithLabelValues(collName).Observe(time.Since(start).Seconds())
	}()

	// 分区尚未创建（新项目）时直接返回空结果，避免 partition not found
	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(collName, "error").Inc()
		return nil, fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		metrics.MilvusSearchTotal.WithLabelValues(collName, "ok").Inc()
		return []*SearchResult{}, nil
	}

	filter := fmt.Sprintf(`project_id == "%s"`, params.ProjectID)

	if len(params.SourceTypes) > 0 {
		var parts []string
		for _, st := range params.SourceTypes {
			st = strings.TrimSpace(st)
			if st == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf(`source_type == "%s"`, st))
		}
		if len(parts) > 0 {
			filter += " && (" + strings.Join(parts, " || ") + ")"
		}
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		[]string{partitionName},
		filter,
		[]string{"id", "source_type", "text_content"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusSearchTotal.WithLabelValues(collName, "error").Inc()
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			score := result.Scores[i]
			if score < params.SimilarityFloor {
				continue
			}

			sr := &SearchResult{Score: score}
			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if typeCol, ok := result.Fields.GetColumn("source_type").(*entity.ColumnVarChar); ok {
				sr.SourceType = typeCol.Data()[i]
			}
			if textCol, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				sr.TextContent = textCol.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	metrics.MilvusSearchTotal.WithLabelValues(collName, "ok").Inc()
	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// InsertChunks 写入 chunk 向量
// chunk 内容不可变，主键相同的重复写入可接受 last-writer-wins
func (r *Repository) InsertChunks(ctx context.Context, projectID string, chunks []*ChunkVector) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertChunks",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("count", len(chunks)),
		))
	defer span.End()

	if len(chunks) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionContextChunks)
	partitionName := PartitionName(projectID)

	has, _ := r.client.milvus.HasPartition(ctx, collName, partitionName)
	if !has {
		if err := r.CreatePartition(ctx, CollectionContextChunks, projectID); err != nil {
			return err
		}
	}

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	projectIDs := make([]string, len(chunks))
	sourceTypes := make([]string, len(chunks))
	textContents := make([]string, len(chunks))

	for i, c := range chunks {
		ids[i] = c.ID
		vectors[i] = c.Vector
		projectIDs[i] = c.ProjectID
		sourceTypes[i] = c.SourceType
		textContents[i] = c.TextContent
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", VectorDimension, vectors)
	projectCol := entity.NewColumnVarChar("project_id", projectIDs)
	typeCol := entity.NewColumnVarChar("source_type", sourceTypes)
	textCol := entity.NewColumnVarChar("text_content", textContents)

	_, err := r.client.milvus.Upsert(ctx, collName, partitionName,
		idCol, vectorCol, projectCol, typeCol, textCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	return nil
}

// DeleteChunks 按 chunk_id 删除向量
func (r *Repository) DeleteChunks(ctx context.Context, projectID string, chunkIDs []string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteChunks",
		trace.WithAttributes(attribute.Int("count", len(chunkIDs))))
	defer span.End()

	collName := r.client.CollectionName(CollectionContextChunks)
	partitionName := PartitionName(projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	quoted := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	filter := fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))

	if err := r.client.milvus.Delete(ctx, collName, partitionName, filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DropProjectPartition 删除项目分区（索引重建用）
func (r *Repository) DropProjectPartition(ctx context.Context, projectID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DropProjectPartition",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionContextChunks)
	partitionName := PartitionName(projectID)

	if has, err := r.client.milvus.HasPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check partition: %w", err)
	} else if !has {
		return nil
	}

	if err := r.client.milvus.DropPartition(ctx, collName, partitionName); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop partition: %w", err)
	}
	return nil
}

// EnsureContextChunksCollection 确保集合与索引可用（不存在则创建）
// 不做 drop/rebuild 等破坏性操作
func (r *Repository) EnsureContextChunksCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionContextChunks)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, ContextChunksSchema()); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入
		_ = r.CreateIndex(ctx, CollectionContextChunks)
	}

	return r.client.LoadCollection(ctx, CollectionContextChunks)
}
