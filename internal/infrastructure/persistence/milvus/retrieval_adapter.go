package milvus

import (
	"context"

	"project-context-api/internal/application/retrieval"
)

// RetrievalVectorRepository 将 Milvus 仓储适配为应用层 VectorRepository port
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.EnsureContextChunksCollection(ctx)
}

func (r *RetrievalVectorRepository) Search(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchChunks(ctx, &SearchParams{
		ProjectID:       params.ProjectID,
		QueryVector:     params.QueryVector,
		TopK:            params.TopK,
		SimilarityFloor: params.SimilarityFloor,
		SourceTypes:     params.SourceTypes,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*retrieval.VectorSearchResult, 0, len(out))
	for i := range out {
		v := out[i]
		if v == nil {
			continue
		}
		results = append(results, &retrieval.VectorSearchResult{
			ID:          v.ID,
			Score:       v.Score,
			SourceType:  v.SourceType,
			TextContent: v.TextContent,
		})
	}
	return results, nil
}

func (r *RetrievalVectorRepository) Insert(ctx context.Context, projectID string, chunks []*retrieval.VectorChunk) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	if len(chunks) == 0 {
		return nil
	}

	out := make([]*ChunkVector, 0, len(chunks))
	for i := range chunks {
		c := chunks[i]
		if c == nil {
			continue
		}
		out = append(out, &ChunkVector{
			ID:          c.ID,
			ProjectID:   c.ProjectID,
			SourceType:  c.SourceType,
			TextContent: c.TextContent,
			Vector:      c.Vector,
		})
	}
	return r.repo.InsertChunks(ctx, projectID, out)
}

func (r *RetrievalVectorRepository) Delete(ctx context.Context, projectID string, chunkIDs []string) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.DeleteChunks(ctx, projectID, chunkIDs)
}
