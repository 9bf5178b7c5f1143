package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	"project-context-api/pkg/logger"
)

const (
	defaultChunkSizeRunes    = 800
	defaultChunkOverlapRunes = 80
	defaultEmbeddingBatch    = 32
)

// Indexer 负责 chunk 的双写索引：
// 元数据落 Postgres，向量落 Milvus，词面落 Bleve。
// chunk_id 按内容寻址，三处重复写入均幂等。
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorRepository
	lexical  LexicalIndex
	chunks   repository.ChunkRepository

	embeddingBatchSize int
	chunkSizeRunes     int
	chunkOverlapRunes  int
}

func NewIndexer(embedder embedding.Embedder, vectorRepo VectorRepository, lexicalIndex LexicalIndex, chunkRepo repository.ChunkRepository, embeddingBatchSize int) *Indexer {
	bs := embeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vectorRepo,
		lexical:            lexicalIndex,
		chunks:             chunkRepo,
		embeddingBatchSize: bs,
		chunkSizeRunes:     defaultChunkSizeRunes,
		chunkOverlapRunes:  defaultChunkOverlapRunes,
	}
}

func (i *Indexer) VectorEnabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

func (i *Indexer) LexicalEnabled() bool {
	return i != nil && i.lexical != nil
}

func (i *Indexer) ensureReady(ctx context.Context) error {
	if i == nil || i.vector == nil {
		return ErrVectorDisabled
	}
	return i.vector.EnsureCollection(ctx)
}

// IndexDocument 将一篇文档切分为 chunk 并写入全部索引。
// 返回产出的 chunk，供调用方记录 chunk_ingested 事件。
func (i *Indexer) IndexDocument(ctx context.Context, projectID string, sourceType entity.SourceType, title, text string, entities []string) ([]*entity.Chunk, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("project_id is required")
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, nil
	}

	pieces := splitByRunes(content, i.chunkSizeRunes, i.chunkOverlapRunes)
	if len(pieces) == 0 {
		return nil, nil
	}

	chunks := make([]*entity.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, entity.NewChunk(projectID, sourceType, strings.TrimSpace(title), piece, entities))
	}

	if err := i.IndexChunks(ctx, projectID, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// IndexChunks 批量写入已构造好的 chunk。
// 词面索引失败只降级告警，不阻断向量与元数据写入。
func (i *Indexer) IndexChunks(ctx context.Context, projectID string, chunks []*entity.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if i.chunks != nil {
		for _, c := range chunks {
			if c == nil {
				continue
			}
			if err := i.chunks.Upsert(ctx, c); err != nil {
				return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
			}
		}
	}

	if i.VectorEnabled() {
		if err := i.ensureReady(ctx); err != nil {
			return err
		}

		embedInputs := make([]string, 0, len(chunks))
		vectorChunks := make([]*VectorChunk, 0, len(chunks))
		for _, c := range chunks {
			if c == nil {
				continue
			}
			embedText := c.Text
			if t := strings.TrimSpace(c.Title); t != "" {
				embedText = t + "\n" + embedText
			}
			embedInputs = append(embedInputs, embedText)
			vectorChunks = append(vectorChunks, &VectorChunk{
				ID:          c.ID,
				ProjectID:   c.ProjectID,
				SourceType:  string(c.SourceType),
				TextContent: c.Text,
			})
		}

		vectors, err := i.embedBatch(ctx, embedInputs)
		if err != nil {
			return err
		}
		for idx := range vectorChunks {
			vectorChunks[idx].Vector = vectors[idx]
		}
		if err := i.vector.Insert(ctx, projectID, vectorChunks); err != nil {
			return err
		}
	}

	if i.LexicalEnabled() {
		for _, c := range chunks {
			if c == nil {
				continue
			}
			if err := i.lexical.Index(ctx, c); err != nil {
				logger.Warn(ctx, "lexical index degraded",
					"chunk_id", c.ID,
					"error", err,
				)
			}
		}
	}

	return nil
}

// DeleteChunks 从全部索引中移除 chunk。
func (i *Indexer) DeleteChunks(ctx context.Context, projectID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if i.VectorEnabled() {
		if err := i.vector.Delete(ctx, projectID, chunkIDs); err != nil {
			return err
		}
	}
	if i.LexicalEnabled() {
		for _, id := range chunkIDs {
			if err := i.lexical.Delete(ctx, id); err != nil {
				logger.Warn(ctx, "lexical delete degraded",
					"chunk_id", id,
					"error", err,
				)
			}
		}
	}
	return nil
}

func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		v64, err := i.embedder.EmbedStrings(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, vec := range v64 {
			f32 := make([]float32, 0, len(vec))
			for _, x := range vec {
				f32 = append(f32, float32(x))
			}
			out = append(out, f32)
		}
	}
	return out, nil
}
