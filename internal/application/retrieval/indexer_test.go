package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
)

type recChunkRepo struct {
	upserts map[string]*entity.Chunk
	err     error
}

func newRecChunkRepo() *recChunkRepo {
	return &recChunkRepo{upserts: make(map[string]*entity.Chunk)}
}

func (r *recChunkRepo) Upsert(_ context.Context, chunk *entity.Chunk) error {
	if r.err != nil {
		return r.err
	}
	r.upserts[chunk.ID] = chunk
	return nil
}

func (r *recChunkRepo) GetByID(_ context.Context, id string) (*entity.Chunk, error) {
	return r.upserts[id], nil
}

func (r *recChunkRepo) GetByIDs(_ context.Context, ids []string) ([]*entity.Chunk, error) {
	out := make([]*entity.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.upserts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *recChunkRepo) ListByProject(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.Chunk], error) {
	return &repository.PagedResult[*entity.Chunk]{}, nil
}

func (r *recChunkRepo) CountByProject(_ context.Context, _ string) (int64, error) {
	return int64(len(r.upserts)), nil
}

type recLexical struct {
	indexed []string
	deleted []string
	errOn   string
}

func (r *recLexical) Index(_ context.Context, c *entity.Chunk) error {
	if r.errOn != "" && c.ID == r.errOn {
		return errors.New("bleve write failed")
	}
	r.indexed = append(r.indexed, c.ID)
	return nil
}

func (r *recLexical) Delete(_ context.Context, id string) error {
	if r.errOn != "" && id == r.errOn {
		return errors.New("bleve delete failed")
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *recLexical) DocCount(_ context.Context) (uint64, error) { return uint64(len(r.indexed)), nil }

func (r *recLexical) Search(_ context.Context, _, _ string, _ int) ([]*LexicalResult, error) {
	return nil, nil
}

type recVector struct {
	ensured   int
	inserted  []*VectorChunk
	deleted   []string
	insertErr error
}

func (r *recVector) EnsureCollection(_ context.Context) error { r.ensured++; return nil }

func (r *recVector) Insert(_ context.Context, _ string, chunks []*VectorChunk) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, chunks...)
	return nil
}

func (r *recVector) Delete(_ context.Context, _ string, ids []string) error {
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *recVector) Search(_ context.Context, _ *VectorSearchParams) ([]*VectorSearchResult, error) {
	return nil, nil
}

func TestSplitByRunesShortTextSingleChunk(t *testing.T) {
	out := splitByRunes("hello world", 800, 80)
	require.Equal(t, []string{"hello world"}, out)
}

func TestSplitByRunesEmptyText(t *testing.T) {
	assert.Nil(t, splitByRunes("", 800, 80))
	assert.Nil(t, splitByRunes("   \n\t  ", 800, 80))
}

func TestSplitByRunesOverlapWindows(t *testing.T) {
	// 2000 个汉字，窗口 800、重叠 80：起点 0/720/1440，共 3 片
	text := strings.Repeat("光", 2000)
	out := splitByRunes(text, 800, 80)
	require.Len(t, out, 3)

	assert.Len(t, []rune(out[0]), 800)
	assert.Len(t, []rune(out[1]), 800)
	assert.Len(t, []rune(out[2]), 2000-1440)
}

func TestSplitByRunesOverlapSharesTail(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteRune(rune('a' + i%26))
	}
	out := splitByRunes(b.String(), 800, 80)
	require.Len(t, out, 2)

	// 第二片开头重现第一片的尾部 80 个 rune
	first := []rune(out[0])
	second := []rune(out[1])
	assert.Equal(t, string(first[len(first)-80:]), string(second[:80]))
}

func TestSplitByRunesExactBoundary(t *testing.T) {
	text := strings.Repeat("x", 800)
	out := splitByRunes(text, 800, 80)
	require.Equal(t, []string{text}, out)
}

func TestIndexDocumentContentAddressedIDs(t *testing.T) {
	repo := newRecChunkRepo()
	lex := &recLexical{}
	idx := NewIndexer(nil, nil, lex, repo, 0)

	chunks, err := idx.IndexDocument(context.Background(), "p1", entity.SourceTypeDocument, "规格书", "转子额定功率 3.2kW", []string{"转子"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	want := entity.ChunkID("document:规格书", "转子额定功率 3.2kW")
	assert.Equal(t, want, chunks[0].ID)
	assert.Contains(t, repo.upserts, want)
	assert.Equal(t, []string{want}, lex.indexed)
}

func TestIndexDocumentSplitsLongText(t *testing.T) {
	repo := newRecChunkRepo()
	lex := &recLexical{}
	idx := NewIndexer(nil, nil, lex, repo, 0)

	text := strings.Repeat("维", 2000)
	chunks, err := idx.IndexDocument(context.Background(), "p1", entity.SourceTypeDocument, "手册", text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, repo.upserts, 3)
	assert.Len(t, lex.indexed, 3)
	for _, c := range chunks {
		assert.Equal(t, "p1", c.ProjectID)
		assert.LessOrEqual(t, len([]rune(c.Text)), 800)
	}
}

func TestIndexDocumentIdempotentByContent(t *testing.T) {
	repo := newRecChunkRepo()
	idx := NewIndexer(nil, nil, nil, repo, 0)

	first, err := idx.IndexDocument(context.Background(), "p1", entity.SourceTypeDocument, "t", "same body", nil)
	require.NoError(t, err)
	second, err := idx.IndexDocument(context.Background(), "p1", entity.SourceTypeDocument, "t", "same body", nil)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, repo.upserts, 1)
}

func TestIndexDocumentValidatesInput(t *testing.T) {
	idx := NewIndexer(nil, nil, nil, newRecChunkRepo(), 0)

	_, err := idx.IndexDocument(context.Background(), "  ", entity.SourceTypeDocument, "t", "body", nil)
	require.Error(t, err)

	chunks, err := idx.IndexDocument(context.Background(), "p1", entity.SourceTypeDocument, "t", "   ", nil)
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestIndexChunksVectorPath(t *testing.T) {
	repo := newRecChunkRepo()
	vec := &recVector{}
	idx := NewIndexer(&stubEmbedder{}, vec, nil, repo, 2)

	chunks := []*entity.Chunk{
		entity.NewChunk("p1", entity.SourceTypeDocument, "标题", "正文一", nil),
		entity.NewChunk("p1", entity.SourceTypeDocument, "", "正文二", nil),
		entity.NewChunk("p1", entity.SourceTypeDocument, "标题", "正文三", nil),
	}
	require.NoError(t, idx.IndexChunks(context.Background(), "p1", chunks))

	assert.Equal(t, 1, vec.ensured)
	require.Len(t, vec.inserted, 3)
	for i, vc := range vec.inserted {
		assert.Equal(t, chunks[i].ID, vc.ID)
		assert.Equal(t, chunks[i].Text, vc.TextContent)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vc.Vector)
	}
}

func TestIndexChunksEmbedderFailureAborts(t *testing.T) {
	vec := &recVector{}
	idx := NewIndexer(&stubEmbedder{err: errors.New("quota exceeded")}, vec, nil, newRecChunkRepo(), 0)

	err := idx.IndexChunks(context.Background(), "p1", []*entity.Chunk{
		entity.NewChunk("p1", entity.SourceTypeDocument, "t", "body", nil),
	})
	require.Error(t, err)
	assert.Empty(t, vec.inserted)
}

func TestIndexChunksLexicalFailureDegrades(t *testing.T) {
	repo := newRecChunkRepo()
	bad := entity.NewChunk("p1", entity.SourceTypeDocument, "t", "broken body", nil)
	good := entity.NewChunk("p1", entity.SourceTypeDocument, "t", "good body", nil)
	lex := &recLexical{errOn: bad.ID}
	idx := NewIndexer(nil, nil, lex, repo, 0)

	// 词面写入失败只降级，元数据照常落库
	require.NoError(t, idx.IndexChunks(context.Background(), "p1", []*entity.Chunk{bad, good}))
	assert.Equal(t, []string{good.ID}, lex.indexed)
	assert.Len(t, repo.upserts, 2)
}

func TestIndexChunksUpsertFailureAborts(t *testing.T) {
	repo := newRecChunkRepo()
	repo.err = errors.New("postgres down")
	lex := &recLexical{}
	idx := NewIndexer(nil, nil, lex, repo, 0)

	err := idx.IndexChunks(context.Background(), "p1", []*entity.Chunk{
		entity.NewChunk("p1", entity.SourceTypeDocument, "t", "body", nil),
	})
	require.Error(t, err)
	assert.Empty(t, lex.indexed)
}

func TestDeleteChunksRemovesEverywhere(t *testing.T) {
	vec := &recVector{}
	lex := &recLexical{}
	idx := NewIndexer(&stubEmbedder{}, vec, lex, newRecChunkRepo(), 0)

	require.NoError(t, idx.DeleteChunks(context.Background(), "p1", []string{"c1", "c2"}))
	assert.Equal(t, []string{"c1", "c2"}, vec.deleted)
	assert.Equal(t, []string{"c1", "c2"}, lex.deleted)
}

func TestDeleteChunksLexicalFailureDegrades(t *testing.T) {
	lex := &recLexical{errOn: "c1"}
	idx := NewIndexer(nil, nil, lex, nil, 0)

	require.NoError(t, idx.DeleteChunks(context.Background(), "p1", []string{"c1", "c2"}))
	assert.Equal(t, []string{"c2"}, lex.deleted)
}

func TestEmbedBatchRespectsBatchSize(t *testing.T) {
	idx := NewIndexer(&stubEmbedder{}, &recVector{}, nil, nil, 2)

	vectors, err := idx.embedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for _, v := range vectors {
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	}
}
