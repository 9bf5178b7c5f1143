package lexical

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/config"
	"project-context-api/internal/domain/entity"
)

func newMemIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(&config.LexicalConfig{InMemory: true, Fuzziness: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testChunk(id, projectID, title, text string, entities ...string) *entity.Chunk {
	return &entity.Chunk{
		ID:         id,
		ProjectID:  projectID,
		SourceType: entity.SourceTypeDocument,
		Title:      title,
		Entities:   entities,
		Text:       text,
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "Battery spec", "battery capacity is 5000mAh")))
	require.NoError(t, idx.Index(ctx, testChunk("c2", "p1", "Frame design", "carbon fiber frame weighs 300g")))

	results, err := idx.Search(ctx, "battery capacity", "p1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Contains(t, results[0].Text, "5000mAh")
}

func TestIndexIdempotentByChunkID(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "v1", "original text")))
	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "v2", "replacement text")))

	count, err := idx.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	results, err := idx.Search(ctx, "replacement", "p1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSearchIsolatedByProject(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "", "shared keyword payload")))
	require.NoError(t, idx.Index(ctx, testChunk("c2", "p2", "", "shared keyword payload")))

	results, err := idx.Search(ctx, "keyword", "p1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSearchTitleBoostOutranksBodyMatch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("title-hit", "p1", "navigation module", "some unrelated body")))
	require.NoError(t, idx.Index(ctx, testChunk("body-hit", "p1", "misc notes", "notes about the navigation approach")))

	results, err := idx.Search(ctx, "navigation", "p1", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "title-hit", results[0].ChunkID)
}

func TestSearchMatchesEntities(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "", "generic description", "flight-controller", "gyroscope")))

	results, err := idx.Search(ctx, "gyroscope", "p1", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	idx := newMemIndex(t)

	results, err := idx.Search(context.Background(), "   ", "p1", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRespectsLimit(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, idx.Index(ctx, testChunk(fmt.Sprintf("c%d", i), "p1", "", "repeated battery text")))
	}

	results, err := idx.Search(ctx, "battery", "p1", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestDeleteRemovesChunk(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, testChunk("c1", "p1", "", "deletable content")))
	require.NoError(t, idx.Delete(ctx, "c1"))

	count, err := idx.DocCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	results, err := idx.Search(ctx, "deletable", "p1", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexValidation(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()

	require.Error(t, idx.Index(ctx, nil))
	require.Error(t, idx.Index(ctx, testChunk("  ", "p1", "", "text")))
}

func TestClosedIndexRejectsOperations(t *testing.T) {
	idx, err := NewIndex(&config.LexicalConfig{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	// 重复关闭无害
	require.NoError(t, idx.Close())

	require.Error(t, idx.Index(context.Background(), testChunk("c1", "p1", "", "text")))
	_, err = idx.Search(context.Background(), "q", "p1", 10)
	require.Error(t, err)
	_, err = idx.DocCount(context.Background())
	require.Error(t, err)
}
