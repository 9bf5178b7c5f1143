package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/domain/entity"
)

type stubLexical struct {
	results []*LexicalResult
	err     error
}

func (s *stubLexical) Index(_ context.Context, _ *entity.Chunk) error { return nil }
func (s *stubLexical) Delete(_ context.Context, _ string) error       { return nil }
func (s *stubLexical) DocCount(_ context.Context) (uint64, error)     { return uint64(len(s.results)), nil }
func (s *stubLexical) Search(_ context.Context, _, _ string, _ int) ([]*LexicalResult, error) {
	return s.results, s.err
}

type stubVector struct {
	results []*VectorSearchResult
	err     error
}

func (s *stubVector) EnsureCollection(_ context.Context) error { return nil }
func (s *stubVector) Insert(_ context.Context, _ string, _ []*VectorChunk) error {
	return nil
}
func (s *stubVector) Delete(_ context.Context, _ string, _ []string) error { return nil }
func (s *stubVector) Search(_ context.Context, _ *VectorSearchParams) ([]*VectorSearchResult, error) {
	return s.results, s.err
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...einoembedding.Option) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type stubFacts struct {
	facts []Fact
	err   error
}

func (s *stubFacts) Search(_ context.Context, _, _ string, _ int) ([]Fact, error) {
	return s.facts, s.err
}

type stubTurns struct {
	turns []Turn
	err   error
}

func (s *stubTurns) Recent(_ context.Context, _, _ string, _ int) ([]Turn, error) {
	return s.turns, s.err
}

func allSourcesPlan() Plan {
	return Plan{
		Lexical: true, Semantic: true, Ontology: true, Turns: true,
		LexicalLimit: 10, SemanticLimit: 10, FactLimit: 5, TurnLimit: 6,
		SemanticWeight: 0.5,
	}
}

func TestEngineSearchFansOutAllSources(t *testing.T) {
	eng := NewEngine(
		&stubLexical{results: []*LexicalResult{{ChunkID: "c1", Score: 1.5, Text: "lorem"}}},
		&stubVector{results: []*VectorSearchResult{{ID: "c2", Score: 0.9, TextContent: "ipsum"}}},
		&stubEmbedder{},
		&stubFacts{facts: []Fact{{ID: "f1", Text: "capacity: 4"}}},
		&stubTurns{turns: []Turn{{Role: "user", Text: "hi"}}},
		time.Second, 0.2,
	)

	out, err := eng.Search(context.Background(), SearchInput{
		ProjectID: "p1", Query: "what is the capacity", Plan: allSourcesPlan(),
	})
	require.NoError(t, err)

	require.Len(t, out.Lexical, 1)
	assert.Equal(t, "c1", out.Lexical[0].ChunkID)
	assert.Equal(t, 1, out.Lexical[0].Rank)
	require.Len(t, out.Semantic, 1)
	assert.Equal(t, "c2", out.Semantic[0].ChunkID)
	require.Len(t, out.Facts, 1)
	require.Len(t, out.Turns, 1)

	require.Len(t, out.Reports, 4)
	for _, r := range out.Reports {
		assert.True(t, r.OK, "source %s", r.Source)
	}
}

func TestEngineSearchDegradesSingleFailure(t *testing.T) {
	eng := NewEngine(
		&stubLexical{results: []*LexicalResult{{ChunkID: "c1"}}},
		&stubVector{err: errors.New("milvus unavailable")},
		&stubEmbedder{},
		&stubFacts{},
		&stubTurns{},
		time.Second, 0.2,
	)

	out, err := eng.Search(context.Background(), SearchInput{
		ProjectID: "p1", Query: "q", Plan: allSourcesPlan(),
	})
	require.NoError(t, err)

	assert.Len(t, out.Lexical, 1)
	assert.Empty(t, out.Semantic)

	var semReport *SourceReport
	for i := range out.Reports {
		if out.Reports[i].Source == SourceSemantic {
			semReport = &out.Reports[i]
		}
	}
	require.NotNil(t, semReport)
	assert.False(t, semReport.OK)
	assert.Contains(t, semReport.Err, "milvus unavailable")
}

func TestEngineSearchEmbedderFailureDegradesSemantic(t *testing.T) {
	eng := NewEngine(
		&stubLexical{results: []*LexicalResult{{ChunkID: "c1"}}},
		&stubVector{results: []*VectorSearchResult{{ID: "c2"}}},
		&stubEmbedder{err: errors.New("embedding quota exceeded")},
		nil, nil,
		time.Second, 0.2,
	)

	out, err := eng.Search(context.Background(), SearchInput{
		ProjectID: "p1", Query: "q",
		Plan: Plan{Lexical: true, Semantic: true, LexicalLimit: 5, SemanticLimit: 5},
	})
	require.NoError(t, err)
	assert.Len(t, out.Lexical, 1)
	assert.Empty(t, out.Semantic)
}

func TestEngineSearchAllSourcesFailed(t *testing.T) {
	eng := NewEngine(
		&stubLexical{err: errors.New("index corrupt")},
		&stubVector{err: errors.New("milvus unavailable")},
		&stubEmbedder{},
		&stubFacts{err: errors.New("ontology down")},
		&stubTurns{err: errors.New("db down")},
		time.Second, 0.2,
	)

	_, err := eng.Search(context.Background(), SearchInput{
		ProjectID: "p1", Query: "q", Plan: allSourcesPlan(),
	})
	require.ErrorIs(t, err, ErrAllSourcesFailed)
}

func TestEngineSearchValidatesInput(t *testing.T) {
	eng := NewEngine(&stubLexical{}, nil, nil, nil, nil, time.Second, 0)

	_, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	require.Error(t, err)

	_, err = eng.Search(context.Background(), SearchInput{ProjectID: "p1", Query: "   "})
	require.Error(t, err)
}

func TestEngineSearchSkipsUnconfiguredSources(t *testing.T) {
	// vector/embedder/facts/turns 均未配置：仅词法来源参与
	eng := NewEngine(
		&stubLexical{results: []*LexicalResult{{ChunkID: "c1"}}},
		nil, nil, nil, nil,
		time.Second, 0,
	)

	out, err := eng.Search(context.Background(), SearchInput{
		ProjectID: "p1", Query: "q", Plan: allSourcesPlan(),
	})
	require.NoError(t, err)
	assert.Len(t, out.Lexical, 1)
	assert.Len(t, out.Reports, 1)
}

func TestEngineSearchRespectsCancelledContext(t *testing.T) {
	eng := NewEngine(&stubLexical{}, nil, nil, nil, nil, time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Search(ctx, SearchInput{
		ProjectID: "p1", Query: "q", Plan: Plan{Lexical: true, LexicalLimit: 5},
	})
	require.Error(t, err)
}
