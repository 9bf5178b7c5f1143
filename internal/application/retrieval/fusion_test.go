package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexList(ids ...string) []*Result {
	out := make([]*Result, 0, len(ids))
	for i, id := range ids {
		out = append(out, &Result{ChunkID: id, Rank: i + 1, Source: SourceLexical, Text: "lex:" + id})
	}
	return out
}

func semList(ids ...string) []*Result {
	out := make([]*Result, 0, len(ids))
	for i, id := range ids {
		out = append(out, &Result{ChunkID: id, Rank: i + 1, Source: SourceSemantic, Text: "sem:" + id})
	}
	return out
}

func fusedIDs(fused []*Fused) []string {
	out := make([]string, 0, len(fused))
	for _, f := range fused {
		out = append(out, f.ChunkID)
	}
	return out
}

func TestFuseRankOrder(t *testing.T) {
	// 词法 [A,B,C] 与语义 [B,A,D]，k=60、等权：
	// B: 1/62+1/61, A: 1/61+1/62, C: 1/63, D: 1/63
	fused := Fuse(lexList("A", "B", "C"), semList("B", "A", "D"), FuseOptions{K: 60, SemanticWeight: 0.5})
	require.Len(t, fused, 4)

	// A 与 B 同分，语义列表中 B 更早；C 与 D 同分，D 在语义列表而 C 不在
	assert.Equal(t, []string{"B", "A", "D", "C"}, fusedIDs(fused))

	byID := make(map[string]*Fused)
	for _, f := range fused {
		byID[f.ChunkID] = f
	}
	assert.InDelta(t, 1.0/62+1.0/61, byID["B"].Score, 1e-12)
	assert.InDelta(t, 1.0/61+1.0/62, byID["A"].Score, 1e-12)
	assert.InDelta(t, 1.0/63, byID["C"].Score, 1e-12)
	assert.InDelta(t, 1.0/63, byID["D"].Score, 1e-12)
}

func TestFuseBothListsBeatSingleList(t *testing.T) {
	fused := Fuse(lexList("X", "Y"), semList("Y"), FuseOptions{SemanticWeight: 0.5})
	require.NotEmpty(t, fused)
	assert.Equal(t, "Y", fused[0].ChunkID)
	assert.ElementsMatch(t, []Source{SourceLexical, SourceSemantic}, fused[0].Sources)
}

func TestFuseSemanticWeightZeroIgnoresSemantic(t *testing.T) {
	// w=0 时语义贡献乘 0，纯词法排序
	fused := Fuse(lexList("A", "B"), semList("B", "C"), FuseOptions{SemanticWeight: 0})
	require.Len(t, fused, 3)
	assert.Equal(t, "A", fused[0].ChunkID)
	assert.Equal(t, "B", fused[1].ChunkID)
	// C 仅在语义列表，得分 0，排最后
	assert.Equal(t, "C", fused[2].ChunkID)
	assert.Zero(t, fused[2].Score)
}

func TestFuseLimitTruncatesTail(t *testing.T) {
	fused := Fuse(lexList("A", "B", "C", "D"), nil, FuseOptions{Limit: 2})
	require.Len(t, fused, 2)
	assert.Equal(t, []string{"A", "B"}, fusedIDs(fused))
}

func TestFuseEmptyLists(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, FuseOptions{}))

	fused := Fuse(nil, semList("A"), FuseOptions{})
	require.Len(t, fused, 1)
	assert.Equal(t, "A", fused[0].ChunkID)
}

func TestFuseKeepsFirstSeenText(t *testing.T) {
	lex := []*Result{{ChunkID: "A", Rank: 1, Source: SourceLexical, Text: "from-lexical"}}
	sem := []*Result{{ChunkID: "A", Rank: 1, Source: SourceSemantic, Text: "from-semantic"}}
	fused := Fuse(lex, sem, FuseOptions{})
	require.Len(t, fused, 1)
	assert.Equal(t, "from-lexical", fused[0].Text)
}

func TestLooksLikeIdentifierQuery(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"what is the motor spec of T4", true},
		{"RFC7231 semantics", true},
		{"requirement req-042 status", true},
		{"max speed 3000m range", true},
		{"HTTP timeout policy", true},
		{"how does the drone navigate home", false},
		{"tell me about the project", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LooksLikeIdentifierQuery(tc.query), "query=%q", tc.query)
	}
}

func TestBiasForIdentifiers(t *testing.T) {
	// 标识符查询：语义权重乘 0.6 并封顶 0.35
	assert.InDelta(t, 0.3, BiasForIdentifiers("model X9", 0.5), 1e-12)
	assert.InDelta(t, 0.35, BiasForIdentifiers("model X9", 0.9), 1e-12)
	// 非标识符查询原样返回
	assert.InDelta(t, 0.7, BiasForIdentifiers("how does it work", 0.7), 1e-12)
}

// 混合检索回归：编号型查询在词法列表命中的精确 chunk
// 必须压过仅语义相似的泛化 chunk
func TestFuseIdentifierQueryPrefersExactMatch(t *testing.T) {
	query := "what is the rotor diameter of the T4 quadcopter"
	require.True(t, LooksLikeIdentifierQuery(query))

	sw := BiasForIdentifiers(query, 0.5)
	lex := lexList("spec-t4-rotor", "spec-t4-frame")
	sem := semList("blog-quadcopters-general", "spec-t4-frame", "spec-t4-rotor")

	fused := Fuse(lex, sem, FuseOptions{K: DefaultRRFK, SemanticWeight: sw})
	require.NotEmpty(t, fused)
	assert.Equal(t, "spec-t4-rotor", fused[0].ChunkID)
}
