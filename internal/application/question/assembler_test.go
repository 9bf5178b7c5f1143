package question

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	errs "project-context-api/pkg/errors"
)

func newTestAssembler(budget int) *Assembler {
	return NewAssembler(&config.AssemblerConfig{
		TokenBudget:   budget,
		ReservedTurns: 2,
		CharsPerToken: 4,
	})
}

// 每个切块 400 字符，按 4 字符/token 折算约 100 token
func chunkOfTokens(id string, tokens int) *retrieval.Fused {
	return &retrieval.Fused{
		ChunkID: id,
		Text:    strings.Repeat("x", tokens*4),
		Sources: []retrieval.Source{retrieval.SourceLexical},
	}
}

func TestEstimateTokens(t *testing.T) {
	a := newTestAssembler(4000)

	assert.Equal(t, 0, a.EstimateTokens(""))
	assert.Equal(t, 1, a.EstimateTokens("abc"))
	assert.Equal(t, 1, a.EstimateTokens("abcd"))
	assert.Equal(t, 2, a.EstimateTokens("abcde"))
	// 按 rune 计数而非字节
	assert.Equal(t, 1, a.EstimateTokens("你好啊"))
}

func TestAssembleBasicLayout(t *testing.T) {
	a := newTestAssembler(4000)

	prompt, err := a.Assemble(&AssembleInput{
		Question:     "电池容量是多少？",
		QuestionType: TypeFactual,
		Turns: []retrieval.Turn{
			{Role: "user", Text: "先聊聊机架"},
			{Role: "assistant", Text: "机架采用碳纤维"},
		},
		Facts: []retrieval.Fact{{ID: "f1", Text: "battery_capacity: 5000mAh"}},
		Fused: []*retrieval.Fused{
			{ChunkID: "c1", Text: "电池规格文档片段", Sources: []retrieval.Source{retrieval.SourceSemantic}},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt.Text, "【对话历史】")
	assert.Contains(t, prompt.Text, "【结构化事实】")
	assert.Contains(t, prompt.Text, "【召回上下文】")
	assert.Contains(t, prompt.Text, "【当前问题】")
	assert.Contains(t, prompt.Text, "[1] 电池规格文档片段")
	// 问题永远在末尾
	assert.True(t, strings.HasSuffix(prompt.Text, "电池容量是多少？"))

	assert.Equal(t, 2, prompt.TurnCount)
	assert.Equal(t, 1, prompt.FactCount)
	assert.Equal(t, 1, prompt.ChunkCount)
	require.Len(t, prompt.Citations, 1)
	assert.Equal(t, "vector", prompt.Citations[0].Store)
	assert.Equal(t, "c1", prompt.Citations[0].ChunkID)
	assert.Len(t, prompt.Citations[0].Hash, 16)
}

func TestAssembleBudgetAdmitsChunksInFusedOrder(t *testing.T) {
	a := newTestAssembler(560)

	// 硬性内容约 50 token，110 个 token 的切块最多放得下 4 个；
	// 第 5 个放不下时整个尾部丢弃，不回填更小的低分块
	var fused []*retrieval.Fused
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		fused = append(fused, chunkOfTokens(id, 110))
	}
	prompt, err := a.Assemble(&AssembleInput{
		Question: "what is the battery capacity",
		Fused:    fused,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, prompt.ChunkCount, 4)
	assert.LessOrEqual(t, prompt.TokensUsed, 560)
	// 收录顺序与融合排名一致
	for i, c := range prompt.Citations {
		assert.Equal(t, fused[i].ChunkID, c.ChunkID)
	}
}

func TestAssembleReservedTurnsNeverTruncated(t *testing.T) {
	a := newTestAssembler(200)

	longText := strings.Repeat("历史内容", 40)
	turns := []retrieval.Turn{
		{Role: "user", Text: longText},
		{Role: "assistant", Text: longText},
		{Role: "user", Text: "最新问题一"},
		{Role: "assistant", Text: "最新回答一"},
	}
	prompt, err := a.Assemble(&AssembleInput{
		Question: "继续",
		Turns:    turns,
	})
	require.NoError(t, err)

	// 末两轮完整保留，超预算的旧轮次被整段丢弃
	assert.Contains(t, prompt.Text, "最新问题一")
	assert.Contains(t, prompt.Text, "最新回答一")
	assert.Equal(t, 2, prompt.TurnCount)
}

func TestAssembleOlderTurnsKeptNewestFirstInChronologicalOrder(t *testing.T) {
	a := newTestAssembler(4000)

	turns := []retrieval.Turn{
		{Role: "user", Text: "第一轮"},
		{Role: "assistant", Text: "第二轮"},
		{Role: "user", Text: "第三轮"},
		{Role: "assistant", Text: "第四轮"},
	}
	prompt, err := a.Assemble(&AssembleInput{Question: "q", Turns: turns})
	require.NoError(t, err)
	assert.Equal(t, 4, prompt.TurnCount)

	// 输出保持时间正序
	i1 := strings.Index(prompt.Text, "第一轮")
	i4 := strings.Index(prompt.Text, "第四轮")
	require.GreaterOrEqual(t, i1, 0)
	require.Greater(t, i4, i1)
}

func TestAssembleBudgetExceededByHardContent(t *testing.T) {
	a := newTestAssembler(50)

	_, err := a.Assemble(&AssembleInput{
		Question: strings.Repeat("长问题", 200),
	})
	require.Error(t, err)

	appErr := errs.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errs.CodeBudgetExceeded, appErr.Code)
}

func TestAssembleEmptySectionsOmitted(t *testing.T) {
	a := newTestAssembler(4000)

	prompt, err := a.Assemble(&AssembleInput{Question: "只有问题"})
	require.NoError(t, err)

	assert.NotContains(t, prompt.Text, "【对话历史】")
	assert.NotContains(t, prompt.Text, "【结构化事实】")
	assert.NotContains(t, prompt.Text, "【召回上下文】")
	assert.Contains(t, prompt.Text, "【当前问题】")
	assert.Empty(t, prompt.Citations)
}

func TestAssembleCompactsMultilineChunks(t *testing.T) {
	a := newTestAssembler(4000)

	prompt, err := a.Assemble(&AssembleInput{
		Question: "q",
		Fused: []*retrieval.Fused{
			{ChunkID: "c1", Text: "line one\n\n  line   two\tline three"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt.Text, "[1] line one line two line three")
}

func TestCitationStorePrefersVector(t *testing.T) {
	assert.Equal(t, "vector", citationStore([]retrieval.Source{retrieval.SourceLexical, retrieval.SourceSemantic}))
	assert.Equal(t, "lexical", citationStore([]retrieval.Source{retrieval.SourceLexical}))
	assert.Equal(t, "lexical", citationStore(nil))
}
