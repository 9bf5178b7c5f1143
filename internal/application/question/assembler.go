package question

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	"project-context-api/internal/domain/entity"
	errs "project-context-api/pkg/errors"
	"project-context-api/pkg/metrics"
)

const (
	promptHeader = "你是项目上下文助手。仅依据下方给出的上下文回答问题，" +
		"引用召回片段时使用对应编号，上下文不足以回答时明确说明。"

	sectionTurns  = "【对话历史】"
	sectionFacts  = "【结构化事实】"
	sectionChunks = "【召回上下文】"
	sectionAsk    = "【当前问题】"
)

// Prompt 装配产物
type Prompt struct {
	Text       string
	Citations  []entity.Citation
	TokensUsed int

	TurnCount  int
	FactCount  int
	ChunkCount int
}

// AssembleInput 装配输入
// Fused 必须已按融合得分降序排列，Turns 按时间升序排列
type AssembleInput struct {
	Question     string
	QuestionType Type
	Fused        []*retrieval.Fused
	Turns        []retrieval.Turn
	Facts        []retrieval.Fact
}

// Assembler 在 token 预算内拼装提示词
//
// 保留轮次与问题本身是硬性内容，超出预算直接报错而不是静默截断；
// 其余内容按优先级整段取舍：旧轮次 > 结构化事实 > 召回切块。
// 切块永远不做段内截断，放不下就整段丢弃。
type Assembler struct {
	budget        int
	reservedTurns int
	charsPerToken float64
}

// NewAssembler 创建装配器
func NewAssembler(cfg *config.AssemblerConfig) *Assembler {
	a := &Assembler{
		budget:        cfg.TokenBudget,
		reservedTurns: cfg.ReservedTurns,
		charsPerToken: cfg.CharsPerToken,
	}
	if a.budget <= 0 {
		a.budget = 4000
	}
	if a.reservedTurns <= 0 {
		a.reservedTurns = 2
	}
	if a.charsPerToken <= 0 {
		a.charsPerToken = 4
	}
	return a
}

// EstimateTokens 估算文本 token 数，按字符数折算向上取整
func (a *Assembler) EstimateTokens(s string) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / a.charsPerToken))
}

// Assemble 拼装提示词并返回引用清单
func (a *Assembler) Assemble(in *AssembleInput) (*Prompt, error) {
	reservedStart := len(in.Turns) - a.reservedTurns
	if reservedStart < 0 {
		reservedStart = 0
	}
	reserved := in.Turns[reservedStart:]
	older := in.Turns[:reservedStart]

	askBlock := sectionAsk + "\n" + strings.TrimSpace(in.Question)

	// 硬性内容先行核算，保留轮次与问题本身不参与截断
	used := a.EstimateTokens(promptHeader) + a.EstimateTokens(askBlock)
	var reservedLines []string
	for _, t := range reserved {
		line := formatTurn(t)
		used += a.EstimateTokens(line)
		reservedLines = append(reservedLines, line)
	}
	if used > a.budget {
		metrics.BudgetExceededTotal.Inc()
		return nil, errs.ErrBudgetExceeded.WithDetail(
			fmt.Sprintf("question and reserved turns need %d tokens, budget is %d", used, a.budget))
	}

	// 旧轮次从最近往前补，保持最终输出仍按时间正序
	var olderLines []string
	for i := len(older) - 1; i >= 0; i-- {
		line := formatTurn(older[i])
		cost := a.EstimateTokens(line)
		if used+cost > a.budget {
			break
		}
		used += cost
		olderLines = append([]string{line}, olderLines...)
	}

	var factLines []string
	for _, f := range in.Facts {
		line := "- " + compactOneLine(f.Text)
		cost := a.EstimateTokens(line)
		if used+cost > a.budget {
			break
		}
		used += cost
		factLines = append(factLines, line)
	}

	// 切块按融合得分顺序整段收录，放不下时从低分尾部整体舍弃
	var chunkLines []string
	var citations []entity.Citation
	for _, fc := range in.Fused {
		idx := len(citations) + 1
		line := fmt.Sprintf("[%d] %s", idx, compactOneLine(fc.Text))
		cost := a.EstimateTokens(line)
		if used+cost > a.budget {
			break
		}
		used += cost
		chunkLines = append(chunkLines, line)
		citations = append(citations, entity.Citation{
			Store:   citationStore(fc.Sources),
			ChunkID: fc.ChunkID,
			Hash:    contentHash(fc.Text),
		})
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	if len(olderLines) > 0 || len(reservedLines) > 0 {
		b.WriteString("\n\n" + sectionTurns)
		for _, line := range olderLines {
			b.WriteString("\n" + line)
		}
		for _, line := range reservedLines {
			b.WriteString("\n" + line)
		}
	}
	if len(factLines) > 0 {
		b.WriteString("\n\n" + sectionFacts)
		for _, line := range factLines {
			b.WriteString("\n" + line)
		}
	}
	if len(chunkLines) > 0 {
		b.WriteString("\n\n" + sectionChunks)
		for _, line := range chunkLines {
			b.WriteString("\n" + line)
		}
	}
	b.WriteString("\n\n" + askBlock)

	metrics.PromptTokens.WithLabelValues(string(in.QuestionType)).Observe(float64(used))

	return &Prompt{
		Text:       b.String(),
		Citations:  citations,
		TokensUsed: used,
		TurnCount:  len(olderLines) + len(reservedLines),
		FactCount:  len(factLines),
		ChunkCount: len(chunkLines),
	}, nil
}

func formatTurn(t retrieval.Turn) string {
	return t.Role + ": " + compactOneLine(t.Text)
}

// compactOneLine 压平换行与连续空白，不丢弃内容
func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func citationStore(sources []retrieval.Source) string {
	for _, s := range sources {
		if s == retrieval.SourceSemantic {
			return "vector"
		}
	}
	return "lexical"
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
