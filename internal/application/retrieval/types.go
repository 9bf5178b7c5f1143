package retrieval

import "time"

// Source 检索来源
type Source string

const (
	SourceLexical  Source = "lexical"
	SourceSemantic Source = "semantic"
	SourceOntology Source = "ontology"
	SourceTurns    Source = "turns"
)

// Result 单一来源的检索结果，仅存活于一次查询
type Result struct {
	ChunkID  string
	Rank     int // 1-based 列表内排名
	Source   Source
	RawScore float64
	Text     string
}

// Fused 融合后的结果，仅存活于一次查询
type Fused struct {
	ChunkID string
	Score   float64
	Sources []Source
	Text    string
}

// Fact 本体协作方返回的结构化事实
type Fact struct {
	ID    string
	Text  string
	Score float64
}

// SourceReport 单一来源的扇出结果汇报
type SourceReport struct {
	Source   Source
	OK       bool
	Err      string
	Count    int
	Duration time.Duration
}

// SearchInput 扇出检索输入
type SearchInput struct {
	ProjectID string
	Query     string
	ThreadID  string

	// Plan 决定查询哪些来源与各来源上限
	Plan Plan
}

// Plan 来源检索计划（由问题分类器产出）
type Plan struct {
	Lexical  bool
	Semantic bool
	Ontology bool
	Turns    bool

	LexicalLimit  int
	SemanticLimit int
	FactLimit     int
	TurnLimit     int

	// SemanticWeight 融合时语义列表的权重，偏标识符的查询会被调低
	SemanticWeight float64
}

// Context 扇出检索的汇总产出
type Context struct {
	Lexical  []*Result
	Semantic []*Result
	Facts    []Fact
	Turns    []Turn

	Reports []SourceReport
}

// Turn 供装配使用的会话轮次视图
type Turn struct {
	Role      string
	Text      string
	CreatedAt time.Time
}
