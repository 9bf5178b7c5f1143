// Package question 提供问题分类、来源选择、上下文装配与问答编排
package question

import (
	"strings"

	"project-context-api/internal/application/retrieval"
)

// Type 问题类型轴
type Type string

const (
	TypeFactual        Type = "factual"
	TypeExploratory    Type = "exploratory"
	TypeAnalytical     Type = "analytical"
	TypeComparative    Type = "comparative"
	TypeTemporal       Type = "temporal"
	TypeProcedural     Type = "procedural"
	TypeConversational Type = "conversational"
)

// Scope 问题范围轴
type Scope string

const (
	ScopeStructuredFacts   Scope = "structured_facts"
	ScopeDocumentKnowledge Scope = "document_knowledge"
	ScopeActivityHistory   Scope = "activity_history"
	ScopeProjectMetadata   Scope = "project_metadata"
	ScopeUnclear           Scope = "unclear"
)

// Classification 两轴分类结果
// 每次请求独立判定，不携带跨请求状态
type Classification struct {
	Type       Type
	Scope      Scope
	Confidence float64
}

// LowConfidence 置信度阈值之下时选择器回退到全来源
func (c Classification) LowConfidence() bool {
	return c.Confidence < 0.5
}

// Classifier 规则式问题分类器
type Classifier struct{}

// NewClassifier 创建分类器
func NewClassifier() *Classifier {
	return &Classifier{}
}

type typeRule struct {
	kind    Type
	phrases []string
}

type scopeRule struct {
	scope   Scope
	phrases []string
}

// 规则按优先级排列，命中数相同取靠前者
var typeRules = []typeRule{
	{TypeProcedural, []string{
		"how do i", "how to", "how can i", "steps to", "procedure", "walk me through", "guide",
	}},
	{TypeComparative, []string{
		"compare", " versus ", " vs ", " vs. ", "difference between", "better than", "which is",
	}},
	{TypeTemporal, []string{
		"when did", "when was", "history of", "timeline", "recently", "last week", "last month", "changed over",
	}},
	{TypeAnalytical, []string{
		"why", "explain", "analyze", "analyse", "root cause", "impact of", "implications", "reason",
	}},
	{TypeConversational, []string{
		"you said", "you mentioned", "as before", "again", "thanks", "thank you", "what do you mean",
	}},
	{TypeFactual, []string{
		"what is the", "what is a", "how many", "how much", "max ", "maximum", "minimum", "value of", "who is",
	}},
	{TypeExploratory, []string{
		"tell me about", "what about", "overview of", "describe", "summarize", "summary of", "anything about",
	}},
}

var scopeRules = []scopeRule{
	{ScopeStructuredFacts, []string{
		"how many", "how much", "max ", "maximum", "minimum", "spec", "parameter", "limit of",
		"capacity", "altitude", "weight", "dimension", "value of", "rated",
	}},
	{ScopeActivityHistory, []string{
		"who changed", "who added", "when did we", "last time", "history of", "decision", "decided",
		"previous session", "what happened",
	}},
	{ScopeProjectMetadata, []string{
		"this project", "project name", "project goal", "project status", "what are we working on",
	}},
	{ScopeDocumentKnowledge, []string{
		"document", "doc ", "mentioned in", "according to", "tell me about", "describe", "overview",
		"explain", "how to", "how do",
	}},
}

// Classify 按问题文本与近期用户提问做两轴分类
// recentPrompts 只用于识别延续性的对话式提问，可为空
func (c *Classifier) Classify(questionText string, recentPrompts []string) Classification {
	q := " " + strings.ToLower(strings.TrimSpace(questionText)) + " "
	if strings.TrimSpace(questionText) == "" {
		return Classification{Type: TypeConversational, Scope: ScopeUnclear, Confidence: 0.0}
	}

	qType, typeHits := matchType(q)
	scope, scopeHits := matchScope(q)

	// 明显的标识符查询强烈指向结构化事实
	if retrieval.LooksLikeIdentifierQuery(questionText) {
		if scopeHits == 0 {
			scope = ScopeStructuredFacts
		}
		scopeHits++
		if typeHits == 0 {
			qType = TypeFactual
			typeHits = 1
		}
	}

	// 极短的追问且近期有提问历史，按对话式处理
	if typeHits == 0 && len(recentPrompts) > 0 && len([]rune(strings.TrimSpace(questionText))) <= 24 {
		qType = TypeConversational
		typeHits = 1
	}

	if typeHits == 0 {
		qType = TypeExploratory
	}
	if scopeHits == 0 {
		scope = ScopeUnclear
	}

	confidence := 0.3
	if typeHits > 0 {
		confidence += 0.25
	}
	if scopeHits > 0 {
		confidence += 0.25
	}
	if typeHits > 1 || scopeHits > 1 {
		confidence += 0.15
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	return Classification{
		Type:       qType,
		Scope:      scope,
		Confidence: confidence,
	}
}

func matchType(q string) (Type, int) {
	var best Type
	bestHits := 0
	for _, rule := range typeRules {
		if hits := countHits(q, rule.phrases); hits > bestHits {
			best = rule.kind
			bestHits = hits
		}
	}
	return best, bestHits
}

func matchScope(q string) (Scope, int) {
	var best Scope
	bestHits := 0
	for _, rule := range scopeRules {
		if hits := countHits(q, rule.phrases); hits > bestHits {
			best = rule.scope
			bestHits = hits
		}
	}
	return best, bestHits
}

func countHits(q string, phrases []string) int {
	hits := 0
	for _, phrase := range phrases {
		if strings.Contains(q, phrase) {
			hits++
		}
	}
	return hits
}
