package question

import (
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
)

const (
	defaultTurnLimit = 12
	defaultFactLimit = 10
)

// Selector 把分类结果翻译成检索计划
//
// 对话轮次与项目元数据无条件拉取，范围轴只决定额外启用哪些来源。
// 低置信度时宁可多查，回退到全来源超集。
type Selector struct {
	cfg *config.RetrievalConfig
}

// NewSelector 创建来源选择器
func NewSelector(cfg *config.RetrievalConfig) *Selector {
	return &Selector{cfg: cfg}
}

// BuildPlan 按问题与分类结果构造检索计划
func (s *Selector) BuildPlan(questionText string, c Classification) retrieval.Plan {
	plan := retrieval.Plan{
		Turns:          true,
		LexicalLimit:   s.cfg.LexicalLimit,
		SemanticLimit:  s.cfg.VectorLimit,
		FactLimit:      defaultFactLimit,
		TurnLimit:      defaultTurnLimit,
		SemanticWeight: retrieval.BiasForIdentifiers(questionText, s.cfg.SemanticWeight),
	}

	if c.LowConfidence() || c.Scope == ScopeUnclear {
		plan.Lexical = true
		plan.Semantic = true
		plan.Ontology = true
		return plan
	}

	switch c.Scope {
	case ScopeStructuredFacts:
		plan.Ontology = true
		// 标识符经常只出现在文档原文里，本体缺条目时词法是兜底
		plan.Lexical = true
	case ScopeDocumentKnowledge:
		plan.Lexical = true
		plan.Semantic = true
	case ScopeActivityHistory:
		// 事件摘要以文档切块形式入索引，历史问题同样走混合检索
		plan.Lexical = true
		plan.Semantic = true
	case ScopeProjectMetadata:
		// 元数据随轮次一并带出，不再扇出文档检索
	}

	// 时间与对话延续类问题提升轮次窗口
	if c.Type == TypeTemporal || c.Type == TypeConversational {
		plan.TurnLimit = defaultTurnLimit * 2
	}

	return plan
}
