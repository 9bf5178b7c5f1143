package dto

import (
	"project-context-api/internal/application/question"
)

// DebugSearchRequest 检索调试请求
type DebugSearchRequest struct {
	Query string `json:"query" binding:"required"`
}

// FusedChunkResponse 融合结果响应
type FusedChunkResponse struct {
	ChunkID string   `json:"chunk_id"`
	Score   float64  `json:"score"`
	Sources []string `json:"sources"`
	Text    string   `json:"text"`
}

// FactResponse 结构化事实响应
type FactResponse struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// PlanResponse 检索计划响应
type PlanResponse struct {
	Lexical        bool    `json:"lexical"`
	Semantic       bool    `json:"semantic"`
	Ontology       bool    `json:"ontology"`
	Turns          bool    `json:"turns"`
	SemanticWeight float64 `json:"semantic_weight"`
}

// DebugSearchResponse 检索调试响应
type DebugSearchResponse struct {
	Classification ClassificationResponse `json:"classification"`
	Plan           PlanResponse           `json:"plan"`
	Fused          []*FusedChunkResponse  `json:"fused"`
	Facts          []FactResponse         `json:"facts,omitempty"`
	Sources        []SourceReportResponse `json:"sources"`
}

// ToDebugSearchResponse 转换检索调试结果
func ToDebugSearchResponse(d *question.SearchDebug) *DebugSearchResponse {
	fused := make([]*FusedChunkResponse, 0, len(d.Fused))
	for _, f := range d.Fused {
		sources := make([]string, 0, len(f.Sources))
		for _, s := range f.Sources {
			sources = append(sources, string(s))
		}
		fused = append(fused, &FusedChunkResponse{
			ChunkID: f.ChunkID,
			Score:   f.Score,
			Sources: sources,
			Text:    f.Text,
		})
	}

	facts := make([]FactResponse, 0, len(d.Facts))
	for _, f := range d.Facts {
		facts = append(facts, FactResponse{ID: f.ID, Text: f.Text, Score: f.Score})
	}

	return &DebugSearchResponse{
		Classification: ClassificationResponse{
			Type:       string(d.Classification.Type),
			Scope:      string(d.Classification.Scope),
			Confidence: d.Classification.Confidence,
		},
		Plan: PlanResponse{
			Lexical:        d.Plan.Lexical,
			Semantic:       d.Plan.Semantic,
			Ontology:       d.Plan.Ontology,
			Turns:          d.Plan.Turns,
			SemanticWeight: d.Plan.SemanticWeight,
		},
		Fused:   fused,
		Facts:   facts,
		Sources: ToSourceReportResponses(d.Reports),
	}
}
