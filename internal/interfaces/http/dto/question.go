package dto

import (
	"project-context-api/internal/application/question"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/domain/entity"
)

// AskRequest 提问请求
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	ThreadID string `json:"thread_id,omitempty"`
	Provider string `json:"provider,omitempty"`
	Producer string `json:"producer,omitempty"`

	// Stream 为真时通过 SSE 推送增量回答
	Stream bool `json:"stream,omitempty"`
}

// CitationResponse 引用响应
type CitationResponse struct {
	Store   string `json:"store"`
	ChunkID string `json:"chunk_id"`
	Hash    string `json:"hash,omitempty"`
}

// ClassificationResponse 分类结果响应
type ClassificationResponse struct {
	Type       string  `json:"type"`
	Scope      string  `json:"scope"`
	Confidence float64 `json:"confidence"`
}

// SourceReportResponse 来源汇报响应
type SourceReportResponse struct {
	Source     string `json:"source"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Count      int    `json:"count"`
	DurationMs int64  `json:"duration_ms"`
}

// AskResponse 提问响应
type AskResponse struct {
	ThreadID        string                 `json:"thread_id"`
	UserTurnID      string                 `json:"user_turn_id"`
	AssistantTurnID string                 `json:"assistant_turn_id"`
	Answer          string                 `json:"answer"`
	Citations       []CitationResponse     `json:"citations,omitempty"`
	Classification  ClassificationResponse `json:"classification"`
	TokensUsed      int                    `json:"tokens_used"`
	Sources         []SourceReportResponse `json:"sources,omitempty"`
}

// ToAskResponse 转换问答结果
func ToAskResponse(r *question.AskResult) *AskResponse {
	return &AskResponse{
		ThreadID:        r.ThreadID,
		UserTurnID:      r.UserTurnID,
		AssistantTurnID: r.AssistantTurn,
		Answer:          r.Answer,
		Citations:       ToCitationResponses(r.Citations),
		Classification: ClassificationResponse{
			Type:       string(r.Classification.Type),
			Scope:      string(r.Classification.Scope),
			Confidence: r.Classification.Confidence,
		},
		TokensUsed: r.TokensUsed,
		Sources:    ToSourceReportResponses(r.Reports),
	}
}

// ToCitationResponses 转换引用列表
func ToCitationResponses(citations []entity.Citation) []CitationResponse {
	out := make([]CitationResponse, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationResponse{
			Store:   c.Store,
			ChunkID: c.ChunkID,
			Hash:    c.Hash,
		})
	}
	return out
}

// ToSourceReportResponses 转换来源汇报列表
func ToSourceReportResponses(reports []retrieval.SourceReport) []SourceReportResponse {
	out := make([]SourceReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, SourceReportResponse{
			Source:     string(r.Source),
			OK:         r.OK,
			Error:      r.Err,
			Count:      r.Count,
			DurationMs: r.Duration.Milliseconds(),
		})
	}
	return out
}
