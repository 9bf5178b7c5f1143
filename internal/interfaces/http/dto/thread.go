package dto

import (
	"time"

	"project-context-api/internal/domain/entity"
)

// OpenThreadRequest 打开线程请求
type OpenThreadRequest struct {
	GoalSummary string `json:"goal_summary,omitempty"`
	Producer    string `json:"producer,omitempty"`
}

// CloseThreadRequest 关闭线程请求
type CloseThreadRequest struct {
	Reason   string `json:"reason,omitempty"`
	Producer string `json:"producer,omitempty"`
}

// ThreadResponse 线程响应
type ThreadResponse struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Status      string    `json:"status"`
	GoalSummary string    `json:"goal_summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TurnResponse 轮次响应
type TurnResponse struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	ContextRefs []string  `json:"context_refs,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TurnListResponse 轮次列表响应
type TurnListResponse struct {
	Turns []*TurnResponse `json:"turns"`
}

// ToThreadResponse 转换线程
func ToThreadResponse(t *entity.Thread) *ThreadResponse {
	return &ThreadResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Status:      string(t.Status),
		GoalSummary: t.GoalSummary,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ToTurnListResponse 转换轮次列表
func ToTurnListResponse(turns []*entity.Turn) *TurnListResponse {
	out := make([]*TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, &TurnResponse{
			ID:          t.ID,
			ThreadID:    t.ThreadID,
			Role:        string(t.Role),
			Text:        t.Text,
			ContextRefs: t.ContextRefs,
			CreatedAt:   t.CreatedAt,
		})
	}
	return &TurnListResponse{Turns: out}
}
