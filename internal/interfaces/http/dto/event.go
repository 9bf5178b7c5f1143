package dto

import (
	"encoding/json"
	"time"

	"project-context-api/internal/domain/entity"
)

// AppendEventRequest 追加事件请求
type AppendEventRequest struct {
	// EventID 调用方幂等键，可选；重复提交同一键不会产生第二条事件
	EventID  string          `json:"event_id,omitempty"`
	Type     string          `json:"type" binding:"required"`
	Payload  json.RawMessage `json:"payload" binding:"required"`
	Producer string          `json:"producer,omitempty"`
}

// AppendEventResponse 追加事件响应
type AppendEventResponse struct {
	EventID   string `json:"event_id"`
	Sequence  int64  `json:"sequence"`
	Duplicate bool   `json:"duplicate"`
}

// EventResponse 事件响应
type EventResponse struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Sequence  int64           `json:"sequence"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Producer  string          `json:"producer,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventListResponse 事件列表响应
// NextCursor 是已返回事件的最大 sequence，供下一次 since 使用
type EventListResponse struct {
	Events     []*EventResponse `json:"events"`
	NextCursor int64            `json:"next_cursor"`
}

// ToEventResponse 转换事件
func ToEventResponse(e *entity.Event) *EventResponse {
	return &EventResponse{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		Payload:   e.Payload,
		Producer:  e.Producer,
		CreatedAt: e.CreatedAt,
	}
}

// ToEventListResponse 转换事件列表
func ToEventListResponse(events []*entity.Event, since int64) *EventListResponse {
	out := make([]*EventResponse, 0, len(events))
	cursor := since
	for _, e := range events {
		out = append(out, ToEventResponse(e))
		if e.Sequence > cursor {
			cursor = e.Sequence
		}
	}
	return &EventListResponse{Events: out, NextCursor: cursor}
}

// CursorResponse 游标响应
type CursorResponse struct {
	ProjectID string `json:"project_id"`
	Cursor    int64  `json:"cursor"`
}
