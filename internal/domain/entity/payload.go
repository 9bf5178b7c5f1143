// Package entity 定义领域实体
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ThreadOpenedPayload thread_opened 事件负载
type ThreadOpenedPayload struct {
	ThreadID    string `json:"thread_id"`
	GoalSummary string `json:"goal_summary,omitempty"`
}

// ThreadClosedPayload thread_closed 事件负载
type ThreadClosedPayload struct {
	ThreadID string `json:"thread_id"`
	Reason   string `json:"reason,omitempty"`
}

// TurnRecordedPayload turn_recorded 事件负载
type TurnRecordedPayload struct {
	ThreadID    string   `json:"thread_id"`
	TurnID      string   `json:"turn_id"`
	Role        Role     `json:"role"`
	Text        string   `json:"text"`
	ContextRefs []string `json:"context_refs,omitempty"`
}

// QuestionReceivedPayload question_received 事件负载
type QuestionReceivedPayload struct {
	ThreadID string `json:"thread_id"`
	Question string `json:"question"`
}

// AnswerRecordedPayload answer_recorded 事件负载
type AnswerRecordedPayload struct {
	ThreadID  string     `json:"thread_id"`
	TurnID    string     `json:"turn_id"`
	Citations []Citation `json:"citations,omitempty"`
}

// ChunkIngestedPayload chunk_ingested 事件负载
type ChunkIngestedPayload struct {
	ChunkID    string `json:"chunk_id"`
	SourceType string `json:"source_type"`
	Title      string `json:"title,omitempty"`
}

// OntologyChangedPayload ontology_changed 事件负载
type OntologyChangedPayload struct {
	FactIDs []string `json:"fact_ids,omitempty"`
	Change  string   `json:"change"`
}

// Citation 上下文引用（弱引用，仅按标识查找）
type Citation struct {
	Store   string `json:"store"`
	ChunkID string `json:"chunk_id"`
	Hash    string `json:"hash,omitempty"`
}

// payloadPrototypes 事件类型到负载结构的映射
var payloadPrototypes = map[EventType]func() any{
	EventTypeThreadOpened:     func() any { return &ThreadOpenedPayload{} },
	EventTypeThreadClosed:     func() any { return &ThreadClosedPayload{} },
	EventTypeTurnRecorded:     func() any { return &TurnRecordedPayload{} },
	EventTypeQuestionReceived: func() any { return &QuestionReceivedPayload{} },
	EventTypeAnswerRecorded:   func() any { return &AnswerRecordedPayload{} },
	EventTypeChunkIngested:    func() any { return &ChunkIngestedPayload{} },
	EventTypeOntologyChanged:  func() any { return &OntologyChangedPayload{} },
}

// DecodePayload 按事件类型解码负载；未知类型或负载不合法时返回错误
func DecodePayload(eventType EventType, raw json.RawMessage) (any, error) {
	proto, ok := payloadPrototypes[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	target := proto()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("invalid payload for event type %q: %w", eventType, err)
	}
	return target, nil
}

// ValidatePayload 校验负载是否符合事件类型的封闭 schema
func ValidatePayload(eventType EventType, raw json.RawMessage) error {
	_, err := DecodePayload(eventType, raw)
	return err
}

// MarshalPayload 序列化已知负载结构
func MarshalPayload(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}
