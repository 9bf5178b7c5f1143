// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型（封闭集合）
type EventType string

const (
	EventTypeThreadOpened     EventType = "thread_opened"
	EventTypeThreadClosed     EventType = "thread_closed"
	EventTypeTurnRecorded     EventType = "turn_recorded"
	EventTypeQuestionReceived EventType = "question_received"
	EventTypeAnswerRecorded   EventType = "answer_recorded"
	EventTypeChunkIngested    EventType = "chunk_ingested"
	EventTypeOntologyChanged  EventType = "ontology_changed"
)

// KnownEventTypes 列出全部已知事件类型
var KnownEventTypes = []EventType{
	EventTypeThreadOpened,
	EventTypeThreadClosed,
	EventTypeTurnRecorded,
	EventTypeQuestionReceived,
	EventTypeAnswerRecorded,
	EventTypeChunkIngested,
	EventTypeOntologyChanged,
}

// IsKnown 判断事件类型是否属于封闭集合
func (t EventType) IsKnown() bool {
	for _, known := range KnownEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event 项目事件（追加写入，不可变）
// 同一项目内 sequence 严格递增且无空洞；(project_id, id) 为去重键
type Event struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID string          `json:"project_id" gorm:"type:uuid;index:idx_events_project_seq,unique,priority:1;not null"`
	Sequence  int64           `json:"sequence" gorm:"index:idx_events_project_seq,unique,priority:2;not null"`
	Type      EventType       `json:"type" gorm:"type:varchar(32);not null"`
	Payload   json.RawMessage `json:"payload" gorm:"type:jsonb;not null"`
	Producer  string          `json:"producer" gorm:"type:varchar(64);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Event) TableName() string {
	return "context_events"
}

// NewEvent 创建新事件（sequence 由事件日志追加时分配）
func NewEvent(projectID string, eventType EventType, payload json.RawMessage, producer string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      eventType,
		Payload:   payload,
		Producer:  producer,
		CreatedAt: time.Now(),
	}
}
