// Package entity 定义领域实体
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// SourceType chunk 来源类型
type SourceType string

const (
	SourceTypeDocument     SourceType = "document"
	SourceTypeEventSummary SourceType = "event_summary"
	SourceTypeOntologyFact SourceType = "ontology_fact"
)

// Chunk 索引文本单元
// 由摄取侧产出，引擎只读；ID 按内容寻址，两套索引引用同一单元
type Chunk struct {
	ID         string          `json:"id" gorm:"type:varchar(64);primaryKey"`
	ProjectID  string          `json:"project_id" gorm:"type:uuid;index;not null"`
	SourceType SourceType      `json:"source_type" gorm:"type:varchar(32);not null"`
	Title      string          `json:"title,omitempty" gorm:"type:text"`
	Entities   pq.StringArray  `json:"entities,omitempty" gorm:"type:text[]"`
	Text       string          `json:"text" gorm:"type:text;not null"`
	Metadata   json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Chunk) TableName() string {
	return "chunks"
}

// ChunkID 按来源与内容计算稳定的 chunk 标识
func ChunkID(source, text string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// ContentHash 计算 chunk 文本摘要（引用指纹）
func (c *Chunk) ContentHash() string {
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:8])
}

// NewChunk 创建新 chunk，ID 由来源与文本派生
func NewChunk(projectID string, sourceType SourceType, title, text string, entities []string) *Chunk {
	return &Chunk{
		ID:         ChunkID(string(sourceType)+":"+title, text),
		ProjectID:  projectID,
		SourceType: sourceType,
		Title:      title,
		Entities:   entities,
		Text:       text,
		CreatedAt:  time.Now(),
	}
}
