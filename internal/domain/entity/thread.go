// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ThreadStatus 线程状态
type ThreadStatus string

const (
	ThreadStatusActive ThreadStatus = "active"
	ThreadStatusClosed ThreadStatus = "closed"
)

// Thread 项目会话线程
// 每个项目同一时刻至多一个活跃线程；关闭为终态
type Thread struct {
	ID          string       `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID   string       `json:"project_id" gorm:"type:uuid;index;not null"`
	Status      ThreadStatus `json:"status" gorm:"type:varchar(16);not null;default:'active'"`
	GoalSummary string       `json:"goal_summary,omitempty" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Thread) TableName() string {
	return "threads"
}

// NewThread 创建新线程
func NewThread(projectID string) *Thread {
	now := time.Now()
	return &Thread{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    ThreadStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive 判断线程是否活跃
func (t *Thread) IsActive() bool {
	return t.Status == ThreadStatusActive
}

// Turn 会话轮次（追加写入，提交后不可变）
// ContextRefs 是对 chunk 标识的弱引用，仅用于查找
type Turn struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey"`
	ThreadID    string         `json:"thread_id" gorm:"type:uuid;index;not null"`
	Role        Role           `json:"role" gorm:"type:varchar(16);not null"`
	Text        string         `json:"text" gorm:"type:text;not null"`
	ContextRefs pq.StringArray `json:"context_refs,omitempty" gorm:"type:text[]"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Turn) TableName() string {
	return "turns"
}

// NewTurn 创建新轮次
func NewTurn(threadID string, role Role, text string, contextRefs []string) *Turn {
	return &Turn{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		Role:        role,
		Text:        text,
		ContextRefs: contextRefs,
		CreatedAt:   time.Now(),
	}
}
