package retrieval

import "context"

// FactClient 本体/图谱协作方的只读结构化事实查询接口（port）
// 与词法/向量检索同形：query in，排名结果 out
type FactClient interface {
	Search(ctx context.Context, query, projectID string, limit int) ([]Fact, error)
}

// TurnSource 会话轮次来源（port），由线程存储提供
type TurnSource interface {
	Recent(ctx context.Context, projectID, threadID string, n int) ([]Turn, error)
}
