package postgres

import (
	"context"

	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/domain/repository"
)

// TurnSourceAdapter 把线程与轮次仓储适配为检索引擎的轮次来源
type TurnSourceAdapter struct {
	threads repository.ThreadRepository
	turns   repository.TurnRepository
}

var _ retrieval.TurnSource = (*TurnSourceAdapter)(nil)

// NewTurnSourceAdapter 创建轮次来源适配器
func NewTurnSourceAdapter(threads repository.ThreadRepository, turns repository.TurnRepository) *TurnSourceAdapter {
	return &TurnSourceAdapter{threads: threads, turns: turns}
}

// Recent 按时间正序返回最近 n 条轮次
// threadID 为空时取项目当前活跃线程；无活跃线程时返回空
func (a *TurnSourceAdapter) Recent(ctx context.Context, projectID, threadID string, n int) ([]retrieval.Turn, error) {
	if threadID == "" {
		thread, err := a.threads.GetActiveByProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if thread == nil {
			return nil, nil
		}
		threadID = thread.ID
	}

	turns, err := a.turns.RecentByThread(ctx, threadID, n)
	if err != nil {
		return nil, err
	}

	out := make([]retrieval.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, retrieval.Turn{
			Role:      string(t.Role),
			Text:      t.Text,
			CreatedAt: t.CreatedAt,
		})
	}
	return out, nil
}
