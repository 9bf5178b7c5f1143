package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/domain/entity"
	errs "project-context-api/pkg/errors"
)

func newTestProjector() (*Service, *Projector, *memEventLog, *memThreads, *memTurns) {
	events := newMemEventLog()
	threads := newMemThreads()
	turns := &memTurns{}
	svc := NewService(events, threads, turns, noopTx{}, nil)
	proj := NewProjector(events, threads, turns, noopTx{})
	return svc, proj, events, threads, turns
}

func seedThreadWithTurns(t *testing.T, svc *Service, projectID string, turnTexts ...string) *entity.Thread {
	t.Helper()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, projectID, "goal", "test")
	require.NoError(t, err)
	for i, text := range turnTexts {
		role := entity.RoleUser
		if i%2 == 1 {
			role = entity.RoleAssistant
		}
		_, err := svc.RecordTurn(ctx, projectID, thread.ID, role, text, nil, "test")
		require.NoError(t, err)
	}
	return thread
}

func TestReplayFoldsThreadsAndTurns(t *testing.T) {
	svc, proj, _, _, _ := newTestProjector()
	ctx := context.Background()

	thread := seedThreadWithTurns(t, svc, "p1", "q1", "a1", "q2")
	require.NoError(t, svc.CloseThread(ctx, "p1", thread.ID, "done", "test"))

	state, err := proj.Replay(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, int64(5), state.Cursor) // opened + 3 turns + closed
	require.Len(t, state.Threads, 1)
	assert.Equal(t, thread.ID, state.Threads[0].ID)
	assert.Equal(t, entity.ThreadStatusClosed, state.Threads[0].Status)

	turns := state.Turns[thread.ID]
	require.Len(t, turns, 3)
	assert.Equal(t, "q1", turns[0].Text)
	assert.Equal(t, "q2", turns[2].Text)
}

func TestReplayIsDeterministic(t *testing.T) {
	svc, proj, _, _, _ := newTestProjector()
	ctx := context.Background()

	seedThreadWithTurns(t, svc, "p1", "q1", "a1")

	first, err := proj.Replay(ctx, "p1")
	require.NoError(t, err)
	second, err := proj.Replay(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, first.Cursor, second.Cursor)
	require.Len(t, second.Threads, len(first.Threads))
	assert.Equal(t, first.Threads[0].ID, second.Threads[0].ID)
	assert.Equal(t, first.Turns, second.Turns)
}

func TestReplayEmptyLog(t *testing.T) {
	_, proj, _, _, _ := newTestProjector()

	state, err := proj.Replay(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Zero(t, state.Cursor)
	assert.Empty(t, state.Threads)
}

func TestReplayDetectsSequenceGap(t *testing.T) {
	svc, proj, events, _, _ := newTestProjector()
	ctx := context.Background()

	seedThreadWithTurns(t, svc, "p1", "q1", "a1")

	// 人为制造缺口
	events.mu.Lock()
	events.events["p1"] = append(events.events["p1"][:1], events.events["p1"][2:]...)
	events.mu.Unlock()

	_, err := proj.Replay(ctx, "p1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeSequenceGap, errs.AsAppError(err).Code)
}

func TestRebuildRestoresDroppedProjection(t *testing.T) {
	svc, proj, _, threads, turns := newTestProjector()
	ctx := context.Background()

	thread := seedThreadWithTurns(t, svc, "p1", "q1", "a1", "q2", "a2")

	// 投影整体丢失
	require.NoError(t, threads.DeleteByProject(ctx, "p1"))
	require.NoError(t, turns.DeleteByProject(ctx, "p1"))

	state, err := proj.Rebuild(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), state.Cursor)

	restored, err := threads.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.True(t, restored.IsActive())

	restoredTurns, err := turns.RecentByThread(ctx, thread.ID, 10)
	require.NoError(t, err)
	assert.Len(t, restoredTurns, 4)
}

func TestVerifyConsistentProjection(t *testing.T) {
	svc, proj, _, _, _ := newTestProjector()
	ctx := context.Background()

	seedThreadWithTurns(t, svc, "p1", "q1", "a1")

	ok, err := proj.Verify(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	svc, proj, _, _, turns := newTestProjector()
	ctx := context.Background()

	thread := seedThreadWithTurns(t, svc, "p1", "q1", "a1")

	// 在线投影丢了一条轮次
	require.NoError(t, turns.DeleteByThread(ctx, thread.ID))

	ok, err := proj.Verify(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 重建后恢复一致
	_, err = proj.Rebuild(ctx, "p1")
	require.NoError(t, err)
	ok, err = proj.Verify(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}
