package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	errs "project-context-api/pkg/errors"
)

// ---- 内存仓储，行为与 postgres 实现对齐 ----

type memEventLog struct {
	mu     sync.Mutex
	events map[string][]*entity.Event // project_id -> 按 sequence 升序
	seen   map[string]int64           // project_id+event_id -> sequence
}

func newMemEventLog() *memEventLog {
	return &memEventLog{
		events: map[string][]*entity.Event{},
		seen:   map[string]int64{},
	}
}

func (m *memEventLog) Append(_ context.Context, event *entity.Event) (*repository.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := event.ProjectID + "/" + event.ID
	if seq, ok := m.seen[key]; ok {
		return &repository.AppendResult{Sequence: seq, Duplicate: true}, nil
	}

	seq := int64(len(m.events[event.ProjectID])) + 1
	stored := *event
	stored.Sequence = seq
	m.events[event.ProjectID] = append(m.events[event.ProjectID], &stored)
	m.seen[key] = seq
	return &repository.AppendResult{Sequence: seq}, nil
}

func (m *memEventLog) ReadSince(_ context.Context, projectID string, cursor int64, limit int) ([]*entity.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.Event
	for _, e := range m.events[projectID] {
		if e.Sequence > cursor {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memEventLog) LatestCursor(_ context.Context, projectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events[projectID])), nil
}

func (m *memEventLog) CountByProject(_ context.Context, projectID string) (int64, error) {
	return m.LatestCursor(context.Background(), projectID)
}

type memThreads struct {
	mu      sync.Mutex
	threads map[string]*entity.Thread
}

func newMemThreads() *memThreads {
	return &memThreads{threads: map[string]*entity.Thread{}}
}

func (m *memThreads) CreateIfAbsent(_ context.Context, thread *entity.Thread) (*entity.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		if t.ProjectID == thread.ProjectID && t.IsActive() {
			return t, nil
		}
	}
	cp := *thread
	m.threads[cp.ID] = &cp
	return &cp, nil
}

func (m *memThreads) GetByID(_ context.Context, id string) (*entity.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads[id], nil
}

func (m *memThreads) GetActiveByProject(_ context.Context, projectID string) (*entity.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.threads {
		if t.ProjectID == projectID && t.IsActive() {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memThreads) GetLatestByProject(_ context.Context, projectID string) (*entity.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *entity.Thread
	for _, t := range m.threads {
		if t.ProjectID != projectID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	return latest, nil
}

func (m *memThreads) Close(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return errors.New("thread not found")
	}
	t.Status = entity.ThreadStatusClosed
	return nil
}

func (m *memThreads) UpdateGoalSummary(_ context.Context, id, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.threads[id]; ok {
		t.GoalSummary = summary
	}
	return nil
}

func (m *memThreads) Restore(_ context.Context, thread *entity.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *thread
	m.threads[cp.ID] = &cp
	return nil
}

func (m *memThreads) DeleteByProject(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.threads {
		if t.ProjectID == projectID {
			delete(m.threads, id)
		}
	}
	return nil
}

type memTurns struct {
	mu    sync.Mutex
	turns []*entity.Turn
}

func (m *memTurns) Create(_ context.Context, turn *entity.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *turn
	m.turns = append(m.turns, &cp)
	return nil
}

func (m *memTurns) RecentByThread(_ context.Context, threadID string, n int) ([]*entity.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*entity.Turn
	for _, t := range m.turns {
		if t.ThreadID == threadID {
			all = append(all, t)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (m *memTurns) ListByThread(_ context.Context, threadID string, p repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	all, _ := m.RecentByThread(context.Background(), threadID, 0)
	return repository.NewPagedResult(all, int64(len(all)), p), nil
}

func (m *memTurns) DeleteByThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*entity.Turn
	for _, t := range m.turns {
		if t.ThreadID != threadID {
			kept = append(kept, t)
		}
	}
	m.turns = kept
	return nil
}

func (m *memTurns) DeleteByProject(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

type noopTx struct{}

func (noopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *memEventLog, *memThreads, *memTurns) {
	events := newMemEventLog()
	threads := newMemThreads()
	turns := &memTurns{}
	return NewService(events, threads, turns, noopTx{}, nil), events, threads, turns
}

// ---- Append ----

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		out, err := svc.Append(ctx, &AppendInput{
			ProjectID: "p1",
			Type:      entity.EventTypeOntologyChanged,
			Payload:   json.RawMessage(`{"change":"upsert"}`),
			Producer:  "test",
		})
		require.NoError(t, err)
		assert.Equal(t, i, out.Sequence)
		assert.False(t, out.Duplicate)
	}
}

func TestAppendSequencesAreIndependentPerProject(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for _, project := range []string{"p1", "p2"} {
		out, err := svc.Append(ctx, &AppendInput{
			ProjectID: project,
			Type:      entity.EventTypeOntologyChanged,
			Payload:   json.RawMessage(`{"change":"upsert"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), out.Sequence)
	}
}

func TestAppendDeduplicatesByEventID(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	in := &AppendInput{
		ProjectID: "p1",
		EventID:   "11111111-1111-1111-1111-111111111111",
		Type:      entity.EventTypeOntologyChanged,
		Payload:   json.RawMessage(`{"change":"upsert"}`),
	}
	first, err := svc.Append(ctx, in)
	require.NoError(t, err)

	second, err := svc.Append(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Sequence, second.Sequence)

	cursor, err := svc.LatestCursor(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
}

func TestAppendRejectsUnknownEventType(t *testing.T) {
	svc, events, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Append(ctx, &AppendInput{
		ProjectID: "p1",
		Type:      entity.EventType("made_up_type"),
		Payload:   json.RawMessage(`{}`),
	})
	require.Error(t, err)
	appErr := errs.AsAppError(err)
	assert.Equal(t, errs.CodeUnknownEventType, appErr.Code)

	// 拒绝后日志无残留
	cursor, _ := events.LatestCursor(ctx, "p1")
	assert.Zero(t, cursor)
}

func TestAppendRejectsUnknownPayloadField(t *testing.T) {
	svc, events, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Append(ctx, &AppendInput{
		ProjectID: "p1",
		Type:      entity.EventTypeThreadOpened,
		Payload:   json.RawMessage(`{"thread_id":"t1","surprise":"field"}`),
	})
	require.Error(t, err)
	appErr := errs.AsAppError(err)
	assert.Equal(t, errs.CodeInvalidParam, appErr.Code)

	cursor, _ := events.LatestCursor(ctx, "p1")
	assert.Zero(t, cursor)
}

func TestAppendRequiresProjectID(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Append(context.Background(), &AppendInput{
		Type:    entity.EventTypeOntologyChanged,
		Payload: json.RawMessage(`{"change":"upsert"}`),
	})
	require.Error(t, err)
}

// ---- 线程生命周期 ----

func TestOpenThreadIdempotent(t *testing.T) {
	svc, events, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.OpenThread(ctx, "p1", "build the drone", "test")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.IsActive())

	second, err := svc.OpenThread(ctx, "p1", "different goal", "test")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// 幂等打开只记一条 thread_opened
	cursor, _ := events.LatestCursor(ctx, "p1")
	assert.Equal(t, int64(1), cursor)
}

func TestCloseThreadIsTerminal(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)

	require.NoError(t, svc.CloseThread(ctx, "p1", thread.ID, "done", "test"))

	err = svc.CloseThread(ctx, "p1", thread.ID, "again", "test")
	require.Error(t, err)
	assert.Equal(t, errs.CodeThreadClosed, errs.AsAppError(err).Code)

	// 关闭后可开新线程
	next, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)
	assert.NotEqual(t, thread.ID, next.ID)
}

func TestCloseThreadWrongProject(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)

	err = svc.CloseThread(ctx, "p2", thread.ID, "", "test")
	require.Error(t, err)
	assert.Equal(t, errs.CodeThreadNotFound, errs.AsAppError(err).Code)
}

// ---- 轮次 ----

func TestRecordTurnAppendsTurnAndEvent(t *testing.T) {
	svc, events, _, turns := newTestService()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)

	turn, err := svc.RecordTurn(ctx, "p1", thread.ID, entity.RoleUser, "hello", nil, "test")
	require.NoError(t, err)
	require.NotNil(t, turn)

	stored, err := turns.RecentByThread(ctx, thread.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, turn.ID, stored[0].ID)

	log, err := events.ReadSince(ctx, "p1", 0, 10)
	require.NoError(t, err)
	require.Len(t, log, 2) // thread_opened + turn_recorded
	assert.Equal(t, entity.EventTypeTurnRecorded, log[1].Type)
}

func TestRecordTurnRejectsClosedThread(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)
	require.NoError(t, svc.CloseThread(ctx, "p1", thread.ID, "", "test"))

	_, err = svc.RecordTurn(ctx, "p1", thread.ID, entity.RoleUser, "hello", nil, "test")
	require.Error(t, err)
	assert.Equal(t, errs.CodeThreadClosed, errs.AsAppError(err).Code)
}

func TestRecordTurnUnknownThread(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.RecordTurn(context.Background(), "p1", "missing", entity.RoleUser, "hello", nil, "test")
	require.Error(t, err)
	assert.Equal(t, errs.CodeThreadNotFound, errs.AsAppError(err).Code)
}

// ---- 读取 ----

func TestReadSinceReturnsEventsAfterCursor(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, &AppendInput{
			ProjectID: "p1",
			Type:      entity.EventTypeOntologyChanged,
			Payload:   json.RawMessage(`{"change":"upsert"}`),
		})
		require.NoError(t, err)
	}

	events, err := svc.ReadSince(ctx, "p1", 2, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].Sequence)
	assert.Equal(t, int64(5), events[2].Sequence)
}

func TestRecentTurnsChecksProjectOwnership(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	thread, err := svc.OpenThread(ctx, "p1", "", "test")
	require.NoError(t, err)

	_, err = svc.RecentTurns(ctx, "p2", thread.ID, 10)
	require.Error(t, err)
	assert.Equal(t, errs.CodeThreadNotFound, errs.AsAppError(err).Code)
}
