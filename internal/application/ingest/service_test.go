package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	"project-context-api/internal/infrastructure/messaging"
	errs "project-context-api/pkg/errors"
)

type memEvents struct {
	events []*entity.Event
	seen   map[string]int64
}

func newMemEvents() *memEvents {
	return &memEvents{seen: make(map[string]int64)}
}

func (m *memEvents) Append(_ context.Context, event *entity.Event) (*repository.AppendResult, error) {
	key := event.ProjectID + "/" + event.ID
	if seq, ok := m.seen[key]; ok {
		return &repository.AppendResult{Sequence: seq, Duplicate: true}, nil
	}
	seq := int64(len(m.events) + 1)
	copied := *event
	copied.Sequence = seq
	m.events = append(m.events, &copied)
	m.seen[key] = seq
	return &repository.AppendResult{Sequence: seq}, nil
}

func (m *memEvents) ReadSince(_ context.Context, projectID string, cursor int64, limit int) ([]*entity.Event, error) {
	out := make([]*entity.Event, 0)
	for _, e := range m.events {
		if e.ProjectID == projectID && e.Sequence > cursor {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memEvents) LatestCursor(_ context.Context, projectID string) (int64, error) {
	var max int64
	for _, e := range m.events {
		if e.ProjectID == projectID && e.Sequence > max {
			max = e.Sequence
		}
	}
	return max, nil
}

func (m *memEvents) CountByProject(_ context.Context, projectID string) (int64, error) {
	var n int64
	for _, e := range m.events {
		if e.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

type noopThreads struct{}

func (noopThreads) CreateIfAbsent(_ context.Context, t *entity.Thread) (*entity.Thread, error) {
	return t, nil
}
func (noopThreads) GetByID(_ context.Context, _ string) (*entity.Thread, error) { return nil, nil }
func (noopThreads) GetActiveByProject(_ context.Context, _ string) (*entity.Thread, error) {
	return nil, nil
}
func (noopThreads) GetLatestByProject(_ context.Context, _ string) (*entity.Thread, error) {
	return nil, nil
}
func (noopThreads) Close(_ context.Context, _ string) error                { return nil }
func (noopThreads) UpdateGoalSummary(_ context.Context, _, _ string) error { return nil }
func (noopThreads) Restore(_ context.Context, _ *entity.Thread) error      { return nil }
func (noopThreads) DeleteByProject(_ context.Context, _ string) error      { return nil }

type noopTurns struct{}

func (noopTurns) Create(_ context.Context, _ *entity.Turn) error { return nil }
func (noopTurns) RecentByThread(_ context.Context, _ string, _ int) ([]*entity.Turn, error) {
	return nil, nil
}
func (noopTurns) ListByThread(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	return &repository.PagedResult[*entity.Turn]{}, nil
}
func (noopTurns) DeleteByThread(_ context.Context, _ string) error  { return nil }
func (noopTurns) DeleteByProject(_ context.Context, _ string) error { return nil }

type noopTx struct{}

func (noopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *memEvents) {
	events := newMemEvents()
	log := eventlog.NewService(events, noopThreads{}, noopTurns{}, noopTx{}, nil)
	indexer := retrieval.NewIndexer(nil, nil, nil, nil, 0)
	return NewService(indexer, log, nil), events
}

func TestIngestSyncRecordsChunkIngestedEvent(t *testing.T) {
	svc, events := newTestService()

	res, err := svc.Ingest(context.Background(), &Input{
		ProjectID:  "p1",
		SourceType: entity.SourceTypeDocument,
		Title:      "规格书",
		Text:       "转子额定功率 3.2kW",
		Producer:   "tester",
	})
	require.NoError(t, err)
	require.Len(t, res.ChunkIDs, 1)
	assert.False(t, res.Queued)

	require.Len(t, events.events, 1)
	evt := events.events[0]
	assert.Equal(t, entity.EventTypeChunkIngested, evt.Type)
	assert.Equal(t, "p1", evt.ProjectID)

	var payload entity.ChunkIngestedPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, res.ChunkIDs[0], payload.ChunkID)
	assert.Equal(t, "document", payload.SourceType)
}

func TestIngestReplaySameDocumentLeavesSingleEvent(t *testing.T) {
	svc, events := newTestService()

	in := &Input{
		ProjectID:  "p1",
		SourceType: entity.SourceTypeDocument,
		Title:      "手册",
		Text:       "同一份正文",
	}
	first, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)

	// chunk_id 按内容寻址，重放产生同一事件键，日志不重复留痕
	assert.Equal(t, first.ChunkIDs, second.ChunkIDs)
	assert.Len(t, events.events, 1)
}

func TestIngestValidatesInput(t *testing.T) {
	svc, _ := newTestService()

	cases := []struct {
		name string
		in   *Input
	}{
		{"missing project", &Input{SourceType: entity.SourceTypeDocument, Text: "body"}},
		{"blank text", &Input{ProjectID: "p1", SourceType: entity.SourceTypeDocument, Text: "  "}},
		{"unknown source type", &Input{ProjectID: "p1", SourceType: "webhook", Text: "body"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, errs.CodeInvalidParam, errs.AsAppError(err).Code)
		})
	}
}

func TestIngestAsyncRequiresProducer(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Ingest(context.Background(), &Input{
		ProjectID:  "p1",
		SourceType: entity.SourceTypeDocument,
		Text:       "body",
		Async:      true,
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeServiceUnavailable, errs.AsAppError(err).Code)
}

func TestHandleChunkIngestIndexesDocument(t *testing.T) {
	svc, events := newTestService()

	payload, err := json.Marshal(&messaging.ChunkIngestMessage{
		ProjectID:  "p1",
		SourceType: "document",
		Title:      "t",
		Text:       "正文内容",
	})
	require.NoError(t, err)

	err = svc.HandleChunkIngest(context.Background(), &messaging.Message{
		ID:      "m1",
		Type:    "chunk_ingest",
		Payload: payload,
	})
	require.NoError(t, err)
	assert.Len(t, events.events, 1)
}

func TestHandleChunkIngestSwallowsMalformedPayload(t *testing.T) {
	svc, events := newTestService()

	err := svc.HandleChunkIngest(context.Background(), &messaging.Message{
		ID:      "m1",
		Type:    "chunk_ingest",
		Payload: json.RawMessage(`{not json`),
	})
	require.NoError(t, err)
	assert.Empty(t, events.events)
}
