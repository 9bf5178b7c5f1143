package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKVCache struct {
	data   map[string][]byte
	setErr error
}

func newMemKVCache() *memKVCache {
	return &memKVCache{data: map[string][]byte{}}
}

func (m *memKVCache) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return b, nil
}

func (m *memKVCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func TestRollingContextAppendBelowTrigger(t *testing.T) {
	var c RollingContext
	for i := 0; i < 5; i++ {
		c.AppendPrompt(fmt.Sprintf("question %d", i))
	}

	assert.Empty(t, c.Summary)
	assert.Len(t, c.RecentPrompts, 5)
	assert.Equal(t, 5, c.PromptCount)
}

func TestRollingContextCompactsAfterTrigger(t *testing.T) {
	var c RollingContext
	for i := 0; i < rollingTriggerTurns+4; i++ {
		c.AppendPrompt(fmt.Sprintf("question %d", i))
	}

	// 触发后只保留最后 N 条，较早提问进入摘要
	assert.Len(t, c.RecentPrompts, rollingRecentKeep)
	assert.NotEmpty(t, c.Summary)
	assert.Contains(t, c.Summary, "question 0")
	assert.NotContains(t, c.RecentPrompts, "question 0")
	assert.Contains(t, c.RecentPrompts, fmt.Sprintf("question %d", rollingTriggerTurns+3))
}

func TestRollingContextIgnoresEmptyPrompt(t *testing.T) {
	var c RollingContext
	c.AppendPrompt("   ")
	assert.Zero(t, c.PromptCount)
	assert.Empty(t, c.RecentPrompts)
}

func TestRollingContextTruncatesLongPrompt(t *testing.T) {
	var c RollingContext
	c.AppendPrompt(strings.Repeat("长", rollingTurnMaxRunes+100))
	require.Len(t, c.RecentPrompts, 1)
	assert.Len(t, []rune(c.RecentPrompts[0]), rollingTurnMaxRunes)
}

func TestRollingContextSummaryBounded(t *testing.T) {
	var c RollingContext
	for i := 0; i < 60; i++ {
		c.AppendPrompt(strings.Repeat("a", rollingTurnMaxRunes))
	}
	assert.LessOrEqual(t, len([]rune(c.Summary)), rollingSummaryMaxRunes)
}

func TestSnapshotAndAppendReturnsPreAppendState(t *testing.T) {
	cache := newMemKVCache()
	m := NewRollingContextManager(cache)
	ctx := context.Background()

	summary, prompts, err := m.SnapshotAndAppend(ctx, "p1", "t1", "first question")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Empty(t, prompts)

	// 第二次取到的是追加前的状态
	_, prompts, err = m.SnapshotAndAppend(ctx, "p1", "t1", "second question")
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "first question", prompts[0])
}

func TestSnapshotAndAppendIsolatedPerThread(t *testing.T) {
	cache := newMemKVCache()
	m := NewRollingContextManager(cache)
	ctx := context.Background()

	_, _, err := m.SnapshotAndAppend(ctx, "p1", "t1", "thread one question")
	require.NoError(t, err)

	_, prompts, err := m.SnapshotAndAppend(ctx, "p1", "t2", "thread two question")
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestSnapshotAndAppendReportsWriteFailure(t *testing.T) {
	cache := newMemKVCache()
	cache.setErr = errors.New("redis down")
	m := NewRollingContextManager(cache)

	_, _, err := m.SnapshotAndAppend(context.Background(), "p1", "t1", "q")
	require.Error(t, err)
}

func TestSnapshotAndAppendNilCacheDegrades(t *testing.T) {
	m := NewRollingContextManager(nil)

	summary, prompts, err := m.SnapshotAndAppend(context.Background(), "p1", "t1", "q")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Nil(t, prompts)
}
