package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	rollingRecentKeep      = 6
	rollingTriggerTurns    = 12
	rollingSummaryMaxRunes = 2000
	rollingTurnMaxRunes    = 400

	// DefaultRollingContextTTL 滚动上下文的缓存存活期
	DefaultRollingContextTTL = 30 * 24 * time.Hour
)

// KVCache 滚动上下文所需的最小缓存接口
type KVCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RollingContext 线程级滚动摘要的缓存结构：
// - Summary：较早提问的压缩摘要（滚动追加，长度受限）
// - RecentPrompts：最近若干条用户提问（维持短期连续性，也供分类器参考）
// - PromptCount：累计提问数，超过阈值触发滚动压缩
type RollingContext struct {
	Summary       string   `json:"summary"`
	RecentPrompts []string `json:"recent_prompts"`
	PromptCount   int      `json:"prompt_count"`
}

// Snapshot 取出当前摘要与最近提问，供分类与装配使用
func (c *RollingContext) Snapshot() (summary string, recentPrompts []string) {
	if c == nil {
		return "", nil
	}
	return strings.TrimSpace(c.Summary), c.RecentPrompts
}

// AppendPrompt 记录一条新的用户提问并按需压缩
func (c *RollingContext) AppendPrompt(prompt string) {
	if c == nil {
		return
	}
	p := strings.TrimSpace(prompt)
	if p == "" {
		return
	}
	p = truncateRunes(p, rollingTurnMaxRunes)

	c.PromptCount++
	c.RecentPrompts = append(c.RecentPrompts, p)
	c.compact()
}

func (c *RollingContext) compact() {
	// 未超过阈值：保留更多最近提问，但限制上界避免无限增长
	if c.PromptCount <= rollingTriggerTurns {
		if len(c.RecentPrompts) > rollingTriggerTurns {
			c.RecentPrompts = c.RecentPrompts[len(c.RecentPrompts)-rollingTriggerTurns:]
		}
		return
	}

	// 超过阈值：较早提问合并进 summary，只保留最后 N 条
	if len(c.RecentPrompts) <= rollingRecentKeep {
		return
	}

	older := c.RecentPrompts[:len(c.RecentPrompts)-rollingRecentKeep]
	c.RecentPrompts = c.RecentPrompts[len(c.RecentPrompts)-rollingRecentKeep:]

	var b strings.Builder
	if s := strings.TrimSpace(c.Summary); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	for _, t := range older {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	c.Summary = truncateRunes(strings.TrimSpace(b.String()), rollingSummaryMaxRunes)
}

// RollingContextManager 读改写线程级滚动上下文
// 缓存不可用时静默降级，问答主链路不依赖它
type RollingContextManager struct {
	cache KVCache
	ttl   time.Duration
}

// NewRollingContextManager 创建滚动上下文管理器
func NewRollingContextManager(cache KVCache) *RollingContextManager {
	return &RollingContextManager{
		cache: cache,
		ttl:   DefaultRollingContextTTL,
	}
}

// SnapshotAndAppend 取出当前快照并追加这次提问
// 返回追加前的摘要与最近提问，写回失败只作为 updateErr 汇报
func (m *RollingContextManager) SnapshotAndAppend(ctx context.Context, projectID, threadID, prompt string) (summary string, recentPrompts []string, updateErr error) {
	if m == nil || m.cache == nil {
		return "", nil, nil
	}

	key := rollingContextKey(projectID, threadID)

	var rolling RollingContext
	if b, err := m.cache.Get(ctx, key); err == nil && len(b) > 0 {
		_ = json.Unmarshal(b, &rolling)
	}

	summary, recentPrompts = rolling.Snapshot()
	rolling.AppendPrompt(prompt)
	updateErr = m.cache.Set(ctx, key, &rolling, m.ttl)
	return summary, recentPrompts, updateErr
}

func rollingContextKey(projectID, threadID string) string {
	return fmt.Sprintf("ctx:%s:%s:rolling", projectID, threadID)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
