// Package lexical 提供基于 Bleve 的词法倒排索引实现
package lexical

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	"project-context-api/internal/domain/entity"
	"project-context-api/pkg/metrics"
)

var tracer = otel.Tracer("lexical")

const (
	indexName = "chunks"

	defaultCacheSize = 4096
	defaultFuzziness = 1
)

// 字段默认加权，可被配置覆盖
var defaultFieldBoost = map[string]float64{
	"title":    2.0,
	"entities": 1.5,
	"text":     1.0,
}

// chunkDocument 写入 Bleve 的文档结构
type chunkDocument struct {
	ProjectID  string `json:"project_id"`
	SourceType string `json:"source_type"`
	Title      string `json:"title"`
	Entities   string `json:"entities"`
	Text       string `json:"text"`
}

// Index Bleve 词法索引
// 以 chunk_id 为文档主键，重复写入覆盖；带 LRU 缓存避免命中后回表
type Index struct {
	mu     sync.RWMutex
	idx    bleve.Index
	closed bool

	cache *lru.Cache[string, *entity.Chunk]

	fuzziness  int
	fieldBoost map[string]float64
}

var _ retrieval.LexicalIndex = (*Index)(nil)

// NewIndex 打开或创建词法索引
func NewIndex(cfg *config.LexicalConfig) (*Index, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lexical config is required")
	}

	var (
		idx bleve.Index
		err error
	)
	if cfg.InMemory {
		idx, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		idx, err = openOrCreate(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *entity.Chunk](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}

	fuzziness := cfg.Fuzziness
	if fuzziness < 0 {
		fuzziness = defaultFuzziness
	}

	boost := make(map[string]float64, len(defaultFieldBoost))
	for k, v := range defaultFieldBoost {
		boost[k] = v
	}
	for k, v := range cfg.FieldBoost {
		if v > 0 {
			boost[k] = v
		}
	}

	return &Index{
		idx:        idx,
		cache:      cache,
		fuzziness:  fuzziness,
		fieldBoost: boost,
	}, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	return bleve.New(path, buildIndexMapping())
}

// buildIndexMapping 构建索引 schema
// project_id/source_type 用 keyword 精确匹配，其余字段标准分词
func buildIndexMapping() mapping.IndexMapping {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	keywordField.IncludeInAll = false

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("project_id", keywordField)
	doc.AddFieldMappingsAt("source_type", keywordField)
	doc.AddFieldMappingsAt("title", textField)
	doc.AddFieldMappingsAt("entities", textField)
	doc.AddFieldMappingsAt("text", textField)

	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = standard.Name
	m.DefaultMapping = doc
	return m
}

// Index 写入 chunk，按 chunk_id 幂等
func (i *Index) Index(ctx context.Context, chunk *entity.Chunk) error {
	if chunk == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if strings.TrimSpace(chunk.ID) == "" {
		return fmt.Errorf("chunk id cannot be empty")
	}
	ctx, span := tracer.Start(ctx, "lexical.Index",
		trace.WithAttributes(attribute.String("chunk_id", chunk.ID)))
	defer span.End()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.idx == nil {
		return fmt.Errorf("lexical index is closed")
	}

	doc := chunkDocument{
		ProjectID:  chunk.ProjectID,
		SourceType: string(chunk.SourceType),
		Title:      chunk.Title,
		Entities:   strings.Join(chunk.Entities, " "),
		Text:       chunk.Text,
	}
	if err := i.idx.Index(chunk.ID, doc); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
	}

	i.cache.Add(chunk.ID, chunk)

	if n, err := i.idx.DocCount(); err == nil {
		metrics.LexicalIndexedDocs.WithLabelValues(indexName).Set(float64(n))
	}
	return nil
}

// Search 按字段加权得分检索项目内 chunk
// 精确词命中与模糊命中取或，排名由 Bleve tf-idf 得分决定
func (i *Index) Search(ctx context.Context, queryStr, projectID string, limit int) ([]*retrieval.LexicalResult, error) {
	ctx, span := tracer.Start(ctx, "lexical.Search",
		trace.WithAttributes(
			attribute.String("project_id", projectID),
			attribute.Int("limit", limit),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.LexicalSearchDuration.WithLabelValues(indexName).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed || i.idx == nil {
		return nil, fmt.Errorf("lexical index is closed")
	}

	req := bleve.NewSearchRequestOptions(i.buildQuery(queryStr, projectID), limit, 0, false)
	req.Fields = []string{"text"}

	result, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	out := make([]*retrieval.LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		r := &retrieval.LexicalResult{
			ChunkID: hit.ID,
			Score:   hit.Score,
		}
		if c, ok := i.cache.Get(hit.ID); ok {
			r.Text = c.Text
		} else if text, ok := hit.Fields["text"].(string); ok {
			r.Text = text
		}
		out = append(out, r)
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// buildQuery 组合项目过滤与加权字段匹配
func (i *Index) buildQuery(queryStr, projectID string) query.Query {
	projectFilter := bleve.NewTermQuery(projectID)
	projectFilter.SetField("project_id")

	should := make([]query.Query, 0, len(i.fieldBoost)+1)
	for field, boost := range i.fieldBoost {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		mq.SetBoost(boost)
		should = append(should, mq)
	}

	// 轻度模糊捕捉拼写偏差，正文字段就足够
	if i.fuzziness > 0 {
		fq := bleve.NewMatchQuery(queryStr)
		fq.SetField("text")
		fq.SetFuzziness(i.fuzziness)
		fq.SetBoost(0.5)
		should = append(should, fq)
	}

	disjunction := bleve.NewDisjunctionQuery(should...)

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(projectFilter)
	boolQuery.AddMust(disjunction)
	return boolQuery
}

// Delete 按 chunk_id 删除
func (i *Index) Delete(ctx context.Context, chunkID string) error {
	ctx, span := tracer.Start(ctx, "lexical.Delete",
		trace.WithAttributes(attribute.String("chunk_id", chunkID)))
	defer span.End()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.idx == nil {
		return fmt.Errorf("lexical index is closed")
	}

	if err := i.idx.Delete(chunkID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunk %s: %w", chunkID, err)
	}
	i.cache.Remove(chunkID)

	if n, err := i.idx.DocCount(); err == nil {
		metrics.LexicalIndexedDocs.WithLabelValues(indexName).Set(float64(n))
	}
	return nil
}

// DocCount 返回索引文档数
func (i *Index) DocCount(ctx context.Context) (uint64, error) {
	_, span := tracer.Start(ctx, "lexical.DocCount")
	defer span.End()

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed || i.idx == nil {
		return 0, fmt.Errorf("lexical index is closed")
	}
	return i.idx.DocCount()
}

// Close 关闭索引并清空缓存
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.idx == nil {
		return nil
	}
	i.closed = true
	i.cache.Purge()
	err := i.idx.Close()
	i.idx = nil
	return err
}
