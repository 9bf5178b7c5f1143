package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"project-context-api/pkg/logger"
	"project-context-api/pkg/metrics"
)

// Engine 并发扇出检索引擎
// 词法、向量、结构化事实与会话轮次作为独立并发操作发出，
// 共用一个超时；单一来源失败降级为空贡献，全部失败才报错
type Engine struct {
	lexical  LexicalIndex
	vector   VectorRepository
	embedder embedding.Embedder
	facts    FactClient
	turns    TurnSource

	fanoutTimeout   time.Duration
	similarityFloor float32
}

// NewEngine 创建检索引擎
func NewEngine(
	lexical LexicalIndex,
	vector VectorRepository,
	embedder embedding.Embedder,
	facts FactClient,
	turns TurnSource,
	fanoutTimeout time.Duration,
	similarityFloor float64,
) *Engine {
	if fanoutTimeout <= 0 {
		fanoutTimeout = 2 * time.Second
	}
	return &Engine{
		lexical:         lexical,
		vector:          vector,
		embedder:        embedder,
		facts:           facts,
		turns:           turns,
		fanoutTimeout:   fanoutTimeout,
		similarityFloor: float32(similarityFloor),
	}
}

// Search 按计划并发扇出全部来源并汇总
// 调用方取消 ctx 会中止扇出；超时对整个扇出只计一次
func (e *Engine) Search(ctx context.Context, in SearchInput) (*Context, error) {
	in.Query = strings.TrimSpace(in.Query)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required")
	}
	if in.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	fanCtx, cancel := context.WithTimeout(ctx, e.fanoutTimeout)
	defer cancel()

	out := &Context{}
	var mu sync.Mutex
	queried := 0

	report := func(src Source, start time.Time, count int, err error) {
		r := SourceReport{
			Source:   src,
			OK:       err == nil,
			Count:    count,
			Duration: time.Since(start),
		}
		status := "ok"
		if err != nil {
			r.Err = err.Error()
			status = "error"
			if fanCtx.Err() != nil {
				status = "timeout"
			}
			logger.Warn(ctx, "retrieval source degraded",
				"source", string(src), "error", err.Error())
		}
		metrics.RetrievalSourceTotal.WithLabelValues(string(src), status).Inc()
		metrics.RetrievalSourceDuration.WithLabelValues(string(src)).Observe(r.Duration.Seconds())

		mu.Lock()
		out.Reports = append(out.Reports, r)
		mu.Unlock()
	}

	// 来源失败不向 errgroup 传播错误，降级为该来源空贡献
	g, gctx := errgroup.WithContext(fanCtx)

	if in.Plan.Lexical && e.lexical != nil {
		queried++
		g.Go(func() error {
			start := time.Now()
			results, err := e.lexical.Search(gctx, in.Query, in.ProjectID, in.Plan.LexicalLimit)
			if err != nil {
				report(SourceLexical, start, 0, err)
				return nil
			}
			list := make([]*Result, 0, len(results))
			for i, r := range results {
				list = append(list, &Result{
					ChunkID:  r.ChunkID,
					Rank:     i + 1,
					Source:   SourceLexical,
					RawScore: r.Score,
					Text:     r.Text,
				})
			}
			mu.Lock()
			out.Lexical = list
			mu.Unlock()
			metrics.FusionCandidates.WithLabelValues(string(SourceLexical)).Observe(float64(len(list)))
			report(SourceLexical, start, len(list), nil)
			return nil
		})
	}

	if in.Plan.Semantic && e.vector != nil && e.embedder != nil {
		queried++
		g.Go(func() error {
			start := time.Now()
			vec, err := e.embedQuery(gctx, in.Query)
			if err != nil {
				report(SourceSemantic, start, 0, err)
				return nil
			}
			results, err := e.vector.Search(gctx, &VectorSearchParams{
				ProjectID:       in.ProjectID,
				QueryVector:     vec,
				TopK:            in.Plan.SemanticLimit,
				SimilarityFloor: e.similarityFloor,
			})
			if err != nil {
				report(SourceSemantic, start, 0, err)
				return nil
			}
			list := make([]*Result, 0, len(results))
			for i, r := range results {
				list = append(list, &Result{
					ChunkID:  r.ID,
					Rank:     i + 1,
					Source:   SourceSemantic,
					RawScore: float64(r.Score),
					Text:     r.TextContent,
				})
			}
			mu.Lock()
			out.Semantic = list
			mu.Unlock()
			metrics.FusionCandidates.WithLabelValues(string(SourceSemantic)).Observe(float64(len(list)))
			report(SourceSemantic, start, len(list), nil)
			return nil
		})
	}

	if in.Plan.Ontology && e.facts != nil {
		queried++
		g.Go(func() error {
			start := time.Now()
			facts, err := e.facts.Search(gctx, in.Query, in.ProjectID, in.Plan.FactLimit)
			if err != nil {
				report(SourceOntology, start, 0, err)
				return nil
			}
			mu.Lock()
			out.Facts = facts
			mu.Unlock()
			report(SourceOntology, start, len(facts), nil)
			return nil
		})
	}

	if in.Plan.Turns && e.turns != nil {
		queried++
		g.Go(func() error {
			start := time.Now()
			turns, err := e.turns.Recent(gctx, in.ProjectID, in.ThreadID, in.Plan.TurnLimit)
			if err != nil {
				report(SourceTurns, start, 0, err)
				return nil
			}
			mu.Lock()
			out.Turns = turns
			mu.Unlock()
			report(SourceTurns, start, len(turns), nil)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if queried > 0 && e.allFailed(out) {
		return nil, ErrAllSourcesFailed
	}
	return out, nil
}

// allFailed 判断是否所有被查询的来源都失败
func (e *Engine) allFailed(out *Context) bool {
	for _, r := range out.Reports {
		if r.OK {
			return false
		}
	}
	return true
}

// embedQuery 计算查询向量
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, ErrVectorDisabled
	}
	v64, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	vec := v64[0]
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out, nil
}
