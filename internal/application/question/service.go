package question

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/application/retrieval"
	"project-context-api/internal/config"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/domain/repository"
	"project-context-api/internal/infrastructure/llm"
	einoobs "project-context-api/internal/observability/eino"
	errs "project-context-api/pkg/errors"
	"project-context-api/pkg/logger"
	"project-context-api/pkg/metrics"
)

var tracer = otel.Tracer("question")

// Service 编排一次完整的问答：
// 留痕提问 -> 分类选源 -> 扇出检索 -> 融合装配 -> 生成回答 -> 留痕回答
type Service struct {
	log        *eventlog.Service
	engine     *retrieval.Engine
	classifier *Classifier
	selector   *Selector
	assembler  *Assembler
	llmFactory *llm.EinoFactory
	rolling    *RollingContextManager
	tx         repository.Transactor
	cfg        *config.Config
}

// NewService 创建问答编排服务
func NewService(
	log *eventlog.Service,
	engine *retrieval.Engine,
	classifier *Classifier,
	selector *Selector,
	assembler *Assembler,
	llmFactory *llm.EinoFactory,
	rolling *RollingContextManager,
	tx repository.Transactor,
	cfg *config.Config,
) *Service {
	return &Service{
		log:        log,
		engine:     engine,
		classifier: classifier,
		selector:   selector,
		assembler:  assembler,
		llmFactory: llmFactory,
		rolling:    rolling,
		tx:         tx,
		cfg:        cfg,
	}
}

// AskInput 问答入参
type AskInput struct {
	ProjectID string
	ThreadID  string // 为空时挂到项目的活跃线程（无则新开）
	Question  string
	Provider  string // 为空时使用默认 LLM 提供商
	Producer  string
}

// AskResult 问答产出
type AskResult struct {
	ThreadID       string
	UserTurnID     string
	AssistantTurn  string
	Answer         string
	Citations      []entity.Citation
	Classification Classification
	TokensUsed     int
	Reports        []retrieval.SourceReport
}

// Ask 执行一次问答
// emit 非空时回答以增量回调方式流出，整段回答仍会在结果中返回
func (s *Service) Ask(ctx context.Context, in *AskInput, emit func(delta string) error) (*AskResult, error) {
	ctx, span := tracer.Start(ctx, "question.Ask",
		trace.WithAttributes(attribute.String("project_id", in.ProjectID)))
	defer span.End()

	if strings.TrimSpace(in.Question) == "" {
		return nil, errs.ErrInvalidParam.WithDetail("question is required")
	}

	thread, err := s.resolveThread(ctx, in)
	if err != nil {
		return nil, err
	}

	// 提问留痕与用户轮次同事务落库
	var userTurn *entity.Turn
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		payload, _ := json.Marshal(entity.QuestionReceivedPayload{
			ThreadID: thread.ID,
			Question: in.Question,
		})
		if _, err := s.log.Append(txCtx, &eventlog.AppendInput{
			ProjectID: in.ProjectID,
			Type:      entity.EventTypeQuestionReceived,
			Payload:   payload,
			Producer:  in.Producer,
		}); err != nil {
			return err
		}
		userTurn, err = s.log.RecordTurn(txCtx, in.ProjectID, thread.ID, entity.RoleUser, in.Question, nil, in.Producer)
		return err
	})
	if err != nil {
		return nil, err
	}

	summary, recentPrompts, cacheErr := s.rolling.SnapshotAndAppend(ctx, in.ProjectID, thread.ID, in.Question)
	if cacheErr != nil {
		logger.Warn(ctx, "rolling context update failed", "error", cacheErr)
	}

	classification := s.classifier.Classify(in.Question, recentPrompts)
	span.SetAttributes(
		attribute.String("question.type", string(classification.Type)),
		attribute.String("question.scope", string(classification.Scope)),
		attribute.Float64("question.confidence", classification.Confidence),
	)

	plan := s.selector.BuildPlan(in.Question, classification)
	rctx, err := s.engine.Search(ctx, retrieval.SearchInput{
		ProjectID: in.ProjectID,
		Query:     in.Question,
		ThreadID:  thread.ID,
		Plan:      plan,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrAllSourcesFailed) {
			return nil, errs.ErrAllSourcesFailed
		}
		return nil, errs.Wrap(err, errs.CodeRetrievalFailed, "retrieval failed")
	}

	fused := retrieval.Fuse(rctx.Lexical, rctx.Semantic, retrieval.FuseOptions{
		K:              s.cfg.Retrieval.RRFK,
		SemanticWeight: plan.SemanticWeight,
		Limit:          s.cfg.Retrieval.FusedLimit,
	})

	turns := rctx.Turns
	if summary != "" {
		// 滚动摘要作为最旧的一条轮次参与预算取舍
		turns = append([]retrieval.Turn{{Role: "summary", Text: summary}}, turns...)
	}

	prompt, err := s.assembler.Assemble(&AssembleInput{
		Question:     in.Question,
		QuestionType: classification.Type,
		Fused:        fused,
		Turns:        turns,
		Facts:        rctx.Facts,
	})
	if err != nil {
		return nil, err
	}

	answer, err := s.generate(ctx, in.Provider, prompt.Text, emit)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(prompt.Citations))
	for _, c := range prompt.Citations {
		refs = append(refs, c.ChunkID)
	}

	// 回答留痕：助手轮次与 answer_recorded 同事务落库
	var assistantTurn *entity.Turn
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		assistantTurn, err = s.log.RecordTurn(txCtx, in.ProjectID, thread.ID, entity.RoleAssistant, answer, refs, in.Producer)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(entity.AnswerRecordedPayload{
			ThreadID:  thread.ID,
			TurnID:    assistantTurn.ID,
			Citations: prompt.Citations,
		})
		_, err = s.log.Append(txCtx, &eventlog.AppendInput{
			ProjectID: in.ProjectID,
			Type:      entity.EventTypeAnswerRecorded,
			Payload:   payload,
			Producer:  in.Producer,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &AskResult{
		ThreadID:       thread.ID,
		UserTurnID:     userTurn.ID,
		AssistantTurn:  assistantTurn.ID,
		Answer:         answer,
		Citations:      prompt.Citations,
		Classification: classification,
		TokensUsed:     prompt.TokensUsed,
		Reports:        rctx.Reports,
	}, nil
}

// SearchDebug 检索链路的调试视图，不触发 LLM 与留痕
type SearchDebug struct {
	Classification Classification
	Plan           retrieval.Plan
	Fused          []*retrieval.Fused
	Facts          []retrieval.Fact
	Reports        []retrieval.SourceReport
}

// DebugSearch 只跑分类与检索融合，供联调与排障
func (s *Service) DebugSearch(ctx context.Context, projectID, query string) (*SearchDebug, error) {
	ctx, span := tracer.Start(ctx, "question.DebugSearch")
	defer span.End()

	classification := s.classifier.Classify(query, nil)
	plan := s.selector.BuildPlan(query, classification)
	rctx, err := s.engine.Search(ctx, retrieval.SearchInput{
		ProjectID: projectID,
		Query:     query,
		Plan:      plan,
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrAllSourcesFailed) {
			return nil, errs.ErrAllSourcesFailed
		}
		return nil, errs.Wrap(err, errs.CodeRetrievalFailed, "retrieval failed")
	}

	fused := retrieval.Fuse(rctx.Lexical, rctx.Semantic, retrieval.FuseOptions{
		K:              s.cfg.Retrieval.RRFK,
		SemanticWeight: plan.SemanticWeight,
		Limit:          s.cfg.Retrieval.FusedLimit,
	})

	return &SearchDebug{
		Classification: classification,
		Plan:           plan,
		Fused:          fused,
		Facts:          rctx.Facts,
		Reports:        rctx.Reports,
	}, nil
}

func (s *Service) resolveThread(ctx context.Context, in *AskInput) (*entity.Thread, error) {
	if strings.TrimSpace(in.ThreadID) != "" {
		thread, err := s.log.GetThread(ctx, in.ProjectID, in.ThreadID)
		if err != nil {
			return nil, err
		}
		if !thread.IsActive() {
			return nil, errs.ErrThreadClosed
		}
		return thread, nil
	}
	return s.log.OpenThread(ctx, in.ProjectID, "", in.Producer)
}

func (s *Service) generate(ctx context.Context, provider, promptText string, emit func(delta string) error) (string, error) {
	providerName := provider
	if providerName == "" {
		providerName = s.cfg.LLM.DefaultProvider
	}
	modelName := s.cfg.LLM.Providers[providerName].Model
	ctx = einoobs.WithProvider(ctx, providerName)

	chat, err := s.llmFactory.Get(ctx, provider)
	if err != nil {
		return "", errs.Wrap(err, errs.CodeLLMProviderError, "llm provider unavailable")
	}

	messages := []*schema.Message{schema.UserMessage(promptText)}
	start := time.Now()

	if emit == nil {
		msg, err := chat.Generate(ctx, messages)
		if err != nil {
			metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())
			return "", errs.Wrap(err, errs.CodeLLMCallFailed, "llm generate failed")
		}
		metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())
		s.recordUsage(msg, providerName, modelName)
		return msg.Content, nil
	}

	reader, err := chat.Stream(ctx, messages)
	if err != nil {
		metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())
		return "", errs.Wrap(err, errs.CodeLLMCallFailed, "llm stream failed")
	}
	defer reader.Close()

	var answer strings.Builder
	for {
		msg, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())
			return "", errs.Wrap(recvErr, errs.CodeLLMCallFailed, "llm stream recv failed")
		}

		if msg.Content != "" {
			answer.WriteString(msg.Content)
			if err := emit(msg.Content); err != nil {
				return "", errs.Wrap(err, errs.CodeLLMCallFailed, "answer delivery aborted")
			}
		}
		s.recordUsage(msg, providerName, modelName)
	}
	metrics.LLMCallDuration.WithLabelValues(providerName, modelName).Observe(time.Since(start).Seconds())

	return answer.String(), nil
}

func (s *Service) recordUsage(msg *schema.Message, provider, model string) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	u := msg.ResponseMeta.Usage
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(u.CompletionTokens))
}
