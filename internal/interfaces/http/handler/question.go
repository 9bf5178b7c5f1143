// Package handler 提供 HTTP 请求处理器
package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/question"
	"project-context-api/internal/interfaces/http/dto"
	"project-context-api/pkg/logger"
)

// QuestionHandler 问答处理器
type QuestionHandler struct {
	svc *question.Service
}

// NewQuestionHandler 创建问答处理器
func NewQuestionHandler(svc *question.Service) *QuestionHandler {
	return &QuestionHandler{svc: svc}
}

// Ask 提交问题并获取带引用的回答
// @Summary 提交问题
// @Description 分类选源、混合检索并在预算内装配上下文，回答附带引用；stream 为真时以 SSE 推送增量
// @Tags Questions
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.AskRequest true "问题"
// @Success 200 {object} dto.Response[dto.AskResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/questions [post]
func (h *QuestionHandler) Ask(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	in := &question.AskInput{
		ProjectID: projectID,
		ThreadID:  req.ThreadID,
		Question:  req.Question,
		Provider:  req.Provider,
		Producer:  req.Producer,
	}

	if !req.Stream {
		result, err := h.svc.Ask(ctx, in, nil)
		if err != nil {
			logger.Error(ctx, "ask failed", err, "project_id", projectID)
			dto.FromError(c, err)
			return
		}
		dto.Success(c, dto.ToAskResponse(result))
		return
	}

	h.askStream(c, in)
}

// askStream 以 SSE 推送增量回答，末尾跟随完整结果
func (h *QuestionHandler) askStream(c *gin.Context, in *question.AskInput) {
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	contentCh := make(chan string, 16)
	resultCh := make(chan *question.AskResult, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		result, err := h.svc.Ask(ctx, in, func(delta string) error {
			select {
			case contentCh <- delta:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	index := 0
	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-contentCh:
			if !ok {
				// 内容结束，落地最终结果或错误
				select {
				case result := <-resultCh:
					c.SSEvent("done", dto.ToAskResponse(result))
				case err := <-errCh:
					logger.Error(ctx, "ask stream failed", err, "project_id", in.ProjectID)
					c.SSEvent("error", gin.H{"message": err.Error()})
				}
				return false
			}
			c.SSEvent("content", gin.H{
				"chunk": chunk,
				"index": index,
			})
			index++
			return true

		case err := <-errCh:
			logger.Error(ctx, "ask stream failed", err, "project_id", in.ProjectID)
			c.SSEvent("error", gin.H{"message": err.Error()})
			return false

		case <-ctx.Done():
			// 客户端断开
			return false
		}
	})
}

// DebugSearch 检索链路调试
// @Summary 检索调试
// @Description 只执行分类与检索融合，不触发 LLM 也不留痕
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.DebugSearchRequest true "查询"
// @Success 200 {object} dto.Response[dto.DebugSearchResponse]
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/retrieval/search [post]
func (h *QuestionHandler) DebugSearch(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.DebugSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.DebugSearch(ctx, projectID, req.Query)
	if err != nil {
		logger.Error(ctx, "debug search failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ToDebugSearchResponse(result))
}
