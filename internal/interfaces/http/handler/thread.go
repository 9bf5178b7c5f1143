package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/interfaces/http/dto"
	"project-context-api/pkg/logger"
)

const defaultTurnPageSize = 50

// ThreadHandler 线程处理器
type ThreadHandler struct {
	svc *eventlog.Service
}

// NewThreadHandler 创建线程处理器
func NewThreadHandler(svc *eventlog.Service) *ThreadHandler {
	return &ThreadHandler{svc: svc}
}

// Open 打开线程
// @Summary 打开线程
// @Description 幂等操作：项目已有活跃线程时返回它，不产生新事件
// @Tags Threads
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.OpenThreadRequest false "线程参数"
// @Success 200 {object} dto.Response[dto.ThreadResponse]
// @Router /v1/projects/{project_id}/threads [post]
func (h *ThreadHandler) Open(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.OpenThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	thread, err := h.svc.OpenThread(ctx, projectID, req.GoalSummary, req.Producer)
	if err != nil {
		logger.Error(ctx, "open thread failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ToThreadResponse(thread))
}

// Get 获取线程
// @Summary 获取线程
// @Tags Threads
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param thread_id path string true "线程 ID"
// @Success 200 {object} dto.Response[dto.ThreadResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/threads/{thread_id} [get]
func (h *ThreadHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	threadID := dto.BindThreadID(c)

	thread, err := h.svc.GetThread(ctx, projectID, threadID)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ToThreadResponse(thread))
}

// Close 关闭线程
// @Summary 关闭线程
// @Description 关闭为终态，之后的轮次与提问会被拒绝
// @Tags Threads
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param thread_id path string true "线程 ID"
// @Param request body dto.CloseThreadRequest false "关闭参数"
// @Success 204 "no content"
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/threads/{thread_id}/close [post]
func (h *ThreadHandler) Close(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	threadID := dto.BindThreadID(c)

	var req dto.CloseThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.CloseThread(ctx, projectID, threadID, req.Reason, req.Producer); err != nil {
		logger.Error(ctx, "close thread failed", err, "project_id", projectID, "thread_id", threadID)
		dto.FromError(c, err)
		return
	}

	dto.NoContent(c)
}

// ListTurns 获取线程最近轮次
// @Summary 获取线程轮次
// @Description 按时间正序返回最近 limit 条轮次
// @Tags Threads
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param thread_id path string true "线程 ID"
// @Param limit query int false "条数上限" default(50)
// @Success 200 {object} dto.Response[dto.TurnListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/threads/{thread_id}/turns [get]
func (h *ThreadHandler) ListTurns(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	threadID := dto.BindThreadID(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = defaultTurnPageSize
	}

	turns, err := h.svc.RecentTurns(ctx, projectID, threadID, limit)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ToTurnListResponse(turns))
}
