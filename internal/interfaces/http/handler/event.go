package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/interfaces/http/dto"
	"project-context-api/pkg/logger"
)

const maxEventPageSize = 500

// EventHandler 事件日志处理器
type EventHandler struct {
	svc *eventlog.Service
}

// NewEventHandler 创建事件日志处理器
func NewEventHandler(svc *eventlog.Service) *EventHandler {
	return &EventHandler{svc: svc}
}

// Append 追加事件
// @Summary 追加事件
// @Description 校验并追加一条事件；携带 event_id 的重复提交幂等返回首次结果
// @Tags Events
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.AppendEventRequest true "事件"
// @Success 200 {object} dto.Response[dto.AppendEventResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/events [post]
func (h *EventHandler) Append(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.AppendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Append(ctx, &eventlog.AppendInput{
		ProjectID: projectID,
		EventID:   req.EventID,
		Type:      entity.EventType(req.Type),
		Payload:   req.Payload,
		Producer:  req.Producer,
	})
	if err != nil {
		logger.Error(ctx, "append event failed", err, "project_id", projectID, "type", req.Type)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.AppendEventResponse{
		EventID:   result.Event.ID,
		Sequence:  result.Event.Sequence,
		Duplicate: result.Duplicate,
	})
}

// List 读取事件
// @Summary 读取事件
// @Description 按 sequence 升序返回 since 之后的事件
// @Tags Events
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param since query int false "游标，返回 sequence 大于该值的事件" default(0)
// @Param limit query int false "条数上限" default(100)
// @Success 200 {object} dto.Response[dto.EventListResponse]
// @Router /v1/projects/{project_id}/events [get]
func (h *EventHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		dto.BadRequest(c, "invalid since cursor")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	if limit > maxEventPageSize {
		limit = maxEventPageSize
	}

	events, err := h.svc.ReadSince(ctx, projectID, since, limit)
	if err != nil {
		logger.Error(ctx, "read events failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.ToEventListResponse(events, since))
}

// Cursor 查询项目当前游标
// @Summary 查询游标
// @Description 返回项目事件日志的最新 sequence，无事件时为 0
// @Tags Events
// @Produce json
// @Param project_id path string true "项目 ID"
// @Success 200 {object} dto.Response[dto.CursorResponse]
// @Router /v1/projects/{project_id}/events/cursor [get]
func (h *EventHandler) Cursor(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	cursor, err := h.svc.LatestCursor(ctx, projectID)
	if err != nil {
		logger.Error(ctx, "read cursor failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, dto.CursorResponse{ProjectID: projectID, Cursor: cursor})
}
