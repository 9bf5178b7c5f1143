package handler

import (
	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/eventlog"
	"project-context-api/internal/interfaces/http/dto"
	"project-context-api/pkg/logger"
)

// ProjectionHandler 投影运维处理器
type ProjectionHandler struct {
	projector *eventlog.Projector
}

// NewProjectionHandler 创建投影运维处理器
func NewProjectionHandler(projector *eventlog.Projector) *ProjectionHandler {
	return &ProjectionHandler{projector: projector}
}

// RebuildResponse 重建响应
type RebuildResponse struct {
	Cursor  int64 `json:"cursor"`
	Threads int   `json:"threads"`
	Turns   int   `json:"turns"`
}

// Rebuild 从事件日志重建线程与轮次投影
// @Summary 重建投影
// @Description 从头重放项目事件日志并覆盖线程与轮次的读模型
// @Tags Projection
// @Produce json
// @Param project_id path string true "项目 ID"
// @Success 200 {object} dto.Response[RebuildResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/projection/rebuild [post]
func (h *ProjectionHandler) Rebuild(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	state, err := h.projector.Rebuild(ctx, projectID)
	if err != nil {
		logger.Error(ctx, "projection rebuild failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	turns := 0
	for _, ts := range state.Turns {
		turns += len(ts)
	}
	dto.Success(c, RebuildResponse{
		Cursor:  state.Cursor,
		Threads: len(state.Threads),
		Turns:   turns,
	})
}

// VerifyResponse 校验响应
type VerifyResponse struct {
	Consistent bool `json:"consistent"`
}

// Verify 校验投影与事件日志的一致性
// @Summary 校验投影
// @Description 重放事件日志并与当前读模型比对，返回是否一致
// @Tags Projection
// @Produce json
// @Param project_id path string true "项目 ID"
// @Success 200 {object} dto.Response[VerifyResponse]
// @Router /v1/projects/{project_id}/projection/verify [get]
func (h *ProjectionHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	consistent, err := h.projector.Verify(ctx, projectID)
	if err != nil {
		logger.Error(ctx, "projection verify failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.Success(c, VerifyResponse{Consistent: consistent})
}
