package handler

import (
	"github.com/gin-gonic/gin"

	"project-context-api/internal/application/ingest"
	"project-context-api/internal/domain/entity"
	"project-context-api/internal/interfaces/http/dto"
	"project-context-api/pkg/logger"
)

// IngestHandler 文档摄取处理器
type IngestHandler struct {
	svc *ingest.Service
}

// NewIngestHandler 创建文档摄取处理器
func NewIngestHandler(svc *ingest.Service) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest 摄取文档
// @Summary 摄取文档
// @Description 切分文本并写入词法与向量索引，每个 chunk 留痕 chunk_ingested 事件；async 为真时排队异步处理
// @Tags Ingest
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.IngestRequest true "文档"
// @Success 200 {object} dto.Response[dto.IngestResponse]
// @Success 202 {object} dto.Response[dto.IngestResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/projects/{project_id}/documents [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.Ingest(ctx, &ingest.Input{
		ProjectID:  projectID,
		SourceType: entity.SourceType(req.SourceType),
		Title:      req.Title,
		Text:       req.Text,
		Entities:   req.Entities,
		Producer:   req.Producer,
		Async:      req.Async,
	})
	if err != nil {
		logger.Error(ctx, "ingest failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	resp := dto.IngestResponse{ChunkIDs: result.ChunkIDs, Queued: result.Queued}
	if result.Queued {
		dto.Accepted(c, resp)
		return
	}
	dto.Success(c, resp)
}

// Remove 删除 chunk
// @Summary 删除 chunk
// @Description 从行存、词法与向量索引中删除指定 chunk
// @Tags Ingest
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.RemoveChunksRequest true "chunk 标识"
// @Success 204 "no content"
// @Router /v1/projects/{project_id}/chunks/remove [post]
func (h *IngestHandler) Remove(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	var req dto.RemoveChunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Remove(ctx, projectID, req.ChunkIDs); err != nil {
		logger.Error(ctx, "remove chunks failed", err, "project_id", projectID)
		dto.FromError(c, err)
		return
	}

	dto.NoContent(c)
}
