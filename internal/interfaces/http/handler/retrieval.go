// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/interfaces/http/dto"
)

// RetrievalHandler 检索与统计
type RetrievalHandler struct {
	svc *retrieval.Service
}

// NewRetrievalHandler 创建检索处理器
func NewRetrievalHandler(svc *retrieval.Service) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

// Search 在当前 owner 范围内检索
// @Summary 相似度检索
// @Description 向量化查询并返回最相似的记录，后端不可用时可能降级为空结果
// @Tags Retrieval
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/search [post]
func (h *RetrievalHandler) Search(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	out, err := h.svc.Search(c.Request.Context(), retrieval.SearchInput{
		OwnerID:    ownerID,
		Query:      req.Query,
		TopK:       req.TopK,
		RecordType: retrieval.RecordType(req.RecordType),
		SessionID:  req.SessionID,
	})
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewSearchResponse(out))
}

// Stats 向量存储统计
// @Summary 存储统计
// @Tags Retrieval
// @Produce json
// @Success 200 {object} dto.Response[dto.StatsResponse]
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/vectors/stats [get]
func (h *RetrievalHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewStatsResponse(st))
}

// EnsureIndex 创建或确认向量索引，远端恢复后可手动调用
// @Summary 初始化向量索引
// @Tags Retrieval
// @Produce json
// @Success 200 {object} dto.Response[dto.IndexResponse]
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/vectors/index [post]
func (h *RetrievalHandler) EnsureIndex(c *gin.Context) {
	ensured, err := h.svc.EnsureIndex(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	opts := h.svc.Options()
	dto.Success(c, dto.IndexResponse{
		Ensured:   ensured,
		IndexName: opts.IndexName,
		Dimension: opts.Dimension,
		Metric:    opts.Metric,
	})
}
