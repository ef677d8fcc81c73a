package handler

import (
	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/interfaces/http/dto"
	"fixit-rag-api/internal/interfaces/http/middleware"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
)

// requireOwner 读取 owner 中间件写入的 owner，缺失时写 400 并返回 false
func requireOwner(c *gin.Context) (string, bool) {
	ownerID := middleware.GetOwnerID(c)
	if ownerID == "" {
		dto.BadRequest(c, "owner is required")
		return "", false
	}
	return ownerID, true
}

// bindError 请求体 / 路径参数校验失败
func bindError(c *gin.Context, err error) {
	dto.AppError(c, apperrors.InvalidArgument("%s", err.Error()))
}

// respondIngest 写入库结果：全部成功 201，部分失败 207，写入失败按错误码返回
func respondIngest(c *gin.Context, res *retrieval.IngestResult, err error) {
	if err != nil {
		if res != nil && res.ChunkCount > 0 {
			logger.Warn(c.Request.Context(), "ingest failed after chunking",
				"chunks", res.ChunkCount, "failed", len(res.Failed))
		}
		dto.AppError(c, err)
		return
	}

	body := dto.NewIngestResponse(res)
	if len(res.Failed) > 0 {
		dto.MultiStatus(c, body)
		return
	}
	dto.Created(c, body)
}
