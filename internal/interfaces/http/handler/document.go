package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/interfaces/http/dto"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
)

// 与向量库 source_name 字段长度一致
const maxSourceNameLen = 512

// UploadConfig 上传限制
type UploadConfig struct {
	Dir     string
	MaxSize int64
	// Supports 文件名是否可解析
	Supports func(name string) bool
}

// DocumentHandler 文档入库 / 列表 / 删除
type DocumentHandler struct {
	svc    *retrieval.Service
	upload UploadConfig
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *retrieval.Service, upload UploadConfig) *DocumentHandler {
	if upload.MaxSize <= 0 {
		upload.MaxSize = 10 << 20
	}
	if upload.Dir == "" {
		upload.Dir = os.TempDir()
	}
	if upload.Supports == nil {
		upload.Supports = func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), ".pdf")
		}
	}
	return &DocumentHandler{svc: svc, upload: upload}
}

// IngestText 文本入库
// @Summary 文本入库
// @Tags Documents
// @Accept json
// @Produce json
// @Param body body dto.IngestTextRequest true "入库请求"
// @Success 201 {object} dto.Response[dto.IngestResponse]
// @Success 207 {object} dto.Response[dto.IngestResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/documents [post]
func (h *DocumentHandler) IngestText(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.IngestTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.IngestDocument(c.Request.Context(), ownerID, req.SourceName, req.Text, req.Options())
	respondIngest(c, res, err)
}

// Upload 上传文件并入库，文件在入库结束后删除
// @Summary 上传文档
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF 文件"
// @Param sourceName formData string false "文档名，默认使用文件名"
// @Success 201 {object} dto.Response[dto.IngestResponse]
// @Failure 413 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/documents/upload [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	// multipart 头部额外留 1MB
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxSize+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.RequestEntityTooLarge(c, "file too large")
			return
		}
		dto.BadRequest(c, "file is required")
		return
	}
	if file.Size > h.upload.MaxSize {
		dto.RequestEntityTooLarge(c, "file too large")
		return
	}

	name := filepath.Base(file.Filename)
	if !h.upload.Supports(name) {
		dto.AppError(c, apperrors.InvalidArgument("unsupported file type %q", filepath.Ext(name)))
		return
	}
	sourceName := strings.TrimSpace(c.PostForm("sourceName"))
	if sourceName == "" {
		sourceName = name
	}
	if len(sourceName) > maxSourceNameLen {
		dto.AppError(c, apperrors.InvalidArgument("sourceName exceeds %d bytes", maxSourceNameLen))
		return
	}

	ctx := c.Request.Context()
	if err := os.MkdirAll(h.upload.Dir, 0o755); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to prepare upload dir"))
		return
	}
	path := filepath.Join(h.upload.Dir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	if err := c.SaveUploadedFile(file, path); err != nil {
		dto.AppError(c, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to save upload"))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn(ctx, "failed to remove uploaded file", "path", path, "error", err.Error())
		}
	}()

	res, err := h.svc.IngestFile(ctx, ownerID, sourceName, path, retrieval.IngestOptions{
		Extra: map[string]any{"fileName": name, "fileSize": file.Size},
	})
	respondIngest(c, res, err)
}

// List 列出当前 owner 的文档
// @Summary 文档列表
// @Tags Documents
// @Produce json
// @Success 200 {object} dto.Response[dto.DocumentListResponse]
// @Router /v1/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	entries, err := h.svc.ListDocuments(c.Request.Context(), ownerID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewDocumentListResponse(entries))
}

// Get 查询单个文档
// @Summary 文档详情
// @Tags Documents
// @Produce json
// @Param sourceName path string true "文档名"
// @Success 200 {object} dto.Response[dto.DocumentDetailResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/documents/{sourceName} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.SourceNameRequest
	if err := c.ShouldBindUri(&req); err != nil {
		bindError(c, err)
		return
	}

	entry, err := h.svc.GetDocument(c.Request.Context(), ownerID, req.SourceName)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.NewDocumentDetailResponse(entry))
}

// Delete 删除文档的全部向量
// @Summary 删除文档
// @Tags Documents
// @Produce json
// @Param sourceName path string true "文档名"
// @Success 200 {object} dto.Response[dto.DeleteResponse]
// @Router /v1/documents/{sourceName} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var req dto.SourceNameRequest
	if err := c.ShouldBindUri(&req); err != nil {
		bindError(c, err)
		return
	}

	n, err := h.svc.DeleteDocument(c.Request.Context(), ownerID, req.SourceName)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.DeleteResponse{Deleted: n})
}
