package handler

import (
	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/interfaces/http/dto"
)

// ChatHandler 聊天消息向量
type ChatHandler struct {
	svc *retrieval.Service
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *retrieval.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// IndexMessages 索引会话消息
// @Summary 索引聊天消息
// @Tags Chat
// @Accept json
// @Produce json
// @Param sessionId path string true "会话 ID"
// @Param body body dto.ChatMessagesRequest true "消息列表"
// @Success 201 {object} dto.Response[dto.IngestResponse]
// @Router /v1/chat/sessions/{sessionId}/messages [post]
func (h *ChatHandler) IndexMessages(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var uri dto.SessionIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}
	var req dto.ChatMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.svc.IngestChatMessages(c.Request.Context(), ownerID, uri.SessionID, req.ToMessages())
	respondIngest(c, res, err)
}

// DeleteSession 删除会话的全部消息向量
// @Summary 删除聊天会话向量
// @Tags Chat
// @Produce json
// @Param sessionId path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.DeleteResponse]
// @Router /v1/chat/sessions/{sessionId} [delete]
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	var uri dto.SessionIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		bindError(c, err)
		return
	}

	n, err := h.svc.DeleteChatSession(c.Request.Context(), ownerID, uri.SessionID)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	dto.Success(c, dto.DeleteResponse{Deleted: n})
}
