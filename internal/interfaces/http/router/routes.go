package router

import (
	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	documentHandler *handler.DocumentHandler,
	retrievalHandler *handler.RetrievalHandler,
	chatHandler *handler.ChatHandler,
) {
	// 文档
	documents := v1.Group("/documents")
	{
		documents.GET("", documentHandler.List)
		documents.POST("", documentHandler.IngestText)
		documents.POST("/upload", documentHandler.Upload)
		documents.GET("/:sourceName", documentHandler.Get)
		documents.DELETE("/:sourceName", documentHandler.Delete)
	}

	// 检索
	v1.POST("/search", retrievalHandler.Search)
	v1.GET("/vectors/stats", retrievalHandler.Stats)
	v1.POST("/vectors/index", retrievalHandler.EnsureIndex)

	// 聊天会话
	sessions := v1.Group("/chat/sessions")
	{
		sessions.POST("/:sessionId/messages", chatHandler.IndexMessages)
		sessions.DELETE("/:sessionId", chatHandler.DeleteSession)
	}
}
