package dto

// SourceNameRequest 文档名路径参数
type SourceNameRequest struct {
	SourceName string `uri:"sourceName" binding:"required,max=512"`
}

// SessionIDRequest 会话 ID 路径参数
type SessionIDRequest struct {
	SessionID string `uri:"sessionId" binding:"required,max=128"`
}
