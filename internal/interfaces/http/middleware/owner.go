// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/interfaces/http/dto"
	"fixit-rag-api/pkg/logger"
)

const (
	// DefaultOwnerHeader 默认 owner 请求头
	DefaultOwnerHeader = "X-Owner-ID"
	// OwnerIDKey Gin Context 中的 owner Key
	OwnerIDKey = "owner_id"

	maxOwnerIDLength = 128
)

// OwnerConfig owner 中间件配置
type OwnerConfig struct {
	// HeaderName 携带 owner 的请求头
	HeaderName string
	// DefaultOwnerID 缺省 owner（仅开发环境）
	DefaultOwnerID string
}

// Owner 从请求头解析 owner 并写入上下文，缺失时返回 400。
// 鉴权不在本服务范围内，owner 由上游网关注入。
func Owner(cfg OwnerConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultOwnerHeader
	}

	return func(c *gin.Context) {
		ownerID := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if ownerID == "" {
			ownerID = cfg.DefaultOwnerID
		}
		if ownerID == "" {
			dto.BadRequest(c, "missing "+cfg.HeaderName+" header")
			c.Abort()
			return
		}
		if len(ownerID) > maxOwnerIDLength {
			dto.BadRequest(c, cfg.HeaderName+" header too long")
			c.Abort()
			return
		}

		c.Set(OwnerIDKey, ownerID)
		ctx := logger.WithContext(c.Request.Context(), logger.OwnerIDKey, ownerID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetOwnerID 从 Gin Context 中获取 owner
func GetOwnerID(c *gin.Context) string {
	return c.GetString(OwnerIDKey)
}
