package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/config"
)

// CORS 跨域中间件，ownerHeader 总是被允许
func CORS(cfg config.CORSConfig, ownerHeader string) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	headers := slices.Clone(cfg.AllowedHeaders)
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", RequestIDHeader}
	}
	if ownerHeader == "" {
		ownerHeader = DefaultOwnerHeader
	}
	if !slices.Contains(headers, ownerHeader) {
		headers = append(headers, ownerHeader)
	}

	// 通配 origin 时浏览器不接受携带凭证
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    []string{RequestIDHeader, TraceIDHeader},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	})
}
