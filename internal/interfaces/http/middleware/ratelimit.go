package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/config"
	"fixit-rag-api/internal/infrastructure/persistence/redis"
	"fixit-rag-api/pkg/logger"
	"fixit-rag-api/pkg/metrics"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 按 owner + 路由做一秒滑动窗口限流。
// 窗口内允许 RequestsPerSecond + Burst 个请求；限流器故障时放行。
func RateLimit(cfg config.RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limit := cfg.RequestsPerSecond
	if limit <= 0 {
		limit = 100
	}
	if cfg.Burst > 0 {
		limit += cfg.Burst
	}

	return func(c *gin.Context) {
		ownerID := GetOwnerID(c)
		if ownerID == "" {
			ownerID = "anonymous"
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		key := redis.BuildRateLimitKey(ownerID, c.Request.Method+" "+endpoint)
		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Second)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, request allowed", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(endpoint).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":     http.StatusTooManyRequests,
				"message":  "rate limit exceeded",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
