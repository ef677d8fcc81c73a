package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fixit-rag-api/pkg/metrics"
)

// Metrics Prometheus 指标采集中间件，路径使用路由模板避免标签基数膨胀
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
