package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"fixit-rag-api/internal/interfaces/http/dto"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				dto.ErrorWithDetail(c, http.StatusInternalServerError, "internal server error",
					&dto.ErrorDetail{ErrorCode: string(apperrors.CodeInternalError)})
				c.Abort()
			}
		}()

		c.Next()
	}
}
