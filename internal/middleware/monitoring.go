package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealradar/backend/internal/monitoring"
)

// HTTPMetrics 记录每个请求的计数与耗时指标
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		monitoring.RecordHTTPRequest(c.Request.Method, c.FullPath(), statusCode, time.Since(start))

		if c.Writer.Status() >= 400 {
			monitoring.RecordError("http_error", "http")
		}
	}
}

// PanicRecovery 捕获处理器 panic，记录指标后返回 500
func PanicRecovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				monitoring.RecordPanic()

				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("ip", c.ClientIP()),
				)

				c.JSON(500, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
