package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UserIDHeader 前端网关注入的用户标识头
const UserIDHeader = "X-User-ID"

// RequireUserID 从请求头提取用户标识并放入上下文
// 缺失时直接拒绝，业务处理器总是能拿到 userID
func RequireUserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing user identity",
			})
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
