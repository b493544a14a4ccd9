package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"memoir-ai-api/pkg/logger"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// RequestID 透传或生成请求 ID，写入 gin 与日志上下文
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("request_id", requestID)
		ctx := logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// ConversationContext 把路由中的会话 ID 与书籍 ID 写入日志上下文
// 须挂在路由分组上，此时路径参数已解析
func ConversationContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if sid := c.Param("sid"); sid != "" {
			ctx = logger.WithContext(ctx, logger.SessionIDKey, sid)
		}
		bookID := c.Param("bid")
		if bookID == "" {
			bookID = c.Query("book_id")
		}
		if bookID != "" {
			ctx = logger.WithContext(ctx, logger.BookIDKey, bookID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
