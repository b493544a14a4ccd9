package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"memoir-ai-api/pkg/logger"
)

// Trace 返回 otelgin 链路中间件与 trace_id 注入中间件，需按顺序挂载
func Trace(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), traceContext}
}

func traceContext(c *gin.Context) {
	sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
	if !sc.IsValid() {
		c.Next()
		return
	}

	traceID := sc.TraceID().String()
	c.Set("trace_id", traceID)
	ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
	ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Trace-ID", traceID)

	c.Next()
}
