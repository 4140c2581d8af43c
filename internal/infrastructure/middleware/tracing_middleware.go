package middleware

import (
	"time"

	rlog "twintalk/pkg/logger"
	"twintalk/pkg/tracing"
	"twintalk/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const RequestIDHeader = "X-Request-ID"

// TracingMiddleware wraps each request in a span and logs it with the request
// and trace ids carried on the context.
func TracingMiddleware(logs *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Header(RequestIDHeader, requestID)

		ctx = rlog.WithValue(ctx, rlog.RequestIDKey, requestID)
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = rlog.WithValue(ctx, rlog.TraceIDKey, sc.TraceID().String())
		}

		span.SetAttributes(
			attribute.String("http.request_id", requestID),
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("http.remote_addr", c.ClientIP()),
		)

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.response_size", int64(c.Writer.Size())),
			attribute.Int64("http.duration_ms", duration.Milliseconds()),
		)

		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if logs != nil {
			logs.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration.Milliseconds())
		}
	}
}
