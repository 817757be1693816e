package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jobsift/jobsift/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// GinMiddleware attaches a correlation id to every request and emits one
// structured log line per request. The id is taken from X-Request-Id when the
// caller supplies one, so scraper-side logs can be joined with ours.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		cid := strings.TrimSpace(c.GetHeader("X-Request-Id"))
		ctx := correlation.ContextWithCorrelationID(c.Request.Context(), cid)
		ctx, cid = correlation.EnsureCorrelationID(ctx)
		ctx = WithContext(ctx, zap.L())
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-Id", cid)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.Error(lastErr.Err))
		}

		log := FromContext(ctx)
		switch {
		case c.Writer.Status() >= 500:
			log.Error("http.request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("http.request", fields...)
		default:
			log.Info("http.request", fields...)
		}
	}
}
