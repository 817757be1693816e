// Package logger carries the request-scoped zap logger through context and
// adapts zap to the interfaces the rest of the stack expects.
package logger

import (
	"context"

	"github.com/jobsift/jobsift/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerKey struct{}

// FromContext returns the request-scoped logger, falling back to the global
// logger enriched with whatever identifiers the context carries.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && log != nil {
			return log
		}
	}
	return zap.L().With(contextFields(ctx)...)
}

// WithContext binds a logger, enriched with the context's identifiers, onto
// the context for downstream handlers.
func WithContext(ctx context.Context, base *zap.Logger) context.Context {
	if base == nil {
		base = zap.L()
	}
	return context.WithValue(ctx, loggerKey{}, base.With(contextFields(ctx)...))
}

func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.TraceID().String()),
			zap.String("span_id", span.SpanID().String()),
		)
	}
	return fields
}
