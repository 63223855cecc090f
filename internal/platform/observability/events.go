package observability

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventLogger adapts zap to the func(ctx, event, fields) hook accepted by services. A logger stored on
// the context takes precedence over the fallback; entries from a recording span carry its trace ids.
func EventLogger(fallback *zap.Logger, projectID string) func(context.Context, string, map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := fallback
		if scoped, ok := contextLogger(ctx); ok {
			logger = scoped
		}

		zFields := make([]zap.Field, 0, len(fields)+3)
		zFields = append(zFields, zap.String("event", event))
		zFields = append(zFields, TraceFields(ctx, projectID)...)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zFields = append(zFields, zap.Any(k, fields[k]))
		}
		logger.Info("cart event", zFields...)
	}
}

// TraceFields returns the Cloud Logging correlation fields of the span on ctx.
func TraceFields(ctx context.Context, projectID string) []zap.Field {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return nil
	}
	fields := []zap.Field{
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	}
	if projectID != "" {
		fields = append(fields, zap.String("logging.googleapis.com/trace",
			fmt.Sprintf("projects/%s/traces/%s", projectID, spanCtx.TraceID().String())))
	}
	return fields
}
