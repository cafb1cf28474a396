package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// requestIDKey is the context key for the request ID (X-Request-ID).
// Middleware sets it; the TraceContextHandler adds it to log records.
type requestIDKey struct{}

// RequestIDKey is the context key for storing the request ID.
var RequestIDKey = &requestIDKey{}

// executionIDKey is the context key for the run execution ID.
// The run orchestrator sets it; the TraceContextHandler adds it to log records
// so every log line emitted during a run carries the run's identity.
type executionIDKey struct{}

// ExecutionIDKey is the context key for storing the execution ID.
var ExecutionIDKey = &executionIDKey{}

// ContextWithExecutionID returns a context carrying the run execution ID.
func ContextWithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, executionID)
}

// ExecutionIDFromContext returns the execution ID stored in ctx, or "".
func ExecutionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ExecutionIDKey).(string); ok {
		return id
	}

	return ""
}

// TraceContextHandler wraps a slog.Handler and injects trace_id, span_id, request_id,
// and execution_id from the context into each log record when present.
type TraceContextHandler struct {
	inner slog.Handler
}

// NewTraceContextHandler returns a handler that adds trace context, request_id, and execution_id to records.
func NewTraceContextHandler(inner slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{inner: inner}
}

// Enabled reports whether the inner handler is enabled for the given level.
func (h *TraceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds trace_id, span_id, request_id, and execution_id from context to the record,
// then forwards to the inner handler.
func (h *TraceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}

	if id := ExecutionIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String("execution_id", id))
	}

	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("inner handler: %w", err)
	}

	return nil
}

// WithAttrs returns a handler whose attributes are the concatenation of the inner's and attrs.
func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler for the given group.
func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{inner: h.inner.WithGroup(name)}
}
