package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// DetachTraceContext returns base carrying the span context of src. Background
// discussions started from a request keep the request's trace but not its deadline
// or cancellation.
func DetachTraceContext(src, base context.Context) context.Context {
	sc := trace.SpanContextFromContext(src)
	if !sc.IsValid() {
		return base
	}
	return trace.ContextWithRemoteSpanContext(base, sc)
}
