package request

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var requestTracer = otel.Tracer("baduk-client/internal/request")
var requestNoopSpan = trace.SpanFromContext(context.Background())

// startRequestSpan only opens a span under an existing trace so background calls stay
// untraced.
func startRequestSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	parent := trace.SpanFromContext(ctx)
	if !parent.SpanContext().IsValid() {
		return ctx, requestNoopSpan
	}
	return requestTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}
