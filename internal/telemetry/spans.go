package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceCascade starts the span covering one cascade run
func TraceCascade(ctx context.Context, kind, event, id string) (context.Context, trace.Span) {
	return otel.Tracer("cascade").Start(ctx, "cascade."+event,
		trace.WithAttributes(
			attribute.String("cascade.kind", kind),
			attribute.String("cascade.event", event),
			attribute.String("cascade.root_id", id),
		),
	)
}

// TraceScan starts a span for resolving one path template
func TraceScan(ctx context.Context, template string) (context.Context, trace.Span) {
	return otel.Tracer("scanner").Start(ctx, "scan",
		trace.WithAttributes(attribute.String("scan.template", template)),
	)
}

// TraceExternalCall starts a client span for a collaborator call
// (classifier, push, mail, object storage, search).
func TraceExternalCall(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("external").Start(ctx, service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", service),
			attribute.String("external.operation", operation),
		),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
