// Package tracing wraps go.opentelemetry.io/otel spans (the pipeline opens
// one, pipeline.extract_one, per ExtractOne call; the pool opens none) and
// exposes trace/span ID extraction for log and event correlation.
//
// The Tracer/Span capability-set shape (rather than taking *otel.Tracer
// everywhere) is grounded on the teacher's internal/telemetry/tracing
// package, which wraps its own homegrown tracer behind the same
// interface; this implementation swaps the homegrown span bookkeeping
// for the real OpenTelemetry SDK, per SPEC_FULL.md's domain stack.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Span is the capability set callers need from an active span.
type Span interface {
	End()
	SetAttribute(key string, value string)
	RecordError(err error)
}

// Tracer starts spans for named pipeline phases.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

type otelTracer struct {
	tracer oteltrace.Tracer
}

// NewTracer wraps the global otel TracerProvider's tracer for
// instrumentationName (typically "riptide/engine").
func NewTracer(instrumentationName string) Tracer {
	return otelTracer{tracer: otel.Tracer(instrumentationName)}
}

func (t otelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	spanCtx, span := t.tracer.Start(ctx, name)
	return spanCtx, otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

// ExtractIDs returns the active span's trace/span IDs for correlation
// with logs and events; empty strings when no span is active.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
