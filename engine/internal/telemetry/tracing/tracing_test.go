package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func withSDKTracerProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
}

func TestStartSpanProducesValidTraceAndSpanIDs(t *testing.T) {
	withSDKTracerProvider(t)
	tr := NewTracer("riptide/test")

	ctx, span := tr.StartSpan(context.Background(), "unit-test-span")
	defer span.End()

	traceID, spanID := ExtractIDs(ctx)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
}

func TestExtractIDsEmptyWithoutActiveSpan(t *testing.T) {
	traceID, spanID := ExtractIDs(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestSpanRecordErrorDoesNotPanicOnNil(t *testing.T) {
	withSDKTracerProvider(t)
	tr := NewTracer("riptide/test")
	_, span := tr.StartSpan(context.Background(), "span")
	defer span.End()

	assert.NotPanics(t, func() {
		span.RecordError(nil)
		span.RecordError(errors.New("boom"))
	})
}

func TestSpanSetAttributeDoesNotPanic(t *testing.T) {
	withSDKTracerProvider(t)
	tr := NewTracer("riptide/test")
	_, span := tr.StartSpan(context.Background(), "span")
	defer span.End()

	require.NotPanics(t, func() { span.SetAttribute("url", "https://example.com") })
}
