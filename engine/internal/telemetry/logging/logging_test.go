package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestInfoCtxWithoutSpanOmitsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(newJSONLogger(&buf))

	logger.InfoCtx(context.Background(), "hello", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "v", entry["k"])
	assert.NotContains(t, entry, "trace_id")
}

func TestInfoCtxWithActiveSpanAddsCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tr := tp.Tracer("test")
	ctx, span := tr.Start(context.Background(), "span")
	defer span.End()

	var buf bytes.Buffer
	logger := New(newJSONLogger(&buf))
	logger.WarnCtx(ctx, "something happened")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "something happened", entry["msg"])
	assert.NotEmpty(t, entry["trace_id"])
	assert.NotEmpty(t, entry["span_id"])
}

func TestNewDefaultsToSlogDefaultWhenNil(t *testing.T) {
	logger := New(nil)
	assert.NotNil(t, logger)
}
