package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	return rec
}

func TestStartPhaseSpanRecordsAndTagsContext(t *testing.T) {
	rec := installRecorder(t)

	ctx, span := StartPhaseSpan(context.Background(), "analyze", "run-1")
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "phase.analyze", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("research.run_id", "run-1"))
}

func TestStartToolSpanRecords(t *testing.T) {
	rec := installRecorder(t)

	_, span := StartToolSpan(context.Background(), "web_search", "run-2")
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.web_search", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("research.tool", "web_search"))
}

func TestRunIDFromContextDefaultsEmpty(t *testing.T) {
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}
