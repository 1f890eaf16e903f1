package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const serviceName = "deepresearch-orchestrator"

// The default tracer is a no-op until Initialize installs a provider, so
// span helpers are safe before and without initialization.
var tracer = otel.Tracer(serviceName)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
}

// Initialize sets up OTLP tracing. The tracer handle is always assigned so
// span helpers are safe to call when tracing is disabled.
func Initialize(cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(serviceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}

type runIDKey struct{}

// WithRunID tags a context so descendant spans can carry the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// StartPhaseSpan opens a span for one research phase of a run and tags the
// returned context with the run id for nested tool spans.
func StartPhaseSpan(ctx context.Context, phase, runID string) (context.Context, oteltrace.Span) {
	ctx = WithRunID(ctx, runID)
	return tracer.Start(ctx, "phase."+phase,
		oteltrace.WithAttributes(
			attribute.String("research.run_id", runID),
			attribute.String("research.phase", phase),
		),
	)
}

// StartToolSpan opens a span for one tool invocation.
func StartToolSpan(ctx context.Context, tool, runID string) (context.Context, oteltrace.Span) {
	return tracer.Start(ctx, "tool."+tool,
		oteltrace.WithAttributes(
			attribute.String("research.run_id", runID),
			attribute.String("research.tool", tool),
		),
	)
}
