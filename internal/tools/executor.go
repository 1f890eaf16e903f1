package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// Call is one tool invocation request taken from a model turn.
type Call struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// Result pairs a call with its outcome. A failed call produces a Result with
// IsError set and the error text in Output, never a hard failure of the turn.
type Result struct {
	CallID   string
	Name     string
	Output   string
	IsError  bool
	Duration time.Duration
}

// Executor runs tool calls against a Registry with a per-call timeout and a
// global rate limit shared by all sessions in the process.
type Executor struct {
	registry    *Registry
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *zap.Logger
}

func NewExecutor(registry *Registry, callsPerSecond float64, burst int, callTimeout time.Duration, logger *zap.Logger) *Executor {
	if callsPerSecond <= 0 {
		callsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Executor{
		registry:    registry,
		limiter:     rate.NewLimiter(rate.Limit(callsPerSecond), burst),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ExecuteAll runs every call of one model turn concurrently and returns
// results in call order. Errors become error results so the model can see
// what went wrong and adjust.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			results[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (e *Executor) executeOne(ctx context.Context, call Call) Result {
	ctx, span := tracing.StartToolSpan(ctx, call.Name, tracing.RunIDFromContext(ctx))
	defer span.End()

	start := time.Now()
	res := Result{CallID: call.ID, Name: call.Name}

	fail := func(err error) Result {
		res.IsError = true
		res.Output = err.Error()
		res.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID),
			zap.Error(err),
		)
		metrics.RecordToolCall(call.Name, true, res.Duration)
		return res
	}

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return fail(err)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("rate limit wait: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	output, err := tool.Invoke(callCtx, call.Input)
	if err != nil {
		return fail(err)
	}
	res.Output = output
	res.Duration = time.Since(start)
	metrics.RecordToolCall(call.Name, false, res.Duration)
	return res
}
