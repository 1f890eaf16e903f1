package toolloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/tools"
)

// CompleteToolName is the sentinel tool a model calls to end its loop early
// with a final answer in hand.
const CompleteToolName = "research_complete"

// EventSink receives tool lifecycle notifications for streaming. A nil sink
// disables emission.
type EventSink interface {
	ToolCallStarted(call tools.Call)
	ToolCallEnded(result tools.Result)
}

// Params bounds one loop run.
type Params struct {
	SystemPrompt string
	UserPrompt   string
	MaxToolCalls int
	Compression  CompressionConfig
}

// Outcome is the terminal state of a loop run.
type Outcome struct {
	// Transcript is the compressed conversation, ready for extraction.
	Transcript string
	// FinalMessage is the model's last assistant message, if any.
	FinalMessage string
	// ToolCallCount is the number of tool calls actually executed.
	ToolCallCount int
	// Stopped names why the loop ended: "complete", "no_tool_calls",
	// or "call_budget".
	Stopped string
}

// Runner drives the reason-act loop: ask the model for a turn, execute its
// tool calls, feed results back, and repeat within the call budget.
type Runner struct {
	caller   llm.ToolCaller
	executor *tools.Executor
	registry *tools.Registry
	sink     EventSink
	logger   *zap.Logger
}

func NewRunner(caller llm.ToolCaller, executor *tools.Executor, registry *tools.Registry, sink EventSink, logger *zap.Logger) *Runner {
	return &Runner{caller: caller, executor: executor, registry: registry, sink: sink, logger: logger}
}

// Run executes the loop to completion. Tool failures are reported back to
// the model as error results; only model-turn transport failures abort.
func (r *Runner) Run(ctx context.Context, params Params) (Outcome, error) {
	if params.MaxToolCalls <= 0 {
		params.MaxToolCalls = 10
	}

	specs := r.toolSpecs()
	history := []llm.Message{{Role: "user", Content: params.UserPrompt}}
	outcome := Outcome{Stopped: "no_tool_calls"}

	for outcome.ToolCallCount < params.MaxToolCalls {
		turn, err := r.caller.NextTurn(ctx, llm.TurnRequest{
			SystemPrompt: params.SystemPrompt,
			History:      history,
			Tools:        specs,
		})
		if err != nil {
			return outcome, fmt.Errorf("model turn: %w", err)
		}
		if turn.Message != "" {
			outcome.FinalMessage = turn.Message
			history = append(history, llm.Message{Role: "assistant", Content: turn.Message})
		}
		if len(turn.ToolCalls) == 0 {
			outcome.Stopped = "no_tool_calls"
			break
		}

		// A done flag alongside tool calls still runs the calls; the turn
		// just becomes the last one.
		calls, done := r.collectCalls(turn.ToolCalls)
		if turn.Done {
			done = true
		}
		if done {
			outcome.Stopped = "complete"
			if len(calls) == 0 {
				break
			}
		}

		remaining := params.MaxToolCalls - outcome.ToolCallCount
		if len(calls) > remaining {
			calls = calls[:remaining]
		}

		for _, call := range calls {
			if r.sink != nil {
				r.sink.ToolCallStarted(call)
			}
		}
		results := r.executor.ExecuteAll(ctx, calls)
		outcome.ToolCallCount += len(calls)
		for _, res := range results {
			if r.sink != nil {
				r.sink.ToolCallEnded(res)
			}
			history = append(history, llm.Message{
				Role:       "tool",
				Content:    res.Output,
				ToolCallID: res.CallID,
				ToolName:   res.Name,
				IsError:    res.IsError,
			})
		}

		if outcome.Stopped == "complete" {
			break
		}
		if outcome.ToolCallCount >= params.MaxToolCalls {
			outcome.Stopped = "call_budget"
			break
		}
	}
	if outcome.ToolCallCount >= params.MaxToolCalls && outcome.Stopped != "complete" {
		outcome.Stopped = "call_budget"
	}

	outcome.Transcript = Compress(history, params.Compression)
	r.logger.Debug("tool loop finished",
		zap.String("stopped", outcome.Stopped),
		zap.Int("tool_calls", outcome.ToolCallCount),
	)
	return outcome, nil
}

// collectCalls strips the completion sentinel out of a turn's calls and
// reports whether it was present.
func (r *Runner) collectCalls(calls []llm.ToolCall) ([]tools.Call, bool) {
	out := make([]tools.Call, 0, len(calls))
	done := false
	for _, c := range calls {
		if c.Name == CompleteToolName {
			done = true
			continue
		}
		out = append(out, tools.Call{ID: c.ID, Name: c.Name, Input: c.Input})
	}
	return out, done
}

func (r *Runner) toolSpecs() []llm.ToolSpec {
	listed := r.registry.List()
	specs := make([]llm.ToolSpec, 0, len(listed)+1)
	for _, t := range listed {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	specs = append(specs, llm.ToolSpec{
		Name:        CompleteToolName,
		Description: "Call when enough evidence is gathered to answer the research question.",
	})
	return specs
}
