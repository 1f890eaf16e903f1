package toolloop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/tools"
)

// scriptedCaller returns pre-baked turns in order, then an empty final turn.
type scriptedCaller struct {
	turns []llm.Turn
	seen  []llm.TurnRequest
}

func (s *scriptedCaller) NextTurn(_ context.Context, req llm.TurnRequest) (llm.Turn, error) {
	s.seen = append(s.seen, req)
	if len(s.turns) == 0 {
		return llm.Turn{Done: true, Message: "nothing more to do"}, nil
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	return turn, nil
}

type recordingSink struct {
	started []string
	ended   []string
}

func (r *recordingSink) ToolCallStarted(call tools.Call)    { r.started = append(r.started, call.Name) }
func (r *recordingSink) ToolCallEnded(res tools.Result)     { r.ended = append(r.ended, res.Name) }

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(&tools.Tool{
		Name:        "web_search",
		Description: "search",
		Tier:        tools.TierWeb,
		Invoke: func(_ context.Context, input map[string]interface{}) (string, error) {
			q, _ := input["query"].(string)
			return "results for " + q, nil
		},
	}))
	return r
}

func newTestRunner(t *testing.T, caller llm.ToolCaller, sink EventSink) *Runner {
	t.Helper()
	reg := newTestRegistry(t)
	exec := tools.NewExecutor(reg, 1000, 1000, time.Second, zap.NewNop())
	return NewRunner(caller, exec, reg, sink, zap.NewNop())
}

func TestRunStopsOnCompleteSentinel(t *testing.T) {
	caller := &scriptedCaller{turns: []llm.Turn{
		{ToolCalls: []llm.ToolCall{{ID: "1", Name: "web_search", Input: map[string]interface{}{"query": "go concurrency"}}}},
		{ToolCalls: []llm.ToolCall{{ID: "2", Name: CompleteToolName}}, Message: "have enough"},
	}}
	sink := &recordingSink{}
	runner := newTestRunner(t, caller, sink)

	outcome, err := runner.Run(context.Background(), Params{UserPrompt: "research go", MaxToolCalls: 10})
	require.NoError(t, err)
	assert.Equal(t, "complete", outcome.Stopped)
	assert.Equal(t, 1, outcome.ToolCallCount)
	assert.Equal(t, "have enough", outcome.FinalMessage)
	assert.Contains(t, outcome.Transcript, "results for go concurrency")
	assert.Equal(t, []string{"web_search"}, sink.started)
	assert.Equal(t, []string{"web_search"}, sink.ended)
}

func TestRunStopsAtCallBudget(t *testing.T) {
	mkTurn := func(id string) llm.Turn {
		return llm.Turn{ToolCalls: []llm.ToolCall{{ID: id, Name: "web_search", Input: map[string]interface{}{"query": id}}}}
	}
	caller := &scriptedCaller{turns: []llm.Turn{mkTurn("1"), mkTurn("2"), mkTurn("3"), mkTurn("4")}}
	runner := newTestRunner(t, caller, nil)

	outcome, err := runner.Run(context.Background(), Params{UserPrompt: "q", MaxToolCalls: 3})
	require.NoError(t, err)
	assert.Equal(t, "call_budget", outcome.Stopped)
	assert.Equal(t, 3, outcome.ToolCallCount)
}

func TestRunStopsWhenModelStopsCallingTools(t *testing.T) {
	caller := &scriptedCaller{turns: []llm.Turn{
		{ToolCalls: []llm.ToolCall{{ID: "1", Name: "web_search", Input: map[string]interface{}{"query": "x"}}}},
		{Done: true, Message: "final answer"},
	}}
	runner := newTestRunner(t, caller, nil)

	outcome, err := runner.Run(context.Background(), Params{UserPrompt: "q", MaxToolCalls: 10})
	require.NoError(t, err)
	assert.Equal(t, "no_tool_calls", outcome.Stopped)
	assert.Equal(t, "final answer", outcome.FinalMessage)
}

func TestRunExecutesCallsOnFinalTurn(t *testing.T) {
	caller := &scriptedCaller{turns: []llm.Turn{
		{
			Done:      true,
			Message:   "one last lookup",
			ToolCalls: []llm.ToolCall{{ID: "1", Name: "web_search", Input: map[string]interface{}{"query": "release dates"}}},
		},
	}}
	sink := &recordingSink{}
	runner := newTestRunner(t, caller, sink)

	outcome, err := runner.Run(context.Background(), Params{UserPrompt: "q", MaxToolCalls: 10})
	require.NoError(t, err)
	assert.Equal(t, "complete", outcome.Stopped)
	assert.Equal(t, 1, outcome.ToolCallCount)
	assert.Contains(t, outcome.Transcript, "results for release dates")
	assert.Equal(t, []string{"web_search"}, sink.started)
}

func TestRunFeedsToolErrorsBackToModel(t *testing.T) {
	caller := &scriptedCaller{turns: []llm.Turn{
		{ToolCalls: []llm.ToolCall{{ID: "1", Name: "does_not_exist"}}},
	}}
	runner := newTestRunner(t, caller, nil)

	outcome, err := runner.Run(context.Background(), Params{UserPrompt: "q", MaxToolCalls: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.ToolCallCount)

	// the second model turn must contain the error result in its history
	require.Len(t, caller.seen, 2)
	last := caller.seen[1].History
	found := false
	for _, m := range last {
		if m.Role == "tool" && m.IsError && strings.Contains(m.Content, "does_not_exist") {
			found = true
		}
	}
	assert.True(t, found, "error result should be fed back as a tool message")
}

func TestRunAdvertisesCompleteSentinel(t *testing.T) {
	caller := &scriptedCaller{}
	runner := newTestRunner(t, caller, nil)

	_, err := runner.Run(context.Background(), Params{UserPrompt: "q", MaxToolCalls: 5})
	require.NoError(t, err)
	require.Len(t, caller.seen, 1)
	names := []string{}
	for _, spec := range caller.seen[0].Tools {
		names = append(names, spec.Name)
	}
	assert.Contains(t, names, "web_search")
	assert.Contains(t, names, CompleteToolName)
}

func TestCompressPrefersToolResults(t *testing.T) {
	history := []llm.Message{
		{Role: "assistant", Content: strings.Repeat("reasoning ", 200)},
		{Role: "tool", ToolName: "web_search", Content: "key evidence A"},
		{Role: "tool", ToolName: "web_search", Content: "key evidence B"},
	}

	out := Compress(history, CompressionConfig{MaxTokens: 20})
	assert.Contains(t, out, "key evidence A")
	assert.Contains(t, out, "key evidence B")
	assert.NotContains(t, out, "reasoning")
}

func TestCompressMarksErrors(t *testing.T) {
	history := []llm.Message{
		{Role: "tool", ToolName: "web_search", Content: "timeout", IsError: true},
	}
	out := Compress(history, CompressionConfig{})
	assert.Contains(t, out, "web_search (error)")
}
