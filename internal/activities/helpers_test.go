package activities

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/config"
	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/tools"
)

// stubCompleter answers structured completions from a schema-keyed script.
type stubCompleter struct {
	outputs map[string]string
	errs    map[string]error
	calls   []llm.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.calls = append(s.calls, req)
	if err, ok := s.errs[req.Schema]; ok {
		return llm.CompletionResponse{}, err
	}
	out, ok := s.outputs[req.Schema]
	if !ok {
		return llm.CompletionResponse{}, errors.New("no scripted output for schema " + req.Schema)
	}
	return llm.CompletionResponse{Output: json.RawMessage(out)}, nil
}

// stubCaller replays scripted turns for the tool loop.
type stubCaller struct {
	turns []llm.Turn
	err   error
}

func (s *stubCaller) NextTurn(context.Context, llm.TurnRequest) (llm.Turn, error) {
	if s.err != nil {
		return llm.Turn{}, s.err
	}
	if len(s.turns) == 0 {
		return llm.Turn{Done: true}, nil
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]
	return turn, nil
}

type testDeps struct {
	acts      *Activities
	completer *stubCompleter
	redis     *miniredis.Miniredis
}

func newTestActivities(t *testing.T, completer *stubCompleter, caller llm.ToolCaller) testDeps {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.Tool{
		Name:        "web_search",
		Description: "search",
		Tier:        tools.TierWeb,
		Invoke: func(_ context.Context, input map[string]interface{}) (string, error) {
			q, _ := input["query"].(string)
			return "results for " + q, nil
		},
	}))

	cfg := &config.Config{}
	cfg.Redis.ClarificationTTL = time.Hour
	cfg.Research = config.ResearchDefaults{
		MaxReviewIterations:   2,
		MaxToolCalls:          10,
		MaxDiscoverIterations: 5,
	}

	acts := New(Deps{
		Config:    cfg,
		Completer: completer,
		Caller:    caller,
		Registry:  registry,
		Executor:  tools.NewExecutor(registry, 1000, 1000, time.Second, zap.NewNop()),
		Redis:     rdb,
		Logger:    zap.NewNop(),
	})
	return testDeps{acts: acts, completer: completer, redis: mr}
}
