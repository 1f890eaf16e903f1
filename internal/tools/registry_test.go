package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/tracing"
)

func echoTool(name string, tier Tier) *Tool {
	return &Tool{
		Name:        name,
		Description: name,
		Tier:        tier,
		Invoke: func(_ context.Context, input map[string]interface{}) (string, error) {
			if q, ok := input["query"].(string); ok {
				return q, nil
			}
			return "", nil
		},
	}
}

func TestRegistryListOrdersByTier(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("web_search", TierWeb)))
	require.NoError(t, r.Register(echoTool("arxiv_search", TierAcademic)))
	require.NoError(t, r.Register(echoTool("github_search", TierCommunity)))

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"arxiv_search", "github_search", "web_search"}, names)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	catalog := `tools:
  - name: web_search
    description: General web search.
    tier: web
  - name: arxiv_search
    description: Academic paper search.
    tier: academic
  - name: disabled_tool
    description: Should be skipped.
    tier: web
    enabled: false
  - name: unbound_tool
    description: No implementation registered.
    tier: web
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	impls := map[string]InvokeFunc{
		"web_search":    func(context.Context, map[string]interface{}) (string, error) { return "w", nil },
		"arxiv_search":  func(context.Context, map[string]interface{}) (string, error) { return "a", nil },
		"disabled_tool": func(context.Context, map[string]interface{}) (string, error) { return "d", nil },
	}

	r := NewRegistry()
	require.NoError(t, r.LoadCatalog(path, impls))

	tools := r.List()
	require.Len(t, tools, 2)
	assert.Equal(t, "arxiv_search", tools[0].Name)
	assert.Equal(t, TierAcademic, tools[0].Tier)
	assert.Equal(t, "web_search", tools[1].Name)
}

func TestExecutorRunsCallsConcurrentlyAndKeepsOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo", TierWeb)))

	e := NewExecutor(r, 100, 100, time.Second, zap.NewNop())
	calls := []Call{
		{ID: "1", Name: "echo", Input: map[string]interface{}{"query": "first"}},
		{ID: "2", Name: "echo", Input: map[string]interface{}{"query": "second"}},
		{ID: "3", Name: "echo", Input: map[string]interface{}{"query": "third"}},
	}

	results := e.ExecuteAll(context.Background(), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Output)
	assert.Equal(t, "second", results[1].Output)
	assert.Equal(t, "third", results[2].Output)
	for _, res := range results {
		assert.False(t, res.IsError)
	}
}

func TestExecutorEmitsToolSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo", TierWeb)))
	e := NewExecutor(r, 100, 100, time.Second, zap.NewNop())

	ctx := tracing.WithRunID(context.Background(), "run-1")
	e.ExecuteAll(ctx, []Call{{ID: "1", Name: "echo", Input: map[string]interface{}{"query": "q"}}})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.echo", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("research.run_id", "run-1"))
}

func TestExecutorTurnsFailuresIntoErrorResults(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{
		Name:        "broken",
		Description: "always fails",
		Invoke: func(context.Context, map[string]interface{}) (string, error) {
			return "", errors.New("upstream 503")
		},
	}))

	e := NewExecutor(r, 100, 100, time.Second, zap.NewNop())
	results := e.ExecuteAll(context.Background(), []Call{
		{ID: "1", Name: "broken"},
		{ID: "2", Name: "missing"},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Output, "upstream 503")
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Output, "missing")
}
