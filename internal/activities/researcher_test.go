package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/research"
	"github.com/loomworks/deepresearch/internal/toolloop"
)

func searchTurn(id, query string) llm.Turn {
	return llm.Turn{ToolCalls: []llm.ToolCall{
		{ID: id, Name: "web_search", Input: map[string]interface{}{"query": query}},
	}}
}

func TestResearchSectionCompletesWithExtraction(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"section_extraction": `{
			"title": "LLaVA",
			"content": "LLaVA is an open vision-language model.",
			"sources": ["https://llava.example"],
			"key_findings": ["strong benchmarks"]
		}`,
	}}
	caller := &stubCaller{turns: []llm.Turn{
		searchTurn("1", "LLaVA"),
		{ToolCalls: []llm.ToolCall{{ID: "2", Name: toolloop.CompleteToolName}}},
	}}
	deps := newTestActivities(t, completer, caller)

	out, err := deps.acts.ResearchSection(context.Background(), ResearchSectionInput{
		RunID:        "run-1",
		Section:      research.Section{Title: "LLaVA", Description: "open VLM", Status: research.SectionResearching},
		MaxToolCalls: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, research.SectionCompleted, out.Section.Status)
	assert.Equal(t, "LLaVA is an open vision-language model.", out.Section.Content)
	assert.Equal(t, []string{"https://llava.example"}, out.Section.Sources)
	assert.False(t, out.Degraded)
	assert.Equal(t, 1, out.ToolCalls)
}

func TestResearchSectionKeepsPriorSourcesOnRetry(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"section_extraction": `{"title": "LLaVA", "content": "extended", "sources": ["https://new.example"]}`,
	}}
	caller := &stubCaller{turns: []llm.Turn{searchTurn("1", "LLaVA")}}
	deps := newTestActivities(t, completer, caller)

	out, err := deps.acts.ResearchSection(context.Background(), ResearchSectionInput{
		RunID: "run-1",
		Section: research.Section{
			Title:   "LLaVA",
			Status:  research.SectionResearching,
			Content: "prior draft",
			Sources: []string{"https://old.example"},
		},
		MaxToolCalls: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "extended", out.Section.Content)
	assert.Equal(t, []string{"https://old.example", "https://new.example"}, out.Section.Sources)
}

func TestResearchSectionDegradesToRawEvidenceOnExtractionFailure(t *testing.T) {
	completer := &stubCompleter{errs: map[string]error{
		"section_extraction": errors.New("service down"),
	}}
	caller := &stubCaller{turns: []llm.Turn{searchTurn("1", "evidence")}}
	deps := newTestActivities(t, completer, caller)

	out, err := deps.acts.ResearchSection(context.Background(), ResearchSectionInput{
		RunID:        "run-1",
		Section:      research.Section{Title: "A", Status: research.SectionResearching},
		MaxToolCalls: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, research.SectionCompleted, out.Section.Status)
	assert.Contains(t, out.Section.Content, "results for evidence")
	assert.True(t, out.Degraded)
}

func TestResearchSectionLeavesPendingWhenNothingGathered(t *testing.T) {
	caller := &stubCaller{err: errors.New("model turn failed")}
	deps := newTestActivities(t, &stubCompleter{}, caller)

	out, err := deps.acts.ResearchSection(context.Background(), ResearchSectionInput{
		RunID:        "run-1",
		Section:      research.Section{Title: "A", Status: research.SectionResearching},
		MaxToolCalls: 10,
	})
	require.NoError(t, err, "a failed researcher degrades, it does not abort the run")
	assert.Equal(t, research.SectionPending, out.Section.Status)
	assert.True(t, out.Degraded)
	assert.Empty(t, out.Section.Content)
}
