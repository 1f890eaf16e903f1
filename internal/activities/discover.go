package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/streaming"
	"github.com/loomworks/deepresearch/internal/toolloop"
	"github.com/loomworks/deepresearch/internal/tracing"
)

const discoverSystemPrompt = `You are enumerating candidate entities for a research question.
Go for breadth over depth: find every distinct candidate, not details about any one.
Prefer academic and official sources, then community and code sources; use general web search last.
Call ` + toolloop.CompleteToolName + ` once you believe the list is complete.`

// Discover runs the bounded entity-enumeration loop and extracts the found
// entities from the transcript. Zero entities is a valid outcome; planning
// falls back to the query itself.
func (a *Activities) Discover(ctx context.Context, in DiscoverInput) (DiscoverResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "discover", in.RunID)
	defer span.End()
	a.logger.Info("discover phase",
		zap.String("run_id", in.RunID),
		zap.Int("max_iterations", in.MaxIterations),
	)

	target := in.DiscoveryTarget
	if target == "" {
		target = in.Query
	}
	outcome, err := a.newRunner(in.RunID).Run(ctx, toolloop.Params{
		SystemPrompt: discoverSystemPrompt,
		UserPrompt:   fmt.Sprintf("Enumerate entities for: %s\nOriginal question: %s", target, in.Query),
		MaxToolCalls: in.MaxIterations,
		Compression:  toolloop.CompressionConfig{MaxTokens: in.CompressionMaxTokens},
	})
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("discovery loop: %w", err)
	}

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(
			"Extract the discovered entities from this research transcript.\nQuestion: %s\nTranscript:\n%s",
			in.Query, outcome.Transcript,
		),
		Schema: "entity_extraction",
	})
	metrics.RecordCompletion("entity_extraction", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return DiscoverResult{}, fmt.Errorf("entity extraction: %w", err)
	}

	var out DiscoverResult
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return DiscoverResult{}, err
	}
	if out.TotalFound == 0 {
		out.TotalFound = len(out.Entities)
	}

	for _, e := range out.Entities {
		a.publish(in.RunID, streaming.Event{
			Type:    streaming.EventEntityDiscovered,
			Phase:   "discover",
			Message: e.Name,
			Payload: map[string]interface{}{"category": e.Category, "priority": string(e.Priority)},
		})
	}
	a.logger.Info("discovery finished",
		zap.String("run_id", in.RunID),
		zap.Int("entities", len(out.Entities)),
		zap.String("stopped", outcome.Stopped),
	)
	return out, nil
}
