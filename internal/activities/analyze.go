package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// Analyze classifies the clarified query: what kind of question it is, how
// the answer should be formatted, and whether entity discovery should run
// before planning.
func (a *Activities) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "analyze", in.RunID)
	defer span.End()
	a.logger.Info("analyze phase", zap.String("run_id", in.RunID))

	prompt := fmt.Sprintf(
		"Classify this research query.\nQuery: %s\n"+
			"Pick exactly one query_type (list, comparison, deep_dive, general) "+
			"and one output_format (table, list, prose). "+
			"Set needs_discovery when answering requires first enumerating the candidate entities.",
		in.Query,
	)

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: prompt,
		Schema: "query_analysis",
	})
	metrics.RecordCompletion("query_analysis", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("analysis completion: %w", err)
	}

	var out AnalyzeResult
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return AnalyzeResult{}, err
	}

	a.logger.Info("query analyzed",
		zap.String("run_id", in.RunID),
		zap.String("query_type", string(out.QueryType)),
		zap.String("output_format", string(out.OutputFormat)),
		zap.Bool("needs_discovery", out.NeedsDiscovery),
	)
	return out, nil
}
