package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/streaming"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// Review evaluates the aggregated sections for sufficiency. The workflow
// owns the final decision rule; this activity returns the model's grading
// and retry suggestions.
func (a *Activities) Review(ctx context.Context, in ReviewInput) (ReviewResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "review", in.RunID)
	defer span.End()
	a.logger.Info("review phase",
		zap.String("run_id", in.RunID),
		zap.Int("iteration", in.ReviewIterations),
		zap.Int("max_iterations", in.MaxReviewIterations),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate whether this research answers the query.\nQuery: %s\nBrief: %s\n", in.Query, in.ResearchBrief)
	fmt.Fprintf(&b, "Review round %d of at most %d.\n", in.ReviewIterations+1, in.MaxReviewIterations)
	b.WriteString("Grade every section (sufficient, partial, missing). List concrete gaps. ")
	b.WriteString("sections_to_retry must contain exact existing section titles only.\nSections:\n")
	for _, s := range in.Sections {
		fmt.Fprintf(&b, "## %s [%s]\n%s\n", s.Title, s.Status, s.Content)
	}

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: b.String(),
		Schema: "review",
	})
	metrics.RecordCompletion("review", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("review completion: %w", err)
	}

	var out ReviewResult
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return ReviewResult{}, err
	}

	a.saveReviewRound(ctx, in, out)

	a.publish(in.RunID, streaming.Event{
		Type:  streaming.EventReviewCompleted,
		Phase: "review",
		Payload: map[string]interface{}{
			"score":     out.OverallScore,
			"gaps":      len(out.Gaps),
			"retry":     out.SectionsToRetry,
			"iteration": in.ReviewIterations,
		},
	})
	return out, nil
}

// saveReviewRound mirrors one grading round into Postgres; a down database
// never fails the review.
func (a *Activities) saveReviewRound(ctx context.Context, in ReviewInput, out ReviewResult) {
	if a.store == nil {
		return
	}
	rec := &db.ReviewRoundRecord{
		RunID:      in.RunID,
		Round:      in.ReviewIterations,
		Score:      out.OverallScore,
		Sufficient: out.IsSufficient,
		Gaps:       out.Gaps,
	}
	if err := a.store.SaveReviewRound(ctx, rec); err != nil {
		a.logger.Warn("review round persistence failed",
			zap.String("run_id", in.RunID),
			zap.Int("round", in.ReviewIterations),
			zap.Error(err),
		)
	}
}
