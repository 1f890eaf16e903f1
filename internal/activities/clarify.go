package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/streaming"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// clarifyKey is the Redis key mirroring a run's pending clarification so
// external surfaces can show the open question without querying the workflow.
func clarifyKey(runID string) string { return "clarify:" + runID }

// Clarify decides whether the query is researchable as-is or needs a human
// answer first. Prior exchange rounds are folded into the prompt.
func (a *Activities) Clarify(ctx context.Context, in ClarifyInput) (ClarifyResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "clarify", in.RunID)
	defer span.End()
	a.logger.Info("clarify phase",
		zap.String("run_id", in.RunID),
		zap.Int("exchange_rounds", len(in.Exchange)),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "Research query: %s\n", in.OriginalQuery)
	for _, ex := range in.Exchange {
		fmt.Fprintf(&b, "Asked: %s\nUser answered: %s\n", ex.Question, ex.Answer)
	}
	if in.TreatAnswerAsFinal {
		b.WriteString("Clarification rounds are exhausted. Produce the refined query from what is known; do not ask again.\n")
	}

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: b.String(),
		Schema: "clarification",
	})
	metrics.RecordCompletion("clarification", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return ClarifyResult{}, fmt.Errorf("clarification completion: %w", err)
	}

	var out ClarifyResult
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return ClarifyResult{}, err
	}
	if in.TreatAnswerAsFinal && out.NeedClarification {
		// round cap reached, the last answer stands
		out.NeedClarification = false
		if out.ClarifiedQuery == "" {
			out.ClarifiedQuery = in.OriginalQuery
		}
	}

	if out.NeedClarification {
		metrics.ClarificationsRequested.Inc()
		a.publish(in.RunID, streaming.Event{
			Type:    streaming.EventClarificationRequest,
			Phase:   "clarify",
			Message: out.Question,
		})
		a.mirrorPendingQuestion(ctx, in.RunID, out.Question)
	} else {
		a.clearPendingQuestion(ctx, in.RunID)
	}
	return out, nil
}

// mirrorPendingQuestion keeps the open question in Redis with a TTL so an
// abandoned run does not leave state behind forever.
func (a *Activities) mirrorPendingQuestion(ctx context.Context, runID, question string) {
	if a.redis == nil {
		return
	}
	ttl := a.cfg.Redis.ClarificationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := a.redis.Set(ctx, clarifyKey(runID), question, ttl).Err(); err != nil {
		a.logger.Warn("failed to mirror pending clarification",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

func (a *Activities) clearPendingQuestion(ctx context.Context, runID string) {
	if a.redis == nil {
		return
	}
	if err := a.redis.Del(ctx, clarifyKey(runID)).Err(); err != nil {
		a.logger.Warn("failed to clear pending clarification",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
