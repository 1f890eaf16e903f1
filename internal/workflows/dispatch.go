package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/loomworks/deepresearch/internal/activities"
	"github.com/loomworks/deepresearch/internal/research"
)

// dispatchResearchers fans out one researcher per pending section, waits for
// all of them, and folds their updates into state through the single-writer
// merge. Exactly the sections that were pending on entry are dispatched.
func dispatchResearchers(ctx workflow.Context, in RunInput, state *research.State) error {
	pending := research.PendingSections(state.Sections)
	if len(pending) == 0 {
		return nil
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("dispatching researchers",
		"run_id", in.RunID,
		"sections", len(pending),
	)

	// mark dispatched sections before fan-out
	for _, p := range pending {
		if s := research.SectionByTitle(state.Sections, p.Title); s != nil {
			s.Status = research.SectionResearching
			emitSectionStatus(ctx, in.RunID, p.Title, research.SectionResearching)
		}
	}

	researchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	resultCh := workflow.NewChannel(ctx)
	for _, p := range pending {
		section := p
		section.Status = research.SectionResearching
		workflow.Go(ctx, func(gCtx workflow.Context) {
			var res activities.ResearchSectionResult
			err := workflow.ExecuteActivity(researchCtx, activities.ActivityResearchSection, activities.ResearchSectionInput{
				RunID:                in.RunID,
				Section:              section,
				ResearchBrief:        state.ResearchBrief,
				MaxToolCalls:         in.Config.MaxToolCalls,
				CompressionMaxTokens: in.Config.CompressionMaxTokens,
			}).Get(gCtx, &res)
			if err != nil {
				// degraded: the section goes back to pending, review will
				// flag it as missing next round
				logger.Warn("researcher activity failed",
					"run_id", in.RunID,
					"section", section.Title,
					"error", err,
				)
				failed := section
				failed.Status = research.SectionPending
				resultCh.Send(gCtx, activities.ResearchSectionResult{Section: failed, Degraded: true})
				return
			}
			resultCh.Send(gCtx, res)
		})
	}

	// aggregation barrier: every dispatched researcher reports exactly once
	updates := make([]research.Section, 0, len(pending))
	for i := 0; i < len(pending); i++ {
		var res activities.ResearchSectionResult
		resultCh.Receive(ctx, &res)
		updates = append(updates, res.Section)
		emitSectionStatus(ctx, in.RunID, res.Section.Title, res.Section.Status)
	}
	state.Sections = research.MergeSections(state.Sections, updates)
	return nil
}
