package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/loomworks/deepresearch/internal/activities"
	"github.com/loomworks/deepresearch/internal/research"
	"github.com/loomworks/deepresearch/internal/streaming"
)

// clarifyRoundCap is a soft cap on clarification rounds. Past it the next
// answer is treated as final rather than asking again.
const clarifyRoundCap = 3

// DeepResearchWorkflow drives one research run: clarify, analyze, optionally
// discover, then plan, dispatch parallel researchers, review, and loop within
// the review budget before writing the report. Clarification suspends the
// workflow on a signal; all external I/O happens in activities.
func DeepResearchWorkflow(ctx workflow.Context, in RunInput) (RunResult, error) {
	if err := in.Validate(); err != nil {
		return RunResult{}, temporal.NewNonRetryableApplicationError(
			"invalid run input", "InvalidRunInput", err,
		)
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("research run started", "run_id", in.RunID, "query", in.Query)

	state := &research.State{
		StartedAt:           workflow.Now(ctx),
		OriginalQuery:       in.Query,
		MaxReviewIterations: in.Config.MaxReviewIterations,
	}
	phase := "clarify"

	if err := workflow.SetQueryHandler(ctx, QueryPendingClarification, func() (string, error) {
		return state.PendingQuestion, nil
	}); err != nil {
		return RunResult{}, err
	}
	if err := workflow.SetQueryHandler(ctx, QueryRunStatus, func() (StatusSnapshot, error) {
		snap := StatusSnapshot{
			Phase:            phase,
			PendingQuestion:  state.PendingQuestion,
			QueryType:        state.QueryType,
			ReviewIterations: state.ReviewIterations,
		}
		for _, s := range state.Sections {
			snap.Sections = append(snap.Sections, SectionStatusSnapshot{Title: s.Title, Status: s.Status})
		}
		return snap, nil
	}); err != nil {
		return RunResult{}, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})

	// Clarify
	emitPhase(ctx, in.RunID, "clarify")
	if err := runClarifyLoop(ctx, in, state); err != nil {
		persistState(ctx, in, state, "failed")
		return RunResult{}, err
	}

	// Analyze
	phase = "analyze"
	emitPhase(ctx, in.RunID, "analyze")
	var analysis activities.AnalyzeResult
	if err := workflow.ExecuteActivity(ctx, activities.ActivityAnalyze, activities.AnalyzeInput{
		RunID: in.RunID,
		Query: state.ClarifiedQuery,
	}).Get(ctx, &analysis); err != nil {
		persistState(ctx, in, state, "failed")
		return RunResult{}, temporal.NewNonRetryableApplicationError(
			"query analysis failed", ErrTypeAnalysisFailed, err,
		)
	}
	state.QueryType = analysis.QueryType
	state.OutputFormat = analysis.OutputFormat

	// Discover, only for enumeration queries that ask for it
	if analysis.NeedsDiscovery && analysis.QueryType == research.QueryTypeList {
		phase = "discover"
		emitPhase(ctx, in.RunID, "discover")
		discCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 10 * time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
		})
		var disc activities.DiscoverResult
		if err := workflow.ExecuteActivity(discCtx, activities.ActivityDiscover, activities.DiscoverInput{
			RunID:                in.RunID,
			Query:                state.ClarifiedQuery,
			DiscoveryTarget:      analysis.DiscoveryTarget,
			MaxIterations:        in.Config.MaxDiscoverIterations,
			CompressionMaxTokens: in.Config.CompressionMaxTokens,
		}).Get(discCtx, &disc); err != nil {
			// planning falls back to the query itself
			logger.Warn("discovery failed, planning without entities", "error", err)
		} else {
			state.Entities = disc.Entities
			state.DiscoverySummary = disc.Summary
		}
	}

	// Plan, at most once per run
	phase = "plan"
	emitPhase(ctx, in.RunID, "plan")
	var plan activities.PlanResult
	if err := workflow.ExecuteActivity(ctx, activities.ActivityPlanSections, activities.PlanInput{
		RunID:            in.RunID,
		Query:            state.ClarifiedQuery,
		QueryType:        state.QueryType,
		OutputFormat:     state.OutputFormat,
		Entities:         state.Entities,
		DiscoverySummary: state.DiscoverySummary,
	}).Get(ctx, &plan); err != nil {
		persistState(ctx, in, state, "failed")
		return RunResult{}, temporal.NewNonRetryableApplicationError(
			"section planning failed", ErrTypePlanningFailed, err,
		)
	}
	if len(plan.Sections) == 0 {
		persistState(ctx, in, state, "failed")
		return RunResult{}, temporal.NewNonRetryableApplicationError(
			"planning produced zero sections", ErrTypePlanningFailed, nil,
		)
	}
	state.ResearchBrief = plan.ResearchBrief
	for _, s := range plan.Sections {
		state.Sections = append(state.Sections, research.Section{
			Title:       s.Title,
			Description: s.Description,
			Status:      research.SectionPending,
		})
	}
	persistState(ctx, in, state, "running")

	// Research rounds: dispatch pending sections, aggregate, review, retry
	// within the iteration budget.
	for {
		phase = "research"
		emitPhase(ctx, in.RunID, "research")
		if err := dispatchResearchers(ctx, in, state); err != nil {
			persistState(ctx, in, state, "failed")
			return RunResult{}, err
		}
		persistState(ctx, in, state, "running")

		phase = "review"
		emitPhase(ctx, in.RunID, "review")
		var rev activities.ReviewResult
		if err := workflow.ExecuteActivity(ctx, activities.ActivityReview, activities.ReviewInput{
			RunID:               in.RunID,
			Query:               state.ClarifiedQuery,
			ResearchBrief:       state.ResearchBrief,
			Sections:            state.Sections,
			ReviewIterations:    state.ReviewIterations,
			MaxReviewIterations: state.MaxReviewIterations,
		}).Get(ctx, &rev); err != nil {
			// review is advisory; a run with research done still reports
			logger.Warn("review failed, proceeding to report", "error", err)
			break
		}

		if decideSufficiency(state.ReviewIterations, state.MaxReviewIterations, rev) {
			break
		}
		if applyRetries(state, rev.SectionsToRetry, logger) == 0 {
			logger.Warn("review found gaps but named no retryable sections, proceeding to report",
				"gaps", len(rev.Gaps),
			)
			break
		}
		state.ReviewIterations++
		for _, title := range rev.SectionsToRetry {
			emitSectionStatus(ctx, in.RunID, title, research.SectionPending)
		}
	}

	// Report
	phase = "report"
	emitPhase(ctx, in.RunID, "report")
	var rep activities.ReportResult
	if err := workflow.ExecuteActivity(ctx, activities.ActivityWriteReport, activities.ReportInput{
		RunID:        in.RunID,
		Query:        state.ClarifiedQuery,
		OutputFormat: state.OutputFormat,
		Sections:     state.Sections,
	}).Get(ctx, &rep); err != nil {
		persistState(ctx, in, state, "failed")
		return RunResult{}, err
	}
	state.FinalReport = rep.Report
	phase = "completed"
	emitPhase(ctx, in.RunID, "completed")
	persistState(ctx, in, state, "completed")

	result := RunResult{
		RunID:            in.RunID,
		Report:           rep.Report,
		Sources:          rep.Sources,
		ReviewIterations: state.ReviewIterations,
		ReportFallback:   rep.Fallback,
	}
	for _, s := range state.Sections {
		result.SectionTitles = append(result.SectionTitles, s.Title)
	}
	logger.Info("research run completed",
		"run_id", in.RunID,
		"sections", len(state.Sections),
		"review_iterations", state.ReviewIterations,
	)
	return result, nil
}

// runClarifyLoop resolves the query, suspending on a signal whenever the
// model asks a question. Past the round cap the next answer is final.
func runClarifyLoop(ctx workflow.Context, in RunInput, state *research.State) error {
	if !in.Config.AllowClarification {
		state.ClarifiedQuery = in.Query
		return nil
	}

	answerCh := workflow.GetSignalChannel(ctx, SignalClarificationAnswer)
	var exchange []activities.ClarifyExchange
	for round := 0; ; round++ {
		var res activities.ClarifyResult
		err := workflow.ExecuteActivity(ctx, activities.ActivityClarify, activities.ClarifyInput{
			RunID:              in.RunID,
			OriginalQuery:      in.Query,
			Exchange:           exchange,
			TreatAnswerAsFinal: round >= clarifyRoundCap,
		}).Get(ctx, &res)
		if err != nil {
			return temporal.NewNonRetryableApplicationError(
				"clarification failed", ErrTypeClarificationFailed, err,
			)
		}
		if !res.NeedClarification {
			state.ClarifiedQuery = res.ClarifiedQuery
			state.PendingQuestion = ""
			return nil
		}

		state.PendingQuestion = res.Question
		persistState(ctx, in, state, "awaiting_clarification")

		var answer string
		answerCh.Receive(ctx, &answer)
		exchange = append(exchange, activities.ClarifyExchange{Question: res.Question, Answer: answer})
		state.PendingQuestion = ""
	}
}

// emitPhase publishes a phase-entered event on a short, single-attempt
// context so a streaming hiccup never stalls the run.
func emitPhase(ctx workflow.Context, runID, phase string) {
	emitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(emitCtx, activities.ActivityEmitRunEvent, activities.EmitRunEventInput{
		RunID:     runID,
		Type:      streaming.EventPhaseEntered,
		Phase:     phase,
		Timestamp: workflow.Now(ctx),
	}).Get(emitCtx, nil)
}

func emitSectionStatus(ctx workflow.Context, runID, title string, status research.SectionStatus) {
	emitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(emitCtx, activities.ActivityEmitRunEvent, activities.EmitRunEventInput{
		RunID:     runID,
		Type:      streaming.EventSectionStatusChanged,
		Section:   title,
		Message:   string(status),
		Timestamp: workflow.Now(ctx),
	}).Get(emitCtx, nil)
}

// persistState mirrors run state, best-effort.
func persistState(ctx workflow.Context, in RunInput, state *research.State, status string) {
	pCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(pCtx, activities.ActivityPersistRunState, activities.RunStateSnapshot{
		RunID:            in.RunID,
		Query:            in.Query,
		Status:           status,
		StartedAt:        state.StartedAt,
		QueryType:        string(state.QueryType),
		PendingQuestion:  state.PendingQuestion,
		ReviewIterations: state.ReviewIterations,
		SectionsTotal:    len(state.Sections),
		SectionsDone:     research.CompletedCount(state.Sections),
		FinalReport:      state.FinalReport,
	}).Get(pCtx, nil)
}
