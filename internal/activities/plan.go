package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// maxPlannedSections bounds a model-drafted outline. Entity-derived outlines
// are bounded by the discovery loop instead.
const maxPlannedSections = 7

// PlanSections produces the section outline. With discovered entities the
// outline is derived directly: one section per entity, titled with the
// entity name, so downstream merge and retry address sections by the names
// the user will recognize. Without entities the model drafts a 3-7 section
// outline from the query.
func (a *Activities) PlanSections(ctx context.Context, in PlanInput) (PlanResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "plan", in.RunID)
	defer span.End()
	a.logger.Info("plan phase",
		zap.String("run_id", in.RunID),
		zap.Int("entities", len(in.Entities)),
	)

	if len(in.Entities) > 0 {
		out := a.planFromEntities(in)
		metrics.SectionsPlanned.Observe(float64(len(out.Sections)))
		return out, nil
	}

	prompt := fmt.Sprintf(
		"Draft a research plan.\nQuery: %s\nQuery type: %s\nOutput format: %s\n"+
			"Produce a research_brief guiding all researchers and 3 to 7 sections, "+
			"each an independently researchable sub-topic with a unique title.",
		in.Query, in.QueryType, in.OutputFormat,
	)
	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: prompt,
		Schema: "research_plan",
	})
	metrics.RecordCompletion("research_plan", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return PlanResult{}, fmt.Errorf("planning completion: %w", err)
	}

	var out PlanResult
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return PlanResult{}, err
	}
	if len(out.Sections) > maxPlannedSections {
		a.logger.Warn("plan exceeds section cap, truncating",
			zap.String("run_id", in.RunID),
			zap.Int("planned", len(out.Sections)),
		)
		out.Sections = out.Sections[:maxPlannedSections]
	}
	if out.ResearchBrief == "" {
		out.ResearchBrief = in.Query
	}
	metrics.SectionsPlanned.Observe(float64(len(out.Sections)))
	return out, nil
}

func (a *Activities) planFromEntities(in PlanInput) PlanResult {
	sections := make([]SectionPlan, 0, len(in.Entities))
	seen := make(map[string]bool, len(in.Entities))
	for _, e := range in.Entities {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		desc := e.Brief
		if desc == "" {
			desc = fmt.Sprintf("Research %s in the context of: %s", e.Name, in.Query)
		}
		if e.Category != "" {
			desc = fmt.Sprintf("%s (category: %s)", desc, e.Category)
		}
		sections = append(sections, SectionPlan{Title: e.Name, Description: desc})
	}

	var brief strings.Builder
	fmt.Fprintf(&brief, "Research each entity to answer: %s\n", in.Query)
	fmt.Fprintf(&brief, "Expected output format: %s.\n", in.OutputFormat)
	if in.DiscoverySummary != "" {
		fmt.Fprintf(&brief, "Discovery context: %s\n", in.DiscoverySummary)
	}
	return PlanResult{ResearchBrief: brief.String(), Sections: sections}
}
