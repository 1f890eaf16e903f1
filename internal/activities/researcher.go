package activities

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/research"
	"github.com/loomworks/deepresearch/internal/toolloop"
	"github.com/loomworks/deepresearch/internal/tracing"
)

const researcherSystemPrompt = `You are researching exactly one section of a larger report.
Stay on the assigned sub-topic; other sections are handled elsewhere.
Prefer academic and official sources, then community and code sources; use general web search last.
Cite source URLs for every claim. Call ` + toolloop.CompleteToolName + ` once the section can be written.`

// ResearchSection runs one researcher: a bounded tool loop for the assigned
// section, then structured extraction of the section content. Failures
// degrade rather than abort: with partial evidence the section completes on
// what was gathered; with nothing it stays pending for the next review round.
func (a *Activities) ResearchSection(ctx context.Context, in ResearchSectionInput) (ResearchSectionResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "research", in.RunID)
	defer span.End()
	a.logger.Info("researching section",
		zap.String("run_id", in.RunID),
		zap.String("section", in.Section.Title),
		zap.Int("max_tool_calls", in.MaxToolCalls),
	)

	outcome, err := a.newRunner(in.RunID).Run(ctx, toolloop.Params{
		SystemPrompt: researcherSystemPrompt,
		UserPrompt:   a.researcherPrompt(in),
		MaxToolCalls: in.MaxToolCalls,
		Compression:  toolloop.CompressionConfig{MaxTokens: in.CompressionMaxTokens},
	})
	if err != nil {
		a.logger.Warn("researcher loop failed, section left pending",
			zap.String("run_id", in.RunID),
			zap.String("section", in.Section.Title),
			zap.Error(err),
		)
		metrics.SectionResearchOutcomes.WithLabelValues("failed").Inc()
		section := in.Section
		section.Status = research.SectionPending
		return ResearchSectionResult{Section: section, Degraded: true}, nil
	}

	section := in.Section
	section.Status = research.SectionCompleted

	extracted, err := a.extractSection(ctx, in, outcome)
	switch {
	case err == nil:
		section.Content = extracted.Content
		section.Sources = research.DedupeStrings(append(section.Sources, extracted.Sources...))
		section.KeyFindings = extracted.KeyFindings
		metrics.SectionResearchOutcomes.WithLabelValues("completed").Inc()
	case outcome.Transcript != "" || outcome.FinalMessage != "":
		// extraction failed but evidence exists, keep it raw
		section.Content = firstNonEmpty(outcome.FinalMessage, outcome.Transcript)
		metrics.SectionResearchOutcomes.WithLabelValues("partial").Inc()
		a.logger.Warn("section extraction failed, keeping raw evidence",
			zap.String("run_id", in.RunID),
			zap.String("section", in.Section.Title),
			zap.Error(err),
		)
		return ResearchSectionResult{Section: section, ToolCalls: outcome.ToolCallCount, Degraded: true}, nil
	default:
		section.Status = research.SectionPending
		metrics.SectionResearchOutcomes.WithLabelValues("failed").Inc()
		a.logger.Warn("researcher produced nothing, section left pending",
			zap.String("run_id", in.RunID),
			zap.String("section", in.Section.Title),
			zap.Error(err),
		)
		return ResearchSectionResult{Section: section, ToolCalls: outcome.ToolCallCount, Degraded: true}, nil
	}

	return ResearchSectionResult{Section: section, ToolCalls: outcome.ToolCallCount}, nil
}

func (a *Activities) researcherPrompt(in ResearchSectionInput) string {
	prompt := fmt.Sprintf("Research brief: %s\nSection: %s\nGuidance: %s\n",
		in.ResearchBrief, in.Section.Title, in.Section.Description)
	if in.Section.Content != "" {
		prompt += fmt.Sprintf(
			"Existing draft from a prior round (extend and correct it, do not discard):\n%s\n",
			in.Section.Content,
		)
	}
	return prompt
}

func (a *Activities) extractSection(ctx context.Context, in ResearchSectionInput, outcome toolloop.Outcome) (sectionExtraction, error) {
	if outcome.Transcript == "" && outcome.FinalMessage == "" {
		return sectionExtraction{}, errors.New("empty research transcript")
	}
	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: fmt.Sprintf(
			"Write the section %q from this research transcript.\nGuidance: %s\nTranscript:\n%s\nFinal notes: %s",
			in.Section.Title, in.Section.Description, outcome.Transcript, outcome.FinalMessage,
		),
		Schema: "section_extraction",
	})
	metrics.RecordCompletion("section_extraction", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return sectionExtraction{}, err
	}
	var out sectionExtraction
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return sectionExtraction{}, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
