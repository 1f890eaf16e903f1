package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/research"
	"github.com/loomworks/deepresearch/internal/streaming"
	"github.com/loomworks/deepresearch/internal/tracing"
)

// WriteReport synthesizes the terminal report from all sections. Synthesis
// failure falls back to assembling the report directly from section content
// so a run that gathered evidence always ends with a report.
func (a *Activities) WriteReport(ctx context.Context, in ReportInput) (ReportResult, error) {
	ctx, span := tracing.StartPhaseSpan(ctx, "report", in.RunID)
	defer span.End()
	a.logger.Info("report phase",
		zap.String("run_id", in.RunID),
		zap.Int("sections", len(in.Sections)),
	)

	sources := research.ConsolidateSources(in.Sections)
	out := ReportResult{Sources: sources}

	synthesized, err := a.synthesizeReport(ctx, in, sources)
	if err != nil {
		a.logger.Warn("report synthesis failed, assembling fallback report",
			zap.String("run_id", in.RunID),
			zap.Error(err),
		)
		out.Report = fallbackReport(in, sources)
		out.Fallback = true
	} else {
		out.Report = synthesized
	}

	a.publish(in.RunID, streaming.Event{
		Type:  streaming.EventReportReady,
		Phase: "report",
		Payload: map[string]interface{}{
			"sections": len(in.Sections),
			"sources":  len(sources),
			"fallback": out.Fallback,
		},
	})
	return out, nil
}

func (a *Activities) synthesizeReport(ctx context.Context, in ReportInput, sources []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the final research report.\nQuery: %s\nOutput format: %s\n", in.Query, in.OutputFormat)
	b.WriteString("Structure: a summary, a body with one header per section (keep the exact section titles), a conclusion, and a Sources list.\nSections:\n")
	for _, s := range in.Sections {
		fmt.Fprintf(&b, "## %s\n%s\n", s.Title, s.Content)
		if len(s.KeyFindings) > 0 {
			fmt.Fprintf(&b, "Key findings: %s\n", strings.Join(s.KeyFindings, "; "))
		}
	}
	fmt.Fprintf(&b, "Consolidated sources:\n%s\n", strings.Join(sources, "\n"))

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		Prompt: b.String(),
		Schema: "final_report",
	})
	metrics.RecordCompletion("final_report", err, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		return "", err
	}
	var out reportSynthesis
	if err := llm.DecodeValidated(resp.Output, &out); err != nil {
		return "", err
	}
	return out.Report, nil
}

// fallbackReport builds a usable report from raw section content when
// synthesis is unavailable.
func fallbackReport(in ReportInput, sources []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.Query)
	for _, s := range in.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Title, s.Content)
	}
	if len(sources) > 0 {
		b.WriteString("## Sources\n\n")
		for _, src := range sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	return b.String()
}
