package workflows

import (
	"go.temporal.io/sdk/log"

	"github.com/loomworks/deepresearch/internal/activities"
	"github.com/loomworks/deepresearch/internal/research"
)

// decideSufficiency applies the engine's sufficiency rule over the model's
// review. At the iteration cap the run is sufficient no matter what the
// model said; below it, sufficiency requires a passing score and zero gaps.
// The model's own is_sufficient flag is advisory only.
func decideSufficiency(reviewIterations, maxReviewIterations int, rev activities.ReviewResult) bool {
	if reviewIterations >= maxReviewIterations {
		return true
	}
	return rev.OverallScore >= 7 && len(rev.Gaps) == 0
}

// applyRetries resets each named section to pending, keeping its content so
// the next researcher round extends rather than restarts. Titles that match
// no section are logged and skipped. Returns the number of sections reset.
func applyRetries(state *research.State, titles []string, logger log.Logger) int {
	applied := 0
	for _, title := range titles {
		section := research.SectionByTitle(state.Sections, title)
		if section == nil {
			logger.Warn("review named an unknown section, ignoring",
				"title", title,
			)
			continue
		}
		if section.Status == research.SectionPending {
			continue
		}
		section.Status = research.SectionPending
		applied++
	}
	return applied
}
