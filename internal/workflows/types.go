package workflows

import (
	"fmt"

	"github.com/loomworks/deepresearch/internal/research"
)

// TaskQueue is the Temporal task queue research workers poll.
const TaskQueue = "deep-research"

// RunConfig bounds one research run. All caps are explicit; nothing is read
// from ambient state inside the workflow.
type RunConfig struct {
	MaxReviewIterations   int  `json:"max_review_iterations"`
	MaxToolCalls          int  `json:"max_tool_calls"`
	MaxDiscoverIterations int  `json:"max_discover_iterations"`
	AllowClarification    bool `json:"allow_clarification"`
	CompressionMaxTokens  int  `json:"compression_max_tokens,omitempty"`
}

// Validate enforces cap ranges at workflow entry.
func (c RunConfig) Validate() error {
	if c.MaxReviewIterations < 1 || c.MaxReviewIterations > 10 {
		return fmt.Errorf("max_review_iterations must be in [1,10], got %d", c.MaxReviewIterations)
	}
	if c.MaxToolCalls < 1 || c.MaxToolCalls > 50 {
		return fmt.Errorf("max_tool_calls must be in [1,50], got %d", c.MaxToolCalls)
	}
	if c.MaxDiscoverIterations < 1 || c.MaxDiscoverIterations > 20 {
		return fmt.Errorf("max_discover_iterations must be in [1,20], got %d", c.MaxDiscoverIterations)
	}
	return nil
}

// RunInput starts one research run.
type RunInput struct {
	RunID  string    `json:"run_id"`
	Query  string    `json:"query"`
	Config RunConfig `json:"config"`
}

func (in RunInput) Validate() error {
	if in.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if in.Query == "" {
		return fmt.Errorf("query is required")
	}
	return in.Config.Validate()
}

// RunResult is the terminal output of a run.
type RunResult struct {
	RunID            string   `json:"run_id"`
	Report           string   `json:"report"`
	Sources          []string `json:"sources,omitempty"`
	SectionTitles    []string `json:"section_titles,omitempty"`
	ReviewIterations int      `json:"review_iterations"`
	ReportFallback   bool     `json:"report_fallback,omitempty"`
}

// StatusSnapshot is the answer to the run status query.
type StatusSnapshot struct {
	Phase            string                  `json:"phase"`
	PendingQuestion  string                  `json:"pending_question,omitempty"`
	QueryType        research.QueryType      `json:"query_type,omitempty"`
	ReviewIterations int                     `json:"review_iterations"`
	Sections         []SectionStatusSnapshot `json:"sections,omitempty"`
}

// SectionStatusSnapshot is one section's externally visible state.
type SectionStatusSnapshot struct {
	Title  string                 `json:"title"`
	Status research.SectionStatus `json:"status"`
}

// Fatal error types surfaced to callers.
const (
	ErrTypeClarificationFailed = "ClarificationFailed"
	ErrTypeAnalysisFailed      = "AnalysisFailed"
	ErrTypePlanningFailed      = "PlanningFailed"
)
