package activities

import (
	"fmt"
	"time"

	"github.com/loomworks/deepresearch/internal/research"
)

// Activity names used by workflows when scheduling by string.
const (
	ActivityClarify         = "Clarify"
	ActivityAnalyze         = "Analyze"
	ActivityDiscover        = "Discover"
	ActivityPlanSections    = "PlanSections"
	ActivityResearchSection = "ResearchSection"
	ActivityReview          = "Review"
	ActivityWriteReport     = "WriteReport"
	ActivityEmitRunEvent    = "EmitRunEvent"
	ActivityPersistRunState = "PersistRunState"
)

// ClarifyExchange is one prior question/answer round.
type ClarifyExchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ClarifyInput asks the model whether the query needs human clarification.
type ClarifyInput struct {
	RunID         string            `json:"run_id"`
	OriginalQuery string            `json:"original_query"`
	Exchange      []ClarifyExchange `json:"exchange,omitempty"`
	// TreatAnswerAsFinal forces resolution once the round cap is hit.
	TreatAnswerAsFinal bool `json:"treat_answer_as_final,omitempty"`
}

// ClarifyResult is the structured clarification decision.
type ClarifyResult struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question,omitempty"`
	ClarifiedQuery    string `json:"clarified_query,omitempty"`
}

func (r *ClarifyResult) Validate() error {
	if r.NeedClarification && r.Question == "" {
		return fmt.Errorf("clarification requested without a question")
	}
	if !r.NeedClarification && r.ClarifiedQuery == "" {
		return fmt.Errorf("clarification resolved without a refined query")
	}
	return nil
}

// AnalyzeInput classifies the clarified query.
type AnalyzeInput struct {
	RunID string `json:"run_id"`
	Query string `json:"query"`
}

// AnalyzeResult routes the run: discovery for enumeration queries, straight
// to planning otherwise.
type AnalyzeResult struct {
	QueryType       research.QueryType    `json:"query_type"`
	OutputFormat    research.OutputFormat `json:"output_format"`
	NeedsDiscovery  bool                  `json:"needs_discovery"`
	DiscoveryTarget string                `json:"discovery_target,omitempty"`
	Reasoning       string                `json:"reasoning,omitempty"`
}

func (r *AnalyzeResult) Validate() error {
	if !research.ValidQueryType(string(r.QueryType)) {
		return fmt.Errorf("query_type %q is not a known value", r.QueryType)
	}
	if !research.ValidOutputFormat(string(r.OutputFormat)) {
		return fmt.Errorf("output_format %q is not a known value", r.OutputFormat)
	}
	return nil
}

// DiscoverInput runs entity enumeration for list-style queries.
type DiscoverInput struct {
	RunID                string `json:"run_id"`
	Query                string `json:"query"`
	DiscoveryTarget      string `json:"discovery_target,omitempty"`
	MaxIterations        int    `json:"max_iterations"`
	CompressionMaxTokens int    `json:"compression_max_tokens,omitempty"`
}

// DiscoverResult is the extracted entity set.
type DiscoverResult struct {
	Entities   []research.Entity `json:"entities"`
	Summary    string            `json:"summary,omitempty"`
	TotalFound int               `json:"total_found"`
	Categories []string          `json:"categories,omitempty"`
}

func (r *DiscoverResult) Validate() error {
	for i, e := range r.Entities {
		if e.Name == "" {
			return fmt.Errorf("entity %d has no name", i)
		}
	}
	return nil
}

// PlanInput produces the section outline, from entities when discovery ran.
type PlanInput struct {
	RunID            string                `json:"run_id"`
	Query            string                `json:"query"`
	QueryType        research.QueryType    `json:"query_type"`
	OutputFormat     research.OutputFormat `json:"output_format"`
	Entities         []research.Entity     `json:"entities,omitempty"`
	DiscoverySummary string                `json:"discovery_summary,omitempty"`
}

// SectionPlan is one planned section stub.
type SectionPlan struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PlanResult is the outline plus the brief shared by all researchers.
type PlanResult struct {
	ResearchBrief string        `json:"research_brief"`
	Sections      []SectionPlan `json:"sections"`
}

func (r *PlanResult) Validate() error {
	seen := make(map[string]bool, len(r.Sections))
	for i, s := range r.Sections {
		if s.Title == "" {
			return fmt.Errorf("section %d has no title", i)
		}
		if seen[s.Title] {
			return fmt.Errorf("duplicate section title %q", s.Title)
		}
		seen[s.Title] = true
	}
	return nil
}

// ResearchSectionInput is one researcher's assignment.
type ResearchSectionInput struct {
	RunID                string           `json:"run_id"`
	Section              research.Section `json:"section"`
	ResearchBrief        string           `json:"research_brief"`
	MaxToolCalls         int              `json:"max_tool_calls"`
	CompressionMaxTokens int              `json:"compression_max_tokens,omitempty"`
}

// ResearchSectionResult carries the updated section back for merging.
type ResearchSectionResult struct {
	Section   research.Section `json:"section"`
	ToolCalls int              `json:"tool_calls"`
	Degraded  bool             `json:"degraded"`
}

// sectionExtraction is the structured output of the post-loop extraction call.
type sectionExtraction struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Sources     []string `json:"sources,omitempty"`
	KeyFindings []string `json:"key_findings,omitempty"`
}

func (e *sectionExtraction) Validate() error {
	if e.Content == "" {
		return fmt.Errorf("extraction produced no content")
	}
	return nil
}

// ReviewInput asks for a sufficiency evaluation over the aggregated sections.
type ReviewInput struct {
	RunID               string             `json:"run_id"`
	Query               string             `json:"query"`
	ResearchBrief       string             `json:"research_brief"`
	Sections            []research.Section `json:"sections"`
	ReviewIterations    int                `json:"review_iterations"`
	MaxReviewIterations int                `json:"max_review_iterations"`
}

// SectionCoverage grades one section in a review.
type SectionCoverage struct {
	Title  string `json:"title"`
	Status string `json:"status"` // sufficient, partial, missing
	Notes  string `json:"notes,omitempty"`
}

// ReviewResult is the model's evaluation. The engine applies the final
// sufficiency decision rule; IsSufficient here is advisory.
type ReviewResult struct {
	IsSufficient    bool              `json:"is_sufficient"`
	OverallScore    int               `json:"overall_score"`
	SectionCoverage []SectionCoverage `json:"section_coverage,omitempty"`
	Gaps            []string          `json:"gaps,omitempty"`
	SectionsToRetry []string          `json:"sections_to_retry,omitempty"`
	Reasoning       string            `json:"reasoning,omitempty"`
}

func (r *ReviewResult) Validate() error {
	if r.OverallScore < 1 || r.OverallScore > 10 {
		return fmt.Errorf("overall_score %d out of range [1,10]", r.OverallScore)
	}
	for _, c := range r.SectionCoverage {
		switch c.Status {
		case "sufficient", "partial", "missing":
		default:
			return fmt.Errorf("section coverage status %q is not a known value", c.Status)
		}
	}
	return nil
}

// ReportInput synthesizes the terminal report.
type ReportInput struct {
	RunID        string                `json:"run_id"`
	Query        string                `json:"query"`
	OutputFormat research.OutputFormat `json:"output_format"`
	Sections     []research.Section    `json:"sections"`
}

// ReportResult is the final report plus its consolidated source list.
type ReportResult struct {
	Report  string   `json:"report"`
	Sources []string `json:"sources,omitempty"`
	// Fallback is set when synthesis failed and the report was assembled
	// directly from section content.
	Fallback bool `json:"fallback,omitempty"`
}

type reportSynthesis struct {
	Report string `json:"report"`
}

func (r *reportSynthesis) Validate() error {
	if r.Report == "" {
		return fmt.Errorf("synthesis produced an empty report")
	}
	return nil
}

// RunStateSnapshot mirrors externally visible run state into Postgres.
type RunStateSnapshot struct {
	RunID            string    `json:"run_id"`
	Query            string    `json:"query"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	QueryType        string `json:"query_type,omitempty"`
	PendingQuestion  string `json:"pending_question,omitempty"`
	ReviewIterations int    `json:"review_iterations"`
	SectionsTotal    int    `json:"sections_total"`
	SectionsDone     int    `json:"sections_done"`
	FinalReport      string `json:"final_report,omitempty"`
}
