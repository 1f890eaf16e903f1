package research

import "time"

// SectionStatus is the lifecycle state of a research section.
type SectionStatus string

const (
	SectionPending     SectionStatus = "pending"
	SectionResearching SectionStatus = "researching"
	SectionCompleted   SectionStatus = "completed"
)

// QueryType classifies the research question and drives routing after analysis.
type QueryType string

const (
	QueryTypeList       QueryType = "list"
	QueryTypeComparison QueryType = "comparison"
	QueryTypeDeepDive   QueryType = "deep_dive"
	QueryTypeGeneral    QueryType = "general"
)

// ValidQueryType reports whether s is a member of the QueryType enum.
func ValidQueryType(s string) bool {
	switch QueryType(s) {
	case QueryTypeList, QueryTypeComparison, QueryTypeDeepDive, QueryTypeGeneral:
		return true
	}
	return false
}

// OutputFormat is the desired shape of the final report.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatList  OutputFormat = "list"
	FormatProse OutputFormat = "prose"
)

// ValidOutputFormat reports whether s is a member of the OutputFormat enum.
func ValidOutputFormat(s string) bool {
	switch OutputFormat(s) {
	case FormatTable, FormatList, FormatProse:
		return true
	}
	return false
}

// Priority orders discovered entities for section planning.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Section is the unit of parallel research and of report composition.
// Title is the stable identity key used by the merge reducer.
type Section struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      SectionStatus `json:"status"`
	Content     string        `json:"content,omitempty"`
	Sources     []string      `json:"sources,omitempty"`
	KeyFindings []string      `json:"key_findings,omitempty"`
}

// Entity is a candidate discovered during the pre-planning enumeration phase.
type Entity struct {
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Brief    string   `json:"brief,omitempty"`
	Source   string   `json:"source,omitempty"`
	URLs     []string `json:"urls,omitempty"`
	Priority Priority `json:"priority,omitempty"`
}

// State is the single source of truth for one research run. It is threaded
// through the workflow; every field except Sections is written by exactly one
// phase and read-only elsewhere. Sections is mutated only through MergeSections
// applied by the workflow goroutine.
type State struct {
	StartedAt       time.Time `json:"started_at"`

	OriginalQuery   string `json:"original_query"`
	ClarifiedQuery  string `json:"clarified_query,omitempty"`
	PendingQuestion string `json:"pending_question,omitempty"`

	QueryType    QueryType    `json:"query_type,omitempty"`
	OutputFormat OutputFormat `json:"output_format,omitempty"`

	Entities         []Entity `json:"entities,omitempty"`
	DiscoverySummary string   `json:"discovery_summary,omitempty"`

	ResearchBrief string    `json:"research_brief,omitempty"`
	Sections      []Section `json:"sections,omitempty"`

	ReviewIterations    int `json:"review_iterations"`
	MaxReviewIterations int `json:"max_review_iterations"`

	FinalReport string `json:"final_report,omitempty"`
}

// PendingSections returns the titles of sections awaiting research, in order.
func PendingSections(sections []Section) []Section {
	var out []Section
	for _, s := range sections {
		if s.Status == SectionPending {
			out = append(out, s)
		}
	}
	return out
}

// SectionByTitle returns a pointer into sections for the given title, or nil.
func SectionByTitle(sections []Section, title string) *Section {
	for i := range sections {
		if sections[i].Title == title {
			return &sections[i]
		}
	}
	return nil
}

// CompletedCount reports how many sections have finished research.
func CompletedCount(sections []Section) int {
	n := 0
	for _, s := range sections {
		if s.Status == SectionCompleted {
			n++
		}
	}
	return n
}
