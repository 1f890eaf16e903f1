package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	// Phase metrics
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_phase_duration_seconds",
			Help:    "Duration of each research phase in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	ClarificationsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepresearch_clarifications_requested_total",
			Help: "Total number of clarification questions surfaced to users",
		},
	)

	ReviewIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_review_iterations",
			Help:    "Review iterations consumed per run",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)

	// Section metrics
	SectionsPlanned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepresearch_sections_planned",
			Help:    "Number of sections produced at planning time",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 10},
		},
	)

	SectionResearchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_section_outcomes_total",
			Help: "Per-section research outcomes",
		},
		[]string{"outcome"},
	)

	// Tool metrics
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tool_calls_total",
			Help: "Tool calls executed, by tool and result",
		},
		[]string{"tool", "result"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deepresearch_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// LLM metrics
	CompletionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_completion_calls_total",
			Help: "Structured completion calls, by schema and result",
		},
		[]string{"schema", "result"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepresearch_tokens_used_total",
			Help: "Tokens consumed, by direction",
		},
		[]string{"direction"},
	)
)

// RecordToolCall records one executed tool call.
func RecordToolCall(tool string, isError bool, d time.Duration) {
	result := "ok"
	if isError {
		result = "error"
	}
	ToolCalls.WithLabelValues(tool, result).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordCompletion records one structured completion call with token usage.
func RecordCompletion(schema string, err error, inputTokens, outputTokens int) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CompletionCalls.WithLabelValues(schema, result).Inc()
	if inputTokens > 0 {
		TokensUsed.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		TokensUsed.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// RecordRunCompleted records terminal run state and duration.
func RecordRunCompleted(status string, d time.Duration, reviewIterations int) {
	RunsCompleted.WithLabelValues(status).Inc()
	RunDuration.Observe(d.Seconds())
	ReviewIterations.Observe(float64(reviewIterations))
}
