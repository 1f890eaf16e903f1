package workflows

// Signal and query names, versioned so handler changes stay compatible with
// in-flight runs.
const (
	// SignalClarificationAnswer resumes a run suspended on a clarification
	// question. Payload: the user's answer string.
	SignalClarificationAnswer = "clarification_answer_v1"

	// QueryPendingClarification returns the open question, or empty when the
	// run is not suspended.
	QueryPendingClarification = "pending_clarification_v1"

	// QueryRunStatus returns a StatusSnapshot of the run.
	QueryRunStatus = "run_status_v1"
)
