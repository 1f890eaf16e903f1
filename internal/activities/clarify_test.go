package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/deepresearch/internal/llm"
)

func TestClarifyRequestsQuestionAndMirrorsToRedis(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"clarification": `{"need_clarification": true, "question": "Which time period?"}`,
	}}
	deps := newTestActivities(t, completer, &stubCaller{})

	out, err := deps.acts.Clarify(context.Background(), ClarifyInput{
		RunID:         "run-1",
		OriginalQuery: "best databases",
	})
	require.NoError(t, err)
	assert.True(t, out.NeedClarification)
	assert.Equal(t, "Which time period?", out.Question)

	mirrored, err := deps.redis.Get("clarify:run-1")
	require.NoError(t, err)
	assert.Equal(t, "Which time period?", mirrored)
}

func TestClarifyResolutionClearsMirror(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"clarification": `{"need_clarification": false, "clarified_query": "best databases of the last 6 months"}`,
	}}
	deps := newTestActivities(t, completer, &stubCaller{})
	deps.redis.Set("clarify:run-1", "Which time period?")

	out, err := deps.acts.Clarify(context.Background(), ClarifyInput{
		RunID:         "run-1",
		OriginalQuery: "best databases",
		Exchange:      []ClarifyExchange{{Question: "Which time period?", Answer: "last 6 months"}},
	})
	require.NoError(t, err)
	assert.False(t, out.NeedClarification)
	assert.Equal(t, "best databases of the last 6 months", out.ClarifiedQuery)
	assert.False(t, deps.redis.Exists("clarify:run-1"))
}

func TestClarifyTreatAnswerAsFinalForcesResolution(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"clarification": `{"need_clarification": true, "question": "One more thing?"}`,
	}}
	deps := newTestActivities(t, completer, &stubCaller{})

	out, err := deps.acts.Clarify(context.Background(), ClarifyInput{
		RunID:              "run-1",
		OriginalQuery:      "best databases",
		TreatAnswerAsFinal: true,
	})
	require.NoError(t, err)
	assert.False(t, out.NeedClarification)
	assert.Equal(t, "best databases", out.ClarifiedQuery)
}

func TestClarifyPropagatesCompletionFailure(t *testing.T) {
	completer := &stubCompleter{errs: map[string]error{
		"clarification": errors.New("service unavailable"),
	}}
	deps := newTestActivities(t, completer, &stubCaller{})

	_, err := deps.acts.Clarify(context.Background(), ClarifyInput{RunID: "run-1", OriginalQuery: "q"})
	require.Error(t, err)
}

func TestClarifyRejectsMalformedOutput(t *testing.T) {
	completer := &stubCompleter{outputs: map[string]string{
		"clarification": `{"need_clarification": true}`,
	}}
	deps := newTestActivities(t, completer, &stubCaller{})

	_, err := deps.acts.Clarify(context.Background(), ClarifyInput{RunID: "run-1", OriginalQuery: "q"})
	require.ErrorIs(t, err, llm.ErrInvalidOutput)
}
