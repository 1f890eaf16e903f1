package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/streaming"
)

// collectSSE hits the SSE endpoint with a context that expires shortly after
// the published events are flushed, then returns the raw body.
func collectSSE(t *testing.T, h http.Handler, target string, header http.Header) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestSSEReplaysFromLastEventID(t *testing.T) {
	mgr := streaming.NewManager(16)
	mgr.Publish("run-1", streaming.Event{Type: streaming.EventPhaseEntered, Phase: "analysis"})
	mgr.Publish("run-1", streaming.Event{Type: streaming.EventSectionStatusChanged, Section: "Weaviate"})
	mgr.Publish("run-1", streaming.Event{Type: streaming.EventReportReady})

	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zap.NewNop()).RegisterRoutes(mux)

	hdr := http.Header{}
	hdr.Set("Last-Event-ID", "1")
	body := collectSSE(t, mux, "/api/v1/runs/run-1/events", hdr)

	assert.NotContains(t, body, "PHASE_ENTERED")
	assert.Contains(t, body, "SECTION_STATUS_CHANGED")
	assert.Contains(t, body, "REPORT_READY")
	assert.Contains(t, body, "id: 2")
	assert.Contains(t, body, "id: 3")
}

func TestSSETypeFilter(t *testing.T) {
	mgr := streaming.NewManager(16)
	mgr.Publish("run-2", streaming.Event{Type: streaming.EventToolCallStarted, Tool: "web_search"})
	mgr.Publish("run-2", streaming.Event{Type: streaming.EventToolCallEnded, Tool: "web_search"})
	mgr.Publish("run-2", streaming.Event{Type: streaming.EventReportReady})

	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zap.NewNop()).RegisterRoutes(mux)

	body := collectSSE(t, mux,
		"/api/v1/runs/run-2/events?types=REPORT_READY&last_event_id=0", nil)

	assert.NotContains(t, body, "TOOL_CALL_STARTED")
	assert.Contains(t, body, "REPORT_READY")
}

func TestSSELiveEventsDelivered(t *testing.T) {
	mgr := streaming.NewManager(16)

	mux := http.NewServeMux()
	NewStreamingHandler(mgr, zap.NewNop()).RegisterRoutes(mux)

	go func() {
		time.Sleep(50 * time.Millisecond)
		mgr.Publish("run-3", streaming.Event{Type: streaming.EventClarificationRequest, Message: "which decade?"})
	}()

	body := collectSSE(t, mux, "/api/v1/runs/run-3/events", nil)
	assert.Contains(t, body, "CLARIFICATION_REQUESTED")
	assert.Contains(t, body, "which decade?")
}

func TestParseLastEventIDPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/x/events?last_event_id=7", nil)
	req.Header.Set("Last-Event-ID", "42")
	require.EqualValues(t, 42, parseLastEventID(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/x/events?last_event_id=7", nil)
	require.EqualValues(t, 7, parseLastEventID(req))
}

func TestTypeFilterEmptyAllowsAll(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/x/events", nil)
	f := parseTypeFilter(req)
	assert.True(t, f.allows(streaming.EventErrorOccurred))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs/x/events?types=A,%20B", nil)
	f = parseTypeFilter(req)
	assert.True(t, f.allows("A"))
	assert.True(t, f.allows("B"))
	assert.False(t, f.allows("C"))
}
