package health

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// HTTPHandler serves liveness and readiness probes from a Manager.
type HTTPHandler struct {
	mgr    *Manager
	logger *zap.Logger
}

func NewHTTPHandler(mgr *Manager, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{mgr: mgr, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLive)
	mux.HandleFunc("GET /readyz", h.handleReady)
}

// handleLive answers as long as the process is serving requests.
func (h *HTTPHandler) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady runs every probe and reports per-component detail. Critical
// failures return 503 so orchestrating infrastructure stops routing work.
func (h *HTTPHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	report := h.mgr.Run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !report.Ready {
		h.logger.Warn("readiness check failed", zap.String("status", report.Status.String()))
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Status     string                 `json:"status"`
		Ready      bool                   `json:"ready"`
		Components map[string]CheckResult `json:"components"`
	}{
		Status:     report.Status.String(),
		Ready:      report.Ready,
		Components: report.Components,
	})
}
