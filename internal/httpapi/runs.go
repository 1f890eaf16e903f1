package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/config"
	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/workflows"
)

// RunsHandler exposes the run lifecycle: start, resume with a clarification
// answer, inspect status, and fetch the final report.
type RunsHandler struct {
	temporal client.Client
	cfg      *config.Config
	store    *db.Store
	logger   *zap.Logger
}

func NewRunsHandler(temporal client.Client, cfg *config.Config, store *db.Store, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{temporal: temporal, cfg: cfg, store: store, logger: logger}
}

// RegisterRoutes registers run routes on the provided mux.
func (h *RunsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/runs", h.handleStart)
	mux.HandleFunc("POST /api/v1/runs/{id}/clarification", h.handleClarification)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.handleStatus)
	mux.HandleFunc("GET /api/v1/runs/{id}/report", h.handleReport)
}

type startRunRequest struct {
	Query  string               `json:"query"`
	Config *workflows.RunConfig `json:"config,omitempty"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

func (h *RunsHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	runCfg := h.defaultRunConfig()
	if req.Config != nil {
		runCfg = *req.Config
	}
	if err := runCfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := "research-" + uuid.NewString()
	input := workflows.RunInput{RunID: runID, Query: req.Query, Config: runCfg}

	_, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        runID,
		TaskQueue: h.cfg.Temporal.TaskQueue,
	}, workflows.DeepResearchWorkflow, input)
	if err != nil {
		h.logger.Error("failed to start research run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	metrics.RunsStarted.Inc()
	h.logger.Info("research run started",
		zap.String("run_id", runID),
		zap.Int("max_review_iterations", runCfg.MaxReviewIterations),
	)
	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID})
}

type clarificationRequest struct {
	Answer string `json:"answer"`
}

func (h *RunsHandler) handleClarification(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	var req clarificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	err := h.temporal.SignalWorkflow(r.Context(), runID, "", workflows.SignalClarificationAnswer, req.Answer)
	if err != nil {
		h.logger.Warn("clarification signal failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		writeError(w, http.StatusNotFound, "run not found or not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type runStatusResponse struct {
	RunID            string                            `json:"run_id"`
	Phase            string                            `json:"phase,omitempty"`
	Status           string                            `json:"status"`
	PendingQuestion  string                            `json:"pending_question,omitempty"`
	ReviewIterations int                               `json:"review_iterations"`
	Sections         []workflows.SectionStatusSnapshot `json:"sections,omitempty"`
}

func (h *RunsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	resp, err := h.temporal.QueryWorkflow(r.Context(), runID, "", workflows.QueryRunStatus)
	if err == nil {
		var snap workflows.StatusSnapshot
		if err := resp.Get(&snap); err == nil {
			status := "running"
			if snap.PendingQuestion != "" {
				status = "awaiting_clarification"
			}
			writeJSON(w, http.StatusOK, runStatusResponse{
				RunID:            runID,
				Phase:            snap.Phase,
				Status:           status,
				PendingQuestion:  snap.PendingQuestion,
				ReviewIterations: snap.ReviewIterations,
				Sections:         snap.Sections,
			})
			return
		}
	}

	// a closed workflow no longer answers queries; fall back to the mirror
	if rec, dbErr := h.lookupRun(r.Context(), runID); dbErr == nil {
		writeJSON(w, http.StatusOK, runStatusResponse{
			RunID:            runID,
			Status:           rec.Status,
			PendingQuestion:  rec.PendingQuestion,
			ReviewIterations: rec.ReviewIterations,
		})
		return
	}
	writeError(w, http.StatusNotFound, "run not found")
}

func (h *RunsHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	ctx := r.Context()
	if r.URL.Query().Get("wait") != "true" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}

	var result workflows.RunResult
	if err := h.temporal.GetWorkflow(ctx, runID, "").Get(ctx, &result); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			writeError(w, http.StatusAccepted, "run still in progress")
			return
		}
		h.logger.Warn("report fetch failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusNotFound, "run not found or failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RunsHandler) defaultRunConfig() workflows.RunConfig {
	r := h.cfg.Research
	return workflows.RunConfig{
		MaxReviewIterations:   r.MaxReviewIterations,
		MaxToolCalls:          r.MaxToolCalls,
		MaxDiscoverIterations: r.MaxDiscoverIterations,
		AllowClarification:    r.AllowClarification,
		CompressionMaxTokens:  r.CompressionMaxTokens,
	}
}

func (h *RunsHandler) lookupRun(ctx context.Context, runID string) (*db.RunRecord, error) {
	if h.store == nil {
		return nil, errors.New("no run store configured")
	}
	return h.store.GetRun(ctx, runID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
