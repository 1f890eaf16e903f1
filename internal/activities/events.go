package activities

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/metrics"
	"github.com/loomworks/deepresearch/internal/streaming"
)

// EmitRunEventInput carries one workflow-originated event.
type EmitRunEventInput struct {
	RunID     string                 `json:"run_id"`
	Type      string                 `json:"type"`
	Phase     string                 `json:"phase,omitempty"`
	Section   string                 `json:"section,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EmitRunEvent publishes a workflow event to subscribers and, when a store
// is configured, persists it. Persistence failures are logged, not returned;
// the stream is best-effort by contract.
func (a *Activities) EmitRunEvent(ctx context.Context, in EmitRunEventInput) error {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	if in.Type == streaming.EventPhaseEntered {
		a.markPhase(in.RunID, in.Phase, in.Timestamp)
	}
	evt := streaming.Event{
		RunID:     in.RunID,
		Type:      in.Type,
		Phase:     in.Phase,
		Section:   in.Section,
		Message:   in.Message,
		Payload:   in.Payload,
		Timestamp: in.Timestamp,
	}
	seq := streaming.Get().Publish(in.RunID, evt)

	if a.store != nil {
		rec := &db.EventRecord{
			RunID:     in.RunID,
			Type:      in.Type,
			Phase:     in.Phase,
			Section:   in.Section,
			Message:   in.Message,
			Payload:   db.JSONB(in.Payload),
			Seq:       seq,
			Timestamp: in.Timestamp,
		}
		if err := a.store.SaveEvent(ctx, rec); err != nil {
			a.logger.Warn("event persistence failed",
				zap.String("run_id", in.RunID),
				zap.String("type", in.Type),
				zap.Error(err),
			)
		}
	}
	return nil
}

type phaseMark struct {
	phase string
	at    time.Time
}

// markPhase measures phase durations from consecutive phase-entered events.
func (a *Activities) markPhase(runID, phase string, at time.Time) {
	a.phaseMu.Lock()
	defer a.phaseMu.Unlock()
	if prev, ok := a.phaseStart[runID]; ok && !prev.at.After(at) {
		metrics.PhaseDuration.WithLabelValues(prev.phase).Observe(at.Sub(prev.at).Seconds())
	}
	if phase == "completed" {
		delete(a.phaseStart, runID)
		return
	}
	a.phaseStart[runID] = phaseMark{phase: phase, at: at}
}
