package activities

import (
	"context"
	"time"

	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/metrics"
)

// PersistRunState mirrors run state into Postgres. The workflow calls this
// at phase boundaries; a down database never fails the run.
func (a *Activities) PersistRunState(ctx context.Context, snap RunStateSnapshot) error {
	if snap.Status == "completed" || snap.Status == "failed" {
		var elapsed time.Duration
		if !snap.StartedAt.IsZero() {
			elapsed = time.Since(snap.StartedAt)
		}
		metrics.RecordRunCompleted(snap.Status, elapsed, snap.ReviewIterations)
	}
	a.persistBestEffort(ctx, snap)
	return nil
}

func (a *Activities) upsertSnapshot(ctx context.Context, snap RunStateSnapshot) error {
	rec := &db.RunRecord{
		RunID:            snap.RunID,
		Query:            snap.Query,
		Status:           snap.Status,
		StartedAt:        snap.StartedAt,
		QueryType:        snap.QueryType,
		PendingQuestion:  snap.PendingQuestion,
		ReviewIterations: snap.ReviewIterations,
		SectionsTotal:    snap.SectionsTotal,
		SectionsDone:     snap.SectionsDone,
		FinalReport:      snap.FinalReport,
	}
	if snap.Status == "completed" || snap.Status == "failed" {
		now := time.Now()
		rec.CompletedAt = &now
	}
	return a.store.UpsertRun(ctx, rec)
}
