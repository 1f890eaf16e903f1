package db

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// JSONB marshals a map into a Postgres jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("jsonb scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, j)
}

// RunRecord is one row of research_runs, the durable mirror of a run's
// externally visible state.
type RunRecord struct {
	RunID            string     `db:"run_id"`
	Query            string     `db:"query"`
	Status           string     `db:"status"` // running, awaiting_clarification, completed, failed
	QueryType        string     `db:"query_type"`
	PendingQuestion  string     `db:"pending_question"`
	ReviewIterations int        `db:"review_iterations"`
	SectionsTotal    int        `db:"sections_total"`
	SectionsDone     int        `db:"sections_done"`
	FinalReport      string     `db:"final_report"`
	StartedAt        time.Time  `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// EventRecord is one row of run_events, the durable copy of the stream.
type EventRecord struct {
	ID        uuid.UUID `db:"id"`
	RunID     string    `db:"run_id"`
	Type      string    `db:"type"`
	Phase     string    `db:"phase"`
	Section   string    `db:"section"`
	Message   string    `db:"message"`
	Payload   JSONB     `db:"payload"`
	Seq       uint64    `db:"seq"`
	Timestamp time.Time `db:"timestamp"`
}

// ReviewRoundRecord is one row of review_rounds, the grading history of a run.
type ReviewRoundRecord struct {
	RunID      string         `db:"run_id"`
	Round      int            `db:"round"`
	Score      int            `db:"score"`
	Sufficient bool           `db:"sufficient"`
	Gaps       pq.StringArray `db:"gaps"`
	CreatedAt  time.Time      `db:"created_at"`
}

// Store persists run state and events. All writes are best-effort from the
// caller's perspective; a down database must never fail a run.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)
	return &Store{db: conn, logger: logger}, nil
}

// NewStore wraps an existing connection, used by tests with sqlmock.
func NewStore(conn *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: conn, logger: logger}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection for health probes.
func (s *Store) DB() *sqlx.DB { return s.db }

// UpsertRun inserts or refreshes the run row keyed by run_id.
func (s *Store) UpsertRun(ctx context.Context, r *RunRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.UpdatedAt = time.Now()
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO research_runs (
            run_id, query, status, query_type, pending_question,
            review_iterations, sections_total, sections_done, final_report,
            started_at, completed_at, updated_at
        ) VALUES (
            :run_id, :query, :status, :query_type, :pending_question,
            :review_iterations, :sections_total, :sections_done, :final_report,
            :started_at, :completed_at, :updated_at
        )
        ON CONFLICT (run_id) DO UPDATE SET
            status = EXCLUDED.status,
            query_type = EXCLUDED.query_type,
            pending_question = EXCLUDED.pending_question,
            review_iterations = EXCLUDED.review_iterations,
            sections_total = EXCLUDED.sections_total,
            sections_done = EXCLUDED.sections_done,
            final_report = EXCLUDED.final_report,
            completed_at = EXCLUDED.completed_at,
            updated_at = EXCLUDED.updated_at
    `, r)
	return err
}

// GetRun fetches one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var r RunRecord
	err := s.db.GetContext(ctx, &r, `SELECT * FROM research_runs WHERE run_id = $1`, runID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveEvent appends one event row. Duplicate (run_id, seq) pairs are dropped
// so replayed activity executions stay idempotent.
func (s *Store) SaveEvent(ctx context.Context, e *EventRecord) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO run_events (id, run_id, type, phase, section, message, payload, seq, timestamp)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (run_id, seq) DO NOTHING
    `, e.ID, e.RunID, e.Type, e.Phase, e.Section, e.Message, e.Payload, e.Seq, e.Timestamp)
	return err
}

// SaveReviewRound appends one review grading row. Duplicate (run_id, round)
// pairs are dropped so retried review activities stay idempotent.
func (s *Store) SaveReviewRound(ctx context.Context, r *ReviewRoundRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO review_rounds (run_id, round, score, sufficient, gaps, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (run_id, round) DO NOTHING
    `, r.RunID, r.Round, r.Score, r.Sufficient, r.Gaps, r.CreatedAt)
	return err
}

// ListEvents returns a run's persisted events in sequence order.
func (s *Store) ListEvents(ctx context.Context, runID string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []EventRecord
	err := s.db.SelectContext(ctx, &out, `
        SELECT * FROM run_events WHERE run_id = $1 ORDER BY seq ASC LIMIT $2
    `, runID, limit)
	return out, err
}
