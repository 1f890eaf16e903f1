package activities

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/config"
	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/streaming"
	"github.com/loomworks/deepresearch/internal/toolloop"
	"github.com/loomworks/deepresearch/internal/tools"
)

// Activities bundles the research activities and their dependencies. One
// instance is registered on the worker.
type Activities struct {
	cfg       *config.Config
	completer llm.Completer
	caller    llm.ToolCaller
	registry  *tools.Registry
	executor  *tools.Executor
	redis     *redis.Client
	store     *db.Store
	logger    *zap.Logger

	phaseMu    sync.Mutex
	phaseStart map[string]phaseMark
}

// Deps carries construction dependencies. Redis and Store may be nil; the
// activities degrade to in-memory behavior without them.
type Deps struct {
	Config    *config.Config
	Completer llm.Completer
	Caller    llm.ToolCaller
	Registry  *tools.Registry
	Executor  *tools.Executor
	Redis     *redis.Client
	Store     *db.Store
	Logger    *zap.Logger
}

func New(d Deps) *Activities {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{
		cfg:        d.Config,
		completer:  d.Completer,
		caller:     d.Caller,
		registry:   d.Registry,
		executor:   d.Executor,
		redis:      d.Redis,
		store:      d.Store,
		logger:     logger,
		phaseStart: make(map[string]phaseMark),
	}
}

// newRunner builds a tool loop runner whose sink streams tool events for the
// given run.
func (a *Activities) newRunner(runID string) *toolloop.Runner {
	return toolloop.NewRunner(a.caller, a.executor, a.registry, &streamSink{runID: runID}, a.logger)
}

// streamSink forwards tool lifecycle events to the in-process stream.
type streamSink struct {
	runID string
}

func (s *streamSink) ToolCallStarted(call tools.Call) {
	streaming.Get().Publish(s.runID, streaming.Event{
		RunID:     s.runID,
		Type:      streaming.EventToolCallStarted,
		Tool:      call.Name,
		Timestamp: time.Now(),
	})
}

func (s *streamSink) ToolCallEnded(res tools.Result) {
	evt := streaming.Event{
		RunID:     s.runID,
		Type:      streaming.EventToolCallEnded,
		Tool:      res.Name,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"duration_ms": res.Duration.Milliseconds(),
			"is_error":    res.IsError,
		},
	}
	if res.IsError {
		evt.Message = res.Output
	}
	streaming.Get().Publish(s.runID, evt)
}

// publish emits a run event directly from an activity.
func (a *Activities) publish(runID string, evt streaming.Event) {
	evt.RunID = runID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	streaming.Get().Publish(runID, evt)
}

// persistBestEffort writes a snapshot without ever failing the caller.
func (a *Activities) persistBestEffort(ctx context.Context, snap RunStateSnapshot) {
	if a.store == nil {
		return
	}
	if err := a.upsertSnapshot(ctx, snap); err != nil {
		a.logger.Warn("run state persistence failed",
			zap.String("run_id", snap.RunID),
			zap.Error(err),
		)
	}
}
