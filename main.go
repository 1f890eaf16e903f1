package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/loomworks/deepresearch/internal/activities"
	"github.com/loomworks/deepresearch/internal/config"
	"github.com/loomworks/deepresearch/internal/db"
	"github.com/loomworks/deepresearch/internal/health"
	"github.com/loomworks/deepresearch/internal/httpapi"
	"github.com/loomworks/deepresearch/internal/llm"
	"github.com/loomworks/deepresearch/internal/streaming"
	temporallog "github.com/loomworks/deepresearch/internal/temporal"
	"github.com/loomworks/deepresearch/internal/tools"
	"github.com/loomworks/deepresearch/internal/tracing"
	"github.com/loomworks/deepresearch/internal/workflows"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting deep research orchestrator",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.Duration("estimated_worst_case_run", cfg.EstimatedWorstCase(5)),
	)

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracing(shutdownCtx)
	}()

	streaming.Configure(cfg.Streaming.RingCapacity)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, clarification mirror disabled", zap.Error(err))
			redisClient = nil
		}
	}

	var store *db.Store
	if cfg.Database.Enabled {
		store, err = db.Open(cfg.Database.DSN, logger)
		if err != nil {
			logger.Warn("Database unavailable, persistence disabled", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	// Tool registry: catalog entries are served by the gateway except the
	// local think scratchpad. The catalog hot-reloads on file change.
	registry := tools.NewRegistry()
	gateway := tools.NewGatewayClient(cfg.Tools.GatewayURL, cfg.Tools.CallTimeout, logger)
	bind := func(entry tools.CatalogEntry) tools.InvokeFunc {
		if entry.Name == "think" {
			return tools.ThinkInvoker()
		}
		return gateway.Invoker(entry.Name)
	}
	if err := registry.LoadCatalogWithBinder(cfg.Tools.CatalogPath, bind); err != nil {
		logger.Fatal("Failed to load tool catalog", zap.Error(err))
	}
	logger.Info("Tool catalog loaded",
		zap.String("path", cfg.Tools.CatalogPath),
		zap.Int("tools", len(registry.List())),
	)

	watcher, err := config.NewWatcher(logger)
	if err != nil {
		logger.Fatal("Failed to create config watcher", zap.Error(err))
	}
	if err := watcher.Watch(cfg.Tools.CatalogPath, func(path string) error {
		return registry.LoadCatalogWithBinder(path, bind)
	}); err != nil {
		logger.Warn("Tool catalog watch disabled", zap.Error(err))
	}
	watcher.Start(ctx)

	executor := tools.NewExecutor(registry,
		cfg.Tools.CallsPerSecond, cfg.Tools.Burst, cfg.Tools.CallTimeout, logger)

	llmClient := llm.NewClient(cfg.LLM.ServiceURL, cfg.LLM.Timeout, logger)

	acts := activities.New(activities.Deps{
		Config:    cfg,
		Completer: llmClient,
		Caller:    llmClient,
		Registry:  registry,
		Executor:  executor,
		Redis:     redisClient,
		Store:     store,
		Logger:    logger,
	})

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(workflows.DeepResearchWorkflow,
		workflow.RegisterOptions{Name: "DeepResearchWorkflow"})
	registerActivities(w, acts)

	hm := health.NewManager()
	hm.Register(&health.TemporalChecker{Client: temporalClient, Namespace: cfg.Temporal.Namespace})
	hm.Register(&health.ToolGatewayChecker{Ping: gateway.Ping})
	if redisClient != nil {
		hm.Register(&health.RedisChecker{Client: redisClient})
	}
	if store != nil {
		hm.Register(&health.DatabaseChecker{DB: store.DB()})
	}

	apiSrv := startAPIServer(cfg, temporalClient, store, logger)
	adminSrv := startAdminServer(cfg, hm, logger)

	workerErr := make(chan error, 1)
	go func() { workerErr <- w.Run(worker.InterruptCh()) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-workerErr:
		if err != nil {
			logger.Error("Worker stopped", zap.Error(err))
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)
	logger.Info("Orchestrator stopped")
}

func registerActivities(w worker.Worker, acts *activities.Activities) {
	for name, fn := range map[string]interface{}{
		activities.ActivityClarify:         acts.Clarify,
		activities.ActivityAnalyze:         acts.Analyze,
		activities.ActivityDiscover:        acts.Discover,
		activities.ActivityPlanSections:    acts.PlanSections,
		activities.ActivityResearchSection: acts.ResearchSection,
		activities.ActivityReview:          acts.Review,
		activities.ActivityWriteReport:     acts.WriteReport,
		activities.ActivityEmitRunEvent:    acts.EmitRunEvent,
		activities.ActivityPersistRunState: acts.PersistRunState,
	} {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
}

func startAPIServer(cfg *config.Config, tc client.Client, store *db.Store, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	httpapi.NewRunsHandler(tc, cfg, store, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(streaming.Get(), logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.HTTPPort),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
		}
	}()
	return srv
}

func startAdminServer(cfg *config.Config, hm *health.Manager, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.AdminPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin server listening", zap.Int("port", cfg.Server.AdminPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin server failed", zap.Error(err))
		}
	}()
	return srv
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
