package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adat-tool/adat-api/internal/api"
	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/config"
	"github.com/adat-tool/adat-api/internal/domain/eligibility"
	"github.com/adat-tool/adat-api/internal/platform/metrics"
	"github.com/adat-tool/adat-api/internal/platform/sqlstore"
	"github.com/adat-tool/adat-api/internal/platform/supabase"
	"github.com/adat-tool/adat-api/internal/service"
	"github.com/adat-tool/adat-api/internal/store"
	"github.com/adat-tool/adat-api/internal/task"
)

const driverMemory = "memory"

// application holds the shared dependencies of one process and owns their
// cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	// dbs holds every SQL handle opened, keyed by driver and URL so that a
	// queue and a result store on the same database share one pool.
	dbs map[string]*sqlstore.DB

	taskStore task.TaskStore
	results   store.ResultStore
	queue     *task.Queue
	pool      *task.WorkerPool
	service   service.AssessmentService
	metrics   *metrics.Recorder

	checks []api.HealthCheck
}

// appOptions controls which parts newApplication builds.
type appOptions struct {
	// Workers starts an in-process worker pool alongside the gateway.
	Workers bool
	// Migrate applies pending migrations to every SQL backend before use.
	Migrate bool
}

// newApplication opens the configured backends and wires the queue, the
// worker pool and the gateway service. Nothing is started yet.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, clk clock.Clock, opts appOptions) (*application, error) {
	if clk == nil {
		clk = clock.Real()
	}
	app := &application{
		config: cfg,
		logger: logger,
		clock:  clk,
		dbs:    make(map[string]*sqlstore.DB),
	}

	var err error
	app.metrics, err = metrics.New(ctx, "adat-api")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := app.openTaskStore(ctx, opts.Migrate); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.openResultStore(ctx, opts.Migrate); err != nil {
		app.cleanup()
		return nil, err
	}

	app.queue = task.NewQueue(app.taskStore, clk, logger)
	app.queue.SetMetrics(app.metrics)

	app.service, err = service.NewAssessmentService(app.queue, app.results, service.Options{
		UpstreamTimeout: cfg.Server.UpstreamTimeout,
		SessionTTL:      cfg.Task.SessionTTL,
		Clock:           clk,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create assessment service: %w", err)
	}

	if opts.Workers {
		app.pool = app.newWorkerPool(app.queue.Wake(), "worker")
	}

	logger.Info("application initialized",
		"queue_driver", cfg.Queue.Driver,
		"store_driver", cfg.Store.Driver,
		"workers", opts.Workers)
	return app, nil
}

// newWorkerPool builds a pool over the task store with the assessment
// handler registered. wake may be nil when submissions happen in another
// process.
func (app *application) newWorkerPool(wake <-chan struct{}, idPrefix string) *task.WorkerPool {
	cfg := app.config.Task
	pool := task.NewWorkerPool(app.taskStore, wake, task.WorkerPoolConfig{
		WorkerCount:       cfg.WorkerCount,
		ProcessingTimeout: cfg.ProcessingTimeout,
		VisibilityTimeout: cfg.VisibilityTimeout,
		MaxDeliveries:     cfg.MaxDeliveries,
		PollInterval:      cfg.PollInterval,
		Retention:         cfg.ResultRetention,
		ReapInterval:      cfg.ReapInterval,
		WorkerIDPrefix:    idPrefix,
	}, app.clock, app.logger)

	evaluator := eligibility.NewEvaluator(app.clock, cfg.EvaluationDelay)
	pool.Register(task.TypeAssessment,
		service.NewAssessmentHandler(evaluator, app.results, app.clock, cfg.SessionTTL, app.logger))
	pool.SetMetrics(app.metrics)
	return pool
}

func (app *application) openTaskStore(ctx context.Context, migrate bool) error {
	cfg := app.config.Queue
	if cfg.Driver == driverMemory {
		app.taskStore = task.NewMemoryStore()
		return nil
	}
	db, err := app.openDB(ctx, cfg.Driver, cfg.URL, migrate)
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	app.taskStore = sqlstore.NewTaskStore(db, app.logger)
	app.addDBCheck("queue", db)
	return nil
}

func (app *application) openResultStore(ctx context.Context, migrate bool) error {
	cfg := app.config.Store
	switch cfg.Driver {
	case driverMemory:
		app.results = store.NewMemoryResultStore(app.clock)
		return nil
	case "supabase":
		rs := supabase.NewResultStore(supabase.Config{
			URL:    cfg.URL,
			APIKey: cfg.APIKey,
			Schema: cfg.Schema,
		}, app.logger)
		app.results = rs
		app.checks = append(app.checks, api.HealthCheck{Name: "result_store", Check: rs.Ping})
		return nil
	}
	db, err := app.openDB(ctx, cfg.Driver, cfg.URL, migrate)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	app.results = sqlstore.NewResultStore(db, app.clock, app.logger)
	app.addDBCheck("result_store", db)
	return nil
}

// openDB returns a shared handle for driver and url, opening and
// optionally migrating it on first use.
func (app *application) openDB(ctx context.Context, driver, url string, migrate bool) (*sqlstore.DB, error) {
	key := driver + "|" + url
	if db, ok := app.dbs[key]; ok {
		return db, nil
	}
	dialect, err := sqlstore.ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.Open(ctx, dialect, url, app.logger)
	if err != nil {
		return nil, err
	}
	app.dbs[key] = db
	if migrate {
		if err := sqlstore.Migrate(ctx, db, sqlstore.MigrateUp, app.logger); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (app *application) addDBCheck(name string, db *sqlstore.DB) {
	for _, c := range app.checks {
		if c.Name == name {
			return
		}
	}
	app.checks = append(app.checks, api.HealthCheck{Name: name, Check: db.PingContext})
}

// cleanup stops the worker pool and releases every backend. It is safe to
// call on a partially built application.
func (app *application) cleanup() {
	if app.queue != nil {
		app.queue.Close()
	}
	if app.pool != nil {
		app.pool.Stop()
	}

	var errs []error
	for _, db := range app.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.metrics != nil {
		if err := app.metrics.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing resources", "error", err)
	}

	app.logger.Info("application shutdown completed")
}
