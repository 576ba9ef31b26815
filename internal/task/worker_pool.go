package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adat-tool/adat-api/internal/clock"
	"github.com/adat-tool/adat-api/internal/domain"
	"github.com/adat-tool/adat-api/internal/redact"
)

// completeTimeout bounds the store write that records a terminal state.
const completeTimeout = 10 * time.Second

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount is the number of concurrent workers. Values below 1 mean 1.
	WorkerCount int
	// ProcessingTimeout is the hard ceiling on one handler invocation.
	ProcessingTimeout time.Duration
	// VisibilityTimeout is the claim lease; it must cover ProcessingTimeout.
	VisibilityTimeout time.Duration
	// MaxDeliveries bounds how often one task is claimed. 1 disables retry.
	MaxDeliveries int
	// PollInterval is how often idle workers retry Claim without a wake signal.
	PollInterval time.Duration
	// Retention is how long terminal rows stay readable.
	Retention time.Duration
	// ReapInterval is how often lease expiry and GC run. Zero disables the reaper.
	ReapInterval time.Duration
	// WorkerIDPrefix distinguishes workers of different processes.
	WorkerIDPrefix string
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:       2,
		ProcessingTimeout: 5 * time.Minute,
		VisibilityTimeout: 5*time.Minute + 30*time.Second,
		MaxDeliveries:     1,
		PollInterval:      time.Second,
		Retention:         time.Hour,
		ReapInterval:      30 * time.Second,
		WorkerIDPrefix:    "worker",
	}
}

// WorkerPool runs long-lived workers that claim tasks from a TaskStore,
// execute the registered Handler and record a terminal state.
type WorkerPool struct {
	store    TaskStore
	wake     <-chan struct{}
	handlers map[string]Handler
	config   WorkerPoolConfig
	clock    clock.Clock
	logger   *slog.Logger
	metrics  Metrics
	reaper   *Reaper

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// errorHandler is called after a task is recorded as FAILURE.
	errorHandler func(rec *Record, err error)
}

// NewWorkerPool creates a pool over store. wake may be nil, in which case
// workers rely on PollInterval alone.
func NewWorkerPool(
	store TaskStore,
	wake <-chan struct{},
	config WorkerPoolConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}
	defaults := DefaultWorkerPoolConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaults.ProcessingTimeout
	}
	if config.VisibilityTimeout < config.ProcessingTimeout {
		config.VisibilityTimeout = config.ProcessingTimeout + 30*time.Second
	}
	if config.MaxDeliveries <= 0 {
		config.MaxDeliveries = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.WorkerIDPrefix == "" {
		config.WorkerIDPrefix = defaults.WorkerIDPrefix
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		store:    store,
		wake:     wake,
		handlers: make(map[string]Handler),
		config:   config,
		clock:    clk,
		logger:   logger.With("component", "worker_pool"),
		metrics:  noopMetrics{},
		ctx:      ctx,
		cancel:   cancel,
	}
	if config.ReapInterval > 0 {
		p.reaper = NewReaper(store, ReaperConfig{
			Interval:      config.ReapInterval,
			MaxDeliveries: config.MaxDeliveries,
			Retention:     config.Retention,
		}, clk, logger)
	}
	return p
}

// Register binds a handler to a task type. It must be called before Start.
func (p *WorkerPool) Register(taskType string, h Handler) {
	p.handlers[taskType] = h
}

// SetErrorHandler sets a callback invoked for every FAILURE recorded.
func (p *WorkerPool) SetErrorHandler(handler func(rec *Record, err error)) {
	p.errorHandler = handler
}

// SetMetrics installs a metrics recorder on the pool and its reaper.
func (p *WorkerPool) SetMetrics(m Metrics) {
	p.metrics = metricsOrNoop(m)
	if p.reaper != nil {
		p.reaper.metrics = p.metrics
	}
}

// Start launches the workers and, if configured, the reaper.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"processing_timeout", p.config.ProcessingTimeout.String(),
		"max_deliveries", p.config.MaxDeliveries)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(fmt.Sprintf("%s-%d", p.config.WorkerIDPrefix, i))
	}

	if p.reaper != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.reaper.Run(p.ctx)
		}()
	}
}

// Stop signals workers to exit and waits for them. A task already being
// processed runs to completion or to its timeout first.
func (p *WorkerPool) Stop() {
	p.logger.Info("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id string) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("starting worker")

	ticker := p.clock.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		if p.ctx.Err() != nil {
			log.Debug("stopping worker")
			return
		}

		processed, err := p.RunOnce(p.ctx, id)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("failed to claim task", "error", redact.Error(err))
		}
		if processed {
			continue
		}

		select {
		case <-p.ctx.Done():
			log.Debug("stopping worker")
			return
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes at most one task. It reports whether a task
// was processed; ErrNoTask is not an error.
func (p *WorkerPool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	rec, err := p.store.Claim(ctx, ClaimParams{
		WorkerID:      workerID,
		Now:           p.clock.Now().UTC(),
		Lease:         p.config.VisibilityTimeout,
		MaxDeliveries: p.config.MaxDeliveries,
	})
	if errors.Is(err, ErrNoTask) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.process(rec, workerID)
	return true, nil
}

func (p *WorkerPool) process(rec *Record, workerID string) {
	log := p.logger.With(
		"task_id", rec.ID,
		"task_type", rec.Type,
		"session_id", rec.SessionID,
		"worker_id", workerID,
		"attempt", rec.Attempts,
	)
	log.Info("processing task")

	start := p.clock.Now()
	result, err := p.execute(rec, log)
	elapsed := p.clock.Now().Sub(start)

	var outcome Outcome
	if err != nil {
		outcome = Failed(redact.Error(err))
		if errors.Is(err, domain.ErrEvaluationTimeout) {
			p.metrics.TaskTimedOut(context.Background(), rec.Type)
		}
		log.Error("task execution failed", "error", outcome.Error, "elapsed", elapsed.String())
	} else {
		outcome = Succeeded(result)
		log.Info("task completed successfully", "elapsed", elapsed.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	cerr := p.store.Complete(ctx, CompleteParams{
		ID:        rec.ID,
		Token:     rec.ClaimToken,
		Outcome:   outcome,
		Now:       p.clock.Now().UTC(),
		Retention: p.config.Retention,
	})
	if cerr != nil {
		log.Error("failed to record task outcome",
			"status", outcome.Status,
			"error", redact.Error(cerr))
		return
	}

	p.metrics.TaskFinished(context.Background(), rec.Type, outcome.Status, elapsed)
	if err != nil && p.errorHandler != nil {
		p.errorHandler(rec, err)
	}
}

type handlerResult struct {
	result json.RawMessage
	err    error
}

// execute runs the handler under the processing ceiling. The handler runs
// in its own goroutine so that a hung evaluation cannot hold the worker;
// its context is cancelled when the ceiling is reached.
func (p *WorkerPool) execute(rec *Record, log *slog.Logger) (json.RawMessage, error) {
	h, ok := p.handlers[rec.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", domain.ErrEvaluationFailure, DetailUnknownType, rec.Type)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("task handler panicked", "panic", fmt.Sprint(r))
				done <- handlerResult{err: fmt.Errorf("%w: panic: %v", domain.ErrEvaluationFailure, r)}
			}
		}()
		res, err := h.Handle(ctx, rec)
		done <- handlerResult{result: res, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-p.clock.After(p.config.ProcessingTimeout):
		return nil, fmt.Errorf("%w after %s", domain.ErrEvaluationTimeout, p.config.ProcessingTimeout)
	}
}
