// Package scheduler provides CRON-based scheduling for pipeline execution.
// It allows pipelines to be executed on a recurring schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/pkg/connector"
)

// Common errors
var (
	ErrNilPipeline        = errors.New("pipeline is nil")
	ErrEmptyPipelineID    = errors.New("pipeline ID is required")
	ErrPipelineDisabled   = errors.New("pipeline is disabled")
	ErrEmptySchedule      = errors.New("pipeline has no schedule")
	ErrInvalidSchedule    = errors.New("invalid CRON expression")
	ErrPipelineNotFound   = errors.New("pipeline not found")
	ErrAlreadyStarted     = errors.New("scheduler already started")
	ErrNotStarted         = errors.New("scheduler not started")
	ErrNoExecutorProvided = errors.New("no executor configured")
)

// Executor runs one pipeline. runtime.Runner satisfies it.
type Executor interface {
	Execute(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error)
}

// parser accepts standard 5-field expressions, 6-field expressions with
// a leading seconds field, and descriptors such as @hourly.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCronExpression checks that expr is a valid 5- or 6-field CRON expression.
func ValidateCronExpression(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

func parseSchedule(expr string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, ErrEmptySchedule
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return schedule, nil
}

type entry struct {
	pipeline *connector.Pipeline
	schedule cron.Schedule
	id       cron.EntryID
	running  atomic.Bool
}

// Scheduler manages scheduled pipeline executions.
type Scheduler struct {
	mu        sync.RWMutex
	cron      *cron.Cron
	executor  Executor
	pipelines map[string]*entry
	started   bool

	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates a new scheduler instance without an executor.
// Scheduled runs are logged and skipped until one is provided.
func New() *Scheduler {
	return NewWithExecutor(nil)
}

// NewWithExecutor creates a scheduler running pipelines through executor.
func NewWithExecutor(executor Executor) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithParser(parser)),
		executor:  executor,
		pipelines: make(map[string]*entry),
	}
}

// Register adds a pipeline to the scheduler, replacing any pipeline with
// the same ID. Pipelines can be registered before or after Start.
func (s *Scheduler) Register(pipeline *connector.Pipeline) error {
	if pipeline == nil {
		return ErrNilPipeline
	}
	if pipeline.ID == "" {
		return ErrEmptyPipelineID
	}
	if !pipeline.Enabled {
		return fmt.Errorf("%w: %s", ErrPipelineDisabled, pipeline.ID)
	}
	schedule, err := parseSchedule(pipeline.Schedule)
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", pipeline.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pipelines[pipeline.ID]; ok {
		s.cron.Remove(old.id)
		logger.Info("updating scheduled pipeline",
			slog.String("pipeline_id", pipeline.ID),
			slog.String("schedule", pipeline.Schedule),
		)
	}

	e := &entry{pipeline: pipeline, schedule: schedule}
	e.id = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(e) }))
	s.pipelines[pipeline.ID] = e

	logger.Info("pipeline scheduled",
		slog.String("pipeline_id", pipeline.ID),
		slog.String("schedule", pipeline.Schedule),
	)
	return nil
}

// Unregister removes a pipeline from the scheduler.
func (s *Scheduler) Unregister(pipelineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pipelines[pipelineID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}
	s.cron.Remove(e.id)
	delete(s.pipelines, pipelineID)
	return nil
}

// Start begins executing scheduled pipelines. Runs inherit ctx; canceling
// it cancels in-flight runs but does not stop the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true

	logger.Info("scheduler started", slog.Int("pipeline_count", len(s.pipelines)))
	return nil
}

// Stop halts all scheduled executions and clears registered pipelines.
// It waits for in-flight runs until ctx is done, then cancels them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	c := s.cron
	cancel := s.cancelRun
	s.started = false
	s.pipelines = make(map[string]*entry)
	s.cron = cron.New(cron.WithParser(parser))
	s.mu.Unlock()

	if !started {
		return nil
	}

	done := c.Stop()
	var err error
	select {
	case <-done.Done():
	case <-ctx.Done():
		err = fmt.Errorf("waiting for running pipelines: %w", ctx.Err())
		logger.Warn("scheduler stop timed out, canceling running pipelines")
	}
	cancel()

	logger.Info("scheduler stopped")
	return err
}

// run executes one scheduled trigger. A trigger arriving while the previous
// run of the same pipeline is still in progress is skipped.
func (s *Scheduler) run(e *entry) {
	log := logger.WithPipeline(e.pipeline.ID)
	if !e.running.CompareAndSwap(false, true) {
		log.Warn("skipping scheduled run: previous run still in progress")
		return
	}
	defer e.running.Store(false)

	s.mu.RLock()
	ctx := s.runCtx
	executor := s.executor
	s.mu.RUnlock()

	if executor == nil {
		log.Warn("skipping scheduled run", slog.String("error", ErrNoExecutorProvided.Error()))
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log.Info("scheduled run triggered")
	start := time.Now()
	result, err := executor.Execute(ctx, e.pipeline)
	if err != nil {
		log.Error("scheduled run failed",
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return
	}

	attrs := []any{slog.Duration("duration", time.Since(start))}
	if result != nil {
		attrs = append(attrs, slog.String("status", result.Status), slog.Int("records_processed", result.RecordsProcessed))
	}
	log.Info("scheduled run completed", attrs...)
}

// HasPipeline reports whether a pipeline is registered.
func (s *Scheduler) HasPipeline(pipelineID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pipelines[pipelineID]
	return ok
}

// IsRunning reports whether a run of the pipeline is in progress.
func (s *Scheduler) IsRunning(pipelineID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.pipelines[pipelineID]
	return ok && e.running.Load()
}

// IsStarted reports whether the scheduler is started.
func (s *Scheduler) IsStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// PipelineCount returns the number of registered pipelines.
func (s *Scheduler) PipelineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pipelines)
}

// GetPipelineIDs returns the registered pipeline IDs in sorted order.
func (s *Scheduler) GetPipelineIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.pipelines))
	for id := range s.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetNextRun returns the next scheduled run of a pipeline.
// The scheduler must be started.
func (s *Scheduler) GetNextRun(pipelineID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return time.Time{}, ErrNotStarted
	}
	e, ok := s.pipelines[pipelineID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}
	return e.schedule.Next(time.Now()), nil
}

// NextRun computes the next run of a schedule after t without registering it.
func NextRun(expr string, t time.Time) (time.Time, error) {
	schedule, err := parseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(t), nil
}
