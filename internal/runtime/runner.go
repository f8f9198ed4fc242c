package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/pkg/connector"
)

// Builder creates a fresh executor for one run of a pipeline.
// Executors are single use: their input modules are closed after extraction.
type Builder func(pipeline *connector.Pipeline, dryRun bool) (*Executor, error)

// Observer receives every finished run, successful or not.
type Observer interface {
	ObserveRun(result *connector.ExecutionResult)
}

// StateRecorder persists the outcome of a run.
type StateRecorder interface {
	Record(result *connector.ExecutionResult) error
}

// Runner builds and executes pipelines on behalf of long-lived callers
// (CLI, scheduler, HTTP API). Runs loading into the same destination are
// serialized through a shared DestinationLocks.
type Runner struct {
	build     Builder
	locks     *DestinationLocks
	observers []Observer
	state     StateRecorder
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLocks shares a lock set between runners.
func WithLocks(locks *DestinationLocks) RunnerOption {
	return func(r *Runner) { r.locks = locks }
}

// WithObserver adds an observer notified after each run.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithStateRecorder records the outcome of every non dry-run.
func WithStateRecorder(s StateRecorder) RunnerOption {
	return func(r *Runner) { r.state = s }
}

// NewRunner creates a runner using build to create executors.
func NewRunner(build Builder, opts ...RunnerOption) *Runner {
	r := &Runner{build: build}
	for _, opt := range opts {
		opt(r)
	}
	if r.locks == nil {
		r.locks = NewDestinationLocks()
	}
	return r
}

// Execute runs the full pipeline, load included.
func (r *Runner) Execute(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error) {
	return r.Run(ctx, pipeline, false)
}

// Preview runs extract and transform only.
func (r *Runner) Preview(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error) {
	return r.Run(ctx, pipeline, true)
}

// Run builds an executor for pipeline and executes it. Runs that load
// hold the destination lock from build to completion.
func (r *Runner) Run(ctx context.Context, pipeline *connector.Pipeline, dryRun bool) (*connector.ExecutionResult, error) {
	if pipeline == nil {
		return &connector.ExecutionResult{
			Status: StatusError,
			Error:  buildExecutionError(ErrCodeInvalidInput, "", ErrNilPipeline),
		}, ErrNilPipeline
	}

	if !dryRun {
		unlock, err := r.locks.Lock(ctx, pipeline.Destination.Key())
		if err != nil {
			return r.finish(failedResult(pipeline, dryRun, err), dryRun), err
		}
		defer unlock()
	}

	executor, err := r.build(pipeline, dryRun)
	if err != nil {
		logger.WithPipeline(pipeline.ID).Error("failed to build pipeline modules",
			slog.String("error", err.Error()),
		)
		return r.finish(failedResult(pipeline, dryRun, err), dryRun), err
	}

	result, err := executor.Execute(ctx, pipeline)
	return r.finish(result, dryRun), err
}

func (r *Runner) finish(result *connector.ExecutionResult, dryRun bool) *connector.ExecutionResult {
	for _, o := range r.observers {
		o.ObserveRun(result)
	}
	if r.state != nil && !dryRun {
		if err := r.state.Record(result); err != nil {
			logger.WithPipeline(result.PipelineID).Warn("failed to record run state",
				slog.String("error", err.Error()),
			)
		}
	}
	return result
}

// failedResult describes a run that failed before its executor started.
func failedResult(pipeline *connector.Pipeline, dryRun bool, err error) *connector.ExecutionResult {
	now := time.Now()
	code, stage := classifyBuildError(err)
	return &connector.ExecutionResult{
		PipelineID:  pipeline.ID,
		Status:      StatusError,
		StartedAt:   now,
		CompletedAt: now,
		Criteria:    pipeline.Criteria,
		Destination: pipeline.Destination,
		DryRun:      dryRun,
		Error:       buildExecutionError(code, stage, err),
	}
}

// classifyBuildError maps a module construction failure to the stage that
// would have reported it.
func classifyBuildError(err error) (code, stage string) {
	switch {
	case errors.Is(err, errhandling.ErrDataSource):
		return ErrCodeExtractFailed, StageExtract
	case errhandling.IsCriteriaError(err):
		return ErrCodeTransformFailed, StageTransform
	case errors.Is(err, errhandling.ErrPersistence):
		return ErrCodeLoadFailed, StageLoad
	default:
		return ErrCodeInvalidInput, ""
	}
}
