// Package runtime provides the pipeline execution engine.
// It orchestrates the extract, transform and load stages of one run.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/modules/filter"
	"github.com/canectors/topapps/internal/modules/input"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/pkg/connector"
)

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Executor is responsible for executing one pipeline run.
// It orchestrates the execution flow: extract apps → extract reviews →
// transform → load.
//
// The Executor only interacts with modules through their public interfaces.
// The fields are declared as interface types, so the runtime cannot reach
// concrete module types or their internals.
type Executor struct {
	appsModule    input.Module
	reviewsModule input.Module
	filterModule  filter.Module
	outputModule  output.Module
	dryRun        bool
	retryConfig   errhandling.RetryConfig
	newRetry      func(errhandling.RetryConfig) *errhandling.RetryExecutor
}

// NewExecutorWithModules creates a new pipeline executor with all modules configured.
//
// Parameters:
//   - apps: the input module reading application records
//   - reviews: the input module reading review rows (nil runs without reviews)
//   - filterModule: the transform applied to both tables
//   - outputModule: the module persisting the result set (nil only in dry-run)
//   - dryRun: if true, the load stage is skipped
func NewExecutorWithModules(
	apps input.Module,
	reviews input.Module,
	filterModule filter.Module,
	outputModule output.Module,
	dryRun bool,
) *Executor {
	return &Executor{
		appsModule:    apps,
		reviewsModule: reviews,
		filterModule:  filterModule,
		outputModule:  outputModule,
		dryRun:        dryRun,
		retryConfig:   errhandling.DefaultRetryConfig(),
		newRetry:      errhandling.NewRetryExecutor,
	}
}

// WithRetry sets the retry configuration of the load stage.
func (e *Executor) WithRetry(config errhandling.RetryConfig) *Executor {
	e.retryConfig = config.WithDefaults()
	return e
}

// DryRun reports whether the executor skips the load stage.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Execute runs the pipeline with the given context.
//
// Stages run strictly in sequence. If extract or transform fails, load is
// never invoked. If load fails, result.Results still holds the transformed
// result set so the caller can retry the load.
//
// Resource Management:
//   - Input modules are closed as soon as extraction completes, even on error.
//   - The output module is closed at the end of execution.
//
// Returns both result and error for comprehensive error handling.
func (e *Executor) Execute(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error) {
	startedAt := time.Now()
	result := &connector.ExecutionResult{
		StartedAt: startedAt,
		Status:    StatusError,
		DryRun:    e.dryRun,
	}

	if err := e.validateExecution(pipeline, result); err != nil {
		if pipeline != nil {
			execCtx := e.executionContext(pipeline, "")
			logger.LogExecutionStart(execCtx)
			logger.LogExecutionEnd(execCtx, StatusError, 0, time.Since(startedAt))
		}
		return result, err
	}
	result.PipelineID = pipeline.ID
	result.Criteria = pipeline.Criteria
	result.Destination = pipeline.Destination

	execCtx := e.executionContext(pipeline, "")
	logger.LogExecutionStart(execCtx)

	if e.outputModule != nil {
		defer e.closeModule(pipeline.ID, "output", e.outputModule)
	}

	apps, reviews, err := e.executeExtract(ctx, pipeline, result)
	if err != nil {
		logger.LogExecutionEnd(execCtx, StatusError, 0, time.Since(startedAt))
		return result, err
	}

	rs, err := e.executeTransform(ctx, pipeline, apps, reviews, result)
	if err != nil {
		logger.LogExecutionEnd(execCtx, StatusError, 0, time.Since(startedAt))
		return result, err
	}

	if err := e.executeLoad(ctx, pipeline, rs, result); err != nil {
		logger.LogExecutionEnd(execCtx, StatusError, result.RecordsProcessed, time.Since(startedAt))
		return result, err
	}

	e.finalizeSuccessWithMetrics(result, startedAt, pipeline)
	return result, nil
}

// validateExecution validates the pipeline and modules before execution.
func (e *Executor) validateExecution(pipeline *connector.Pipeline, result *connector.ExecutionResult) error {
	fail := func(stage string, err error, attrs ...any) error {
		logger.Error("pipeline execution failed: "+err.Error(), attrs...)
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeInvalidInput, stage, err)
		return err
	}

	if pipeline == nil {
		return fail("", ErrNilPipeline)
	}
	if e.appsModule == nil {
		return fail(StageExtract, ErrNilInputModule, slog.String("pipeline_id", pipeline.ID))
	}
	if e.filterModule == nil {
		return fail(StageTransform, ErrNilFilterModule, slog.String("pipeline_id", pipeline.ID))
	}
	if e.outputModule == nil && !e.dryRun {
		return fail(StageLoad, ErrNilOutputModule, slog.String("pipeline_id", pipeline.ID))
	}
	return nil
}

func (e *Executor) executionContext(pipeline *connector.Pipeline, stage string) logger.ExecutionContext {
	return logger.ExecutionContext{
		PipelineID:   pipeline.ID,
		PipelineName: pipeline.Name,
		Stage:        stage,
		DryRun:       e.dryRun,
	}
}

// moduleCloser interface for modules that can be closed.
type moduleCloser interface {
	Close() error
}

// closeModule closes a module and logs any error.
func (e *Executor) closeModule(pipelineID, moduleName string, m moduleCloser) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module",
			slog.String("pipeline_id", pipelineID),
			slog.String("module", moduleName),
			slog.String("error", err.Error()),
		)
	}
}

// executeExtract reads both sources. Input modules are closed before returning.
func (e *Executor) executeExtract(ctx context.Context, pipeline *connector.Pipeline, result *connector.ExecutionResult) (*dataset.Table, *dataset.Table, error) {
	stageCtx := e.executionContext(pipeline, StageExtract)
	stageCtx.Source = pipeline.Sources.Apps.Path
	logger.LogStageStart(stageCtx)

	start := time.Now()
	defer func() { result.Timings.Extract = time.Since(start) }()

	apps, err := e.fetch(ctx, pipeline.ID, "apps", e.appsModule)
	e.appsModule = nil

	var reviews *dataset.Table
	if e.reviewsModule != nil {
		if err == nil {
			reviews, err = e.fetch(ctx, pipeline.ID, "reviews", e.reviewsModule)
		} else {
			e.closeModule(pipeline.ID, "reviews", e.reviewsModule)
		}
		e.reviewsModule = nil
	}

	if err != nil {
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeExtractFailed, StageExtract, err)
		logger.LogStageEnd(stageCtx, 0, time.Since(start), &logger.ExecutionError{
			Code:    ErrCodeExtractFailed,
			Message: err.Error(),
		})
		return nil, nil, stageError(StageExtract, err)
	}

	result.AppsExtracted = apps.Len()
	result.ReviewsExtracted = reviews.Len()
	logger.LogStageEnd(stageCtx, apps.Len()+reviews.Len(), time.Since(start), nil)
	return apps, reviews, nil
}

// fetch runs one input module and closes it.
func (e *Executor) fetch(ctx context.Context, pipelineID, name string, m input.Module) (*dataset.Table, error) {
	defer e.closeModule(pipelineID, name, m)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Fetch(ctx)
}

// executeTransform joins, filters and ranks the extracted tables.
func (e *Executor) executeTransform(ctx context.Context, pipeline *connector.Pipeline, apps, reviews *dataset.Table, result *connector.ExecutionResult) (*connector.ResultSet, error) {
	stageCtx := e.executionContext(pipeline, StageTransform)
	logger.LogStageStart(stageCtx)

	start := time.Now()
	rs, err := e.process(ctx, apps, reviews)
	result.Timings.Transform = time.Since(start)

	if err != nil {
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeTransformFailed, StageTransform, err)
		logger.LogStageEnd(stageCtx, apps.Len(), result.Timings.Transform, &logger.ExecutionError{
			Code:    ErrCodeTransformFailed,
			Message: err.Error(),
		})
		return nil, stageError(StageTransform, err)
	}

	result.Results = rs
	result.Summary = connector.Summarize(rs)
	result.RecordsProcessed = rs.Len()
	logger.LogStageEnd(stageCtx, rs.Len(), result.Timings.Transform, nil)
	return rs, nil
}

func (e *Executor) process(ctx context.Context, apps, reviews *dataset.Table) (*connector.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.filterModule.Process(apps, reviews)
}

// executeLoad persists the result set through the retry executor.
// In dry-run mode the stage is logged and skipped.
func (e *Executor) executeLoad(ctx context.Context, pipeline *connector.Pipeline, rs *connector.ResultSet, result *connector.ExecutionResult) error {
	stageCtx := e.executionContext(pipeline, StageLoad)
	stageCtx.Destination = pipeline.Destination.Key()

	if e.dryRun {
		logger.WithExecution(stageCtx).Debug("dry-run mode: skipping load stage",
			slog.Int("records_would_load", rs.Len()),
		)
		return nil
	}

	logger.LogStageStart(stageCtx)
	start := time.Now()

	retry := e.newRetry(e.retryConfig)
	err := retry.Execute(ctx, func(ctx context.Context) error {
		_, err := e.outputModule.Send(ctx, rs)
		return err
	})
	info := retry.GetRetryInfo()
	result.LoadAttempts = info.TotalAttempts
	result.Timings.Load = time.Since(start)

	if err != nil {
		result.CompletedAt = time.Now()
		result.Error = buildExecutionError(ErrCodeLoadFailed, StageLoad, err)
		logger.LogError("load failed", logger.ErrorContext{
			PipelineID:    pipeline.ID,
			PipelineName:  pipeline.Name,
			Stage:         StageLoad,
			ErrorCode:     ErrCodeLoadFailed,
			ErrorCategory: result.Error.ErrorCategory,
			Err:           err,
			Database:      pipeline.Destination.Database,
			Table:         pipeline.Destination.Table,
			Attempt:       info.TotalAttempts,
			Duration:      result.Timings.Load,
		})
		logger.LogStageEnd(stageCtx, rs.Len(), result.Timings.Load, &logger.ExecutionError{
			Code:    ErrCodeLoadFailed,
			Message: err.Error(),
		})
		return stageError(StageLoad, err)
	}

	result.Loaded = true
	logger.LogStageEnd(stageCtx, rs.Len(), result.Timings.Load, nil)
	return nil
}

// finalizeSuccessWithMetrics marks the execution as successful and logs completion with detailed metrics.
func (e *Executor) finalizeSuccessWithMetrics(result *connector.ExecutionResult, startedAt time.Time, pipeline *connector.Pipeline) {
	result.Status = StatusSuccess
	result.CompletedAt = time.Now()
	result.Error = nil

	totalDuration := time.Since(startedAt)
	ctx := e.executionContext(pipeline, "")

	logger.LogExecutionEnd(ctx, StatusSuccess, result.RecordsProcessed, totalDuration)
	logger.LogMetrics(ctx, MetricsOf(result))
}

// MetricsOf converts an execution result into logger metrics.
func MetricsOf(result *connector.ExecutionResult) logger.ExecutionMetrics {
	return logger.ExecutionMetrics{
		TotalDuration:     result.CompletedAt.Sub(result.StartedAt),
		ExtractDuration:   result.Timings.Extract,
		TransformDuration: result.Timings.Transform,
		LoadDuration:      result.Timings.Load,
		AppsExtracted:     result.AppsExtracted,
		ReviewsExtracted:  result.ReviewsExtracted,
		RecordsProcessed:  result.RecordsProcessed,
		LoadAttempts:      result.LoadAttempts,
	}
}
