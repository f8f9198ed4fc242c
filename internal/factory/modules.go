// Package factory provides module creation functions for the pipeline runtime.
// It centralizes the logic for instantiating input, filter, and output modules
// from a pipeline configuration using the module registry.
//
// # Adding New Module Types
//
// To add a new source format or sink type, see the documentation in
// internal/registry. You do NOT need to modify this factory; just register
// your constructor.
package factory

import (
	"errors"
	"fmt"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/modules/filter"
	"github.com/canectors/topapps/internal/modules/input"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/internal/registry"
	"github.com/canectors/topapps/internal/runtime"
	"github.com/canectors/topapps/pkg/connector"
)

// Source names used for logging and error context.
const (
	SourceApps    = "apps"
	SourceReviews = "reviews"
)

// ErrUnknownType is returned when no constructor is registered for a type.
var ErrUnknownType = errors.New("unknown module type")

// CreateInputModule creates the input module reading one source.
// Unregistered formats fail with a DataSourceError wrapping ErrUnknownType.
func CreateInputModule(name string, cfg connector.SourceConfig) (input.Module, error) {
	format := cfg.Format
	if format == "" {
		format = registry.FormatCSV
	}

	constructor := registry.GetInputConstructor(format)
	if constructor == nil {
		return nil, errhandling.NewDataSourceError(cfg.Path, fmt.Sprintf("source %s", name),
			fmt.Errorf("%w: format %q", ErrUnknownType, format))
	}
	module, err := constructor(name, cfg)
	if err != nil {
		return nil, errhandling.NewDataSourceError(cfg.Path, fmt.Sprintf("source %s", name), err)
	}
	return module, nil
}

// CreateInputModules creates the apps and reviews input modules of a pipeline.
// A reviews source without a path is optional and yields a nil module.
func CreateInputModules(sources connector.Sources) (apps, reviews input.Module, err error) {
	apps, err = CreateInputModule(SourceApps, sources.Apps)
	if err != nil {
		return nil, nil, err
	}
	if sources.Reviews.Path == "" {
		return apps, nil, nil
	}
	reviews, err = CreateInputModule(SourceReviews, sources.Reviews)
	if err != nil {
		_ = apps.Close()
		return nil, nil, err
	}
	return apps, reviews, nil
}

// CreateFilterModule creates the top-apps filter for the given criteria.
// Invalid criteria fail with InvalidCategoryError or InvalidRangeError.
func CreateFilterModule(criteria connector.Criteria, columns connector.ColumnMapping) (filter.Module, error) {
	constructor := registry.GetFilterConstructor(registry.FilterTopApps)
	if constructor == nil {
		return nil, fmt.Errorf("%w: filter %q", ErrUnknownType, registry.FilterTopApps)
	}
	return constructor(criteria, columns)
}

// CreateSink creates the sink for a destination.
// Unknown types and invalid configuration fail with a PersistenceError.
func CreateSink(dest connector.Destination) (output.Sink, error) {
	destType := dest.Type
	if destType == "" {
		destType = registry.SinkSQLite
	}

	constructor := registry.GetSinkConstructor(destType)
	if constructor == nil {
		return nil, errhandling.NewPersistenceError(dest.Database, dest.Table, "open", "no sink for destination type",
			fmt.Errorf("%w: %q", ErrUnknownType, destType), false)
	}
	sink, err := constructor(dest)
	if err != nil {
		return nil, errhandling.NewPersistenceError(dest.Database, dest.Table, "open", "invalid destination", err, false)
	}
	return sink, nil
}

// CreateOutputModule creates a sink for dest and binds it to dest's table.
func CreateOutputModule(dest connector.Destination) (*output.TableOutput, error) {
	sink, err := CreateSink(dest)
	if err != nil {
		return nil, err
	}
	module, err := output.NewTableOutput(sink, dest.Database, dest.Table)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return module, nil
}

// NewExecutor creates a single-use executor for one run of pipeline.
// It satisfies runtime.Builder. In dry-run mode no sink is opened.
func NewExecutor(pipeline *connector.Pipeline, dryRun bool) (*runtime.Executor, error) {
	if pipeline == nil {
		return nil, runtime.ErrNilPipeline
	}

	filterModule, err := CreateFilterModule(pipeline.Criteria, pipeline.Columns)
	if err != nil {
		return nil, err
	}

	var out output.Module
	if !dryRun {
		tableOut, err := CreateOutputModule(pipeline.Destination)
		if err != nil {
			return nil, err
		}
		out = tableOut
	}

	apps, reviews, err := CreateInputModules(pipeline.Sources)
	if err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, err
	}

	executor := runtime.NewExecutorWithModules(apps, reviews, filterModule, out, dryRun)
	return executor.WithRetry(runtime.RetryConfigFor(pipeline)), nil
}
