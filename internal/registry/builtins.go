// Package registry provides module registries for the topapps runtime.
// This file registers all built-in modules during initialization.
package registry

import (
	"fmt"

	"github.com/canectors/topapps/internal/database"
	"github.com/canectors/topapps/internal/modules/filter"
	"github.com/canectors/topapps/internal/modules/input"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/pkg/connector"
)

// Built-in type names.
const (
	FormatCSV = "csv"

	FilterTopApps = "topApps"

	SinkSQLite   = database.DriverSQLite
	SinkPostgres = database.DriverPostgres
	SinkCSV      = "csv"
)

// DefaultDataDir is the directory used by file-backed sinks when the
// destination does not set one.
const DefaultDataDir = "data"

func init() {
	RegisterBuiltins()
}

// registerBuiltinInputModules registers all built-in source formats.
func registerBuiltinInputModules() {
	RegisterInput(FormatCSV, func(name string, cfg connector.SourceConfig) (input.Module, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("source %s: path is required", name)
		}
		return input.NewCSVInput(name, input.CSVConfig{Path: cfg.Path, Delimiter: cfg.Delimiter}), nil
	})
}

// registerBuiltinFilterModules registers all built-in filter types.
func registerBuiltinFilterModules() {
	RegisterFilter(FilterTopApps, func(criteria connector.Criteria, columns connector.ColumnMapping) (filter.Module, error) {
		return filter.NewTopAppsFilter(criteria, filter.Options{Columns: columns})
	})
}

// registerBuiltinSinks registers all built-in destination types.
func registerBuiltinSinks() {
	RegisterSink(SinkSQLite, func(dest connector.Destination) (output.Sink, error) {
		return output.NewSQLiteSink(dataDir(dest)), nil
	})

	RegisterSink(SinkPostgres, func(dest connector.Destination) (output.Sink, error) {
		dsn, err := database.ResolveConnectionString(dest.ConnectionString, dest.ConnectionStringRef)
		if err != nil {
			return nil, fmt.Errorf("postgres destination: %w", err)
		}
		return output.NewPostgresSink(dsn), nil
	})

	RegisterSink(SinkCSV, func(dest connector.Destination) (output.Sink, error) {
		return output.NewCSVSink(dataDir(dest)), nil
	})
}

func dataDir(dest connector.Destination) string {
	if dest.DataDir == "" {
		return DefaultDataDir
	}
	return dest.DataDir
}
