// Package registry provides module registries for input, filter, and output modules.
//
// # Overview
//
// Modules register their constructors by type string instead of being picked
// by hard-coded switch statements. A new source format or sink type is added
// by registering a constructor, without modifying the factory.
//
// # Adding a New Sink
//
// To add a new sink type (e.g., a "parquet" sink):
//
//  1. Implement output.Sink
//  2. Create a constructor matching SinkConstructor
//  3. Register the constructor in an init() function
//
// Example:
//
//	func init() {
//	    registry.RegisterSink("parquet", func(dest connector.Destination) (output.Sink, error) {
//	        return NewParquetSink(dest.DataDir), nil
//	    })
//	}
//
// # Built-in Modules
//
// The csv input, the topApps filter and the sqlite, postgres and csv sinks are
// registered automatically at startup via init() in builtins.go.
package registry

import (
	"sort"
	"sync"

	"github.com/canectors/topapps/internal/modules/filter"
	"github.com/canectors/topapps/internal/modules/input"
	"github.com/canectors/topapps/internal/modules/output"
	"github.com/canectors/topapps/pkg/connector"
)

// InputConstructor creates an input module for one named source.
type InputConstructor func(name string, cfg connector.SourceConfig) (input.Module, error)

// FilterConstructor creates a filter module from criteria and column mapping.
// Returns an error if the criteria are invalid.
type FilterConstructor func(criteria connector.Criteria, columns connector.ColumnMapping) (filter.Module, error)

// SinkConstructor creates a sink for a destination.
// Returns an error if the destination configuration is invalid.
type SinkConstructor func(dest connector.Destination) (output.Sink, error)

var (
	inputMu       sync.RWMutex
	inputRegistry = make(map[string]InputConstructor)
)

var (
	filterMu       sync.RWMutex
	filterRegistry = make(map[string]FilterConstructor)
)

var (
	sinkMu       sync.RWMutex
	sinkRegistry = make(map[string]SinkConstructor)
)

// RegisterInput registers an input module constructor by source format.
// Calling RegisterInput with an already registered format overwrites the
// previous constructor. Safe for concurrent use.
func RegisterInput(format string, constructor InputConstructor) {
	inputMu.Lock()
	defer inputMu.Unlock()
	inputRegistry[format] = constructor
}

// RegisterFilter registers a filter module constructor by type string.
// Calling RegisterFilter with an already registered type overwrites the
// previous constructor. Safe for concurrent use.
func RegisterFilter(filterType string, constructor FilterConstructor) {
	filterMu.Lock()
	defer filterMu.Unlock()
	filterRegistry[filterType] = constructor
}

// RegisterSink registers a sink constructor by destination type.
// Calling RegisterSink with an already registered type overwrites the
// previous constructor. Safe for concurrent use.
func RegisterSink(destType string, constructor SinkConstructor) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinkRegistry[destType] = constructor
}

// GetInputConstructor returns the registered constructor for a source format.
// Returns nil if no constructor is registered.
func GetInputConstructor(format string) InputConstructor {
	inputMu.RLock()
	defer inputMu.RUnlock()
	return inputRegistry[format]
}

// GetFilterConstructor returns the registered constructor for a filter type.
// Returns nil if no constructor is registered.
func GetFilterConstructor(filterType string) FilterConstructor {
	filterMu.RLock()
	defer filterMu.RUnlock()
	return filterRegistry[filterType]
}

// GetSinkConstructor returns the registered constructor for a destination type.
// Returns nil if no constructor is registered.
func GetSinkConstructor(destType string) SinkConstructor {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sinkRegistry[destType]
}

// ListInputTypes returns all registered source formats, sorted.
func ListInputTypes() []string {
	inputMu.RLock()
	defer inputMu.RUnlock()
	return sortedKeys(inputRegistry)
}

// ListFilterTypes returns all registered filter types, sorted.
func ListFilterTypes() []string {
	filterMu.RLock()
	defer filterMu.RUnlock()
	return sortedKeys(filterRegistry)
}

// ListSinkTypes returns all registered destination types, sorted.
func ListSinkTypes() []string {
	sinkMu.RLock()
	defer sinkMu.RUnlock()
	return sortedKeys(sinkRegistry)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClearRegistries removes all registered constructors.
// This is intended for testing purposes only.
func ClearRegistries() {
	inputMu.Lock()
	inputRegistry = make(map[string]InputConstructor)
	inputMu.Unlock()

	filterMu.Lock()
	filterRegistry = make(map[string]FilterConstructor)
	filterMu.Unlock()

	sinkMu.Lock()
	sinkRegistry = make(map[string]SinkConstructor)
	sinkMu.Unlock()
}

// RegisterBuiltins registers the built-in modules. It is called from init()
// and may be called again after ClearRegistries in tests.
func RegisterBuiltins() {
	registerBuiltinInputModules()
	registerBuiltinFilterModules()
	registerBuiltinSinks()
}
