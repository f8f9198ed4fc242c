// Package input provides implementations for input modules.
// Input modules are responsible for reading a data source into a dataset.Table.
package input

import (
	"context"

	"github.com/canectors/topapps/internal/dataset"
)

// Module represents an input module that reads a tabular data source.
type Module interface {
	// Fetch reads the whole source.
	// The context can be used to cancel long-running reads.
	Fetch(ctx context.Context) (*dataset.Table, error)
	// Close releases any resources held by the module.
	Close() error
}
