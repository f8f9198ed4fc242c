// Package filter provides the transform stage of the pipeline.
//
// The top-apps filter joins extracted application rows with their review
// rows, keeps the applications matching the requested category, rating and
// review-count thresholds, and returns them ranked. Transform is a pure
// function of its inputs: it never touches the destination and never
// mutates the tables it reads.
package filter

import (
	"github.com/canectors/topapps/internal/dataset"
	"github.com/canectors/topapps/pkg/connector"
)

// Module represents a filter module that turns extracted tables into a result set.
type Module interface {
	// Process joins, filters and ranks the extracted tables.
	Process(apps, reviews *dataset.Table) (*connector.ResultSet, error)
}
