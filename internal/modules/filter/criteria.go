package filter

import (
	"math"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

// Rating bounds accepted for both criteria and source cells.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Criteria field names used in InvalidRangeError.
const (
	FieldMinRating    = "minRating"
	FieldMinReviews   = "minReviews"
	FieldLimit        = "limit"
	FieldWhere        = "where"
	FieldOnInvalidRow = "onInvalidRow"
)

// ValidateCriteria checks the filter criteria before any data is read.
// The category must be one of the supported categories, minRating must be a
// finite number in [0, 5] and minReviews must be non-negative.
func ValidateCriteria(c connector.Criteria) error {
	if !connector.IsValidCategory(c.Category) {
		return &errhandling.InvalidCategoryError{Category: c.Category}
	}
	if math.IsNaN(c.MinRating) || math.IsInf(c.MinRating, 0) || c.MinRating < MinRating || c.MinRating > MaxRating {
		return &errhandling.InvalidRangeError{
			Field:      FieldMinRating,
			Value:      c.MinRating,
			Constraint: "a number within [0, 5]",
		}
	}
	if c.MinReviews < 0 {
		return &errhandling.InvalidRangeError{
			Field:      FieldMinReviews,
			Value:      c.MinReviews,
			Constraint: "a non-negative integer",
		}
	}
	if c.Limit < 0 {
		return &errhandling.InvalidRangeError{
			Field:      FieldLimit,
			Value:      c.Limit,
			Constraint: "a non-negative integer (0 keeps every record)",
		}
	}
	switch c.OnInvalidRow {
	case "", string(errhandling.OnErrorFail), string(errhandling.OnErrorSkip), string(errhandling.OnErrorLog):
	default:
		return &errhandling.InvalidRangeError{
			Field:      FieldOnInvalidRow,
			Value:      c.OnInvalidRow,
			Constraint: "one of fail, skip, log",
		}
	}
	return nil
}
