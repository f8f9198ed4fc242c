// Package errhandling provides error types, classification, and retry utilities.
// This file defines the pipeline error taxonomy (data source, invalid category,
// invalid range, persistence) and the classification helpers used by callers
// to decide how a failure is reported and whether it may be retried.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory represents the type/category of an error.
// Categories help determine the appropriate error handling strategy.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryDataSource represents extract-time errors: missing, unreadable
	// or malformed sources. Data source errors are fatal.
	CategoryDataSource ErrorCategory = "data_source"

	// CategoryInvalidCategory represents a filter category outside the
	// supported set. Fatal.
	CategoryInvalidCategory ErrorCategory = "invalid_category"

	// CategoryInvalidRange represents a numeric filter argument out of range.
	// Fatal.
	CategoryInvalidRange ErrorCategory = "invalid_range"

	// CategoryPersistence represents load-time write or read failures.
	// Retryability depends on the underlying cause.
	CategoryPersistence ErrorCategory = "persistence"

	// CategoryTimeout represents a deadline exceeded while running a stage.
	// Timeouts are transient and retryable.
	CategoryTimeout ErrorCategory = "timeout"

	// CategoryCanceled represents a caller-initiated cancellation.
	CategoryCanceled ErrorCategory = "canceled"

	// CategoryUnknown represents unclassified errors. Unknown errors are not
	// retried: the pipeline only retries failures it can explain.
	CategoryUnknown ErrorCategory = "unknown"
)

// Sentinel errors matched by the typed errors below through errors.Is.
var (
	ErrDataSource      = errors.New("data source error")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidRange    = errors.New("invalid range")
	ErrPersistence     = errors.New("persistence error")
)

// DataSourceError reports a missing, unreadable or malformed source.
type DataSourceError struct {
	// Source is the path or name of the source
	Source string
	// Row is the 1-based data row (header excluded), 0 when not row specific
	Row int
	// Column is the offending column, empty when not column specific
	Column string
	// Message describes the failure
	Message string
	// Err is the underlying cause, if any
	Err error
}

// NewDataSourceError creates a DataSourceError for source.
func NewDataSourceError(source, message string, err error) *DataSourceError {
	return &DataSourceError{Source: source, Message: message, Err: err}
}

func (e *DataSourceError) Error() string {
	var sb strings.Builder
	sb.WriteString("data source ")
	if e.Source != "" {
		sb.WriteString(fmt.Sprintf("%q ", e.Source))
	}
	if e.Row > 0 {
		sb.WriteString(fmt.Sprintf("row %d ", e.Row))
	}
	if e.Column != "" {
		sb.WriteString(fmt.Sprintf("column %q ", e.Column))
	}
	sb.WriteString("error: ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// Is matches ErrDataSource.
func (e *DataSourceError) Is(target error) bool { return target == ErrDataSource }

// InvalidCategoryError reports a category outside the supported set.
type InvalidCategoryError struct {
	Category string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category %q", e.Category)
}

// Is matches ErrInvalidCategory.
func (e *InvalidCategoryError) Is(target error) bool { return target == ErrInvalidCategory }

// InvalidRangeError reports a filter argument outside its allowed range.
type InvalidRangeError struct {
	// Field is the criteria field name (minRating, minReviews, limit, where)
	Field string
	// Value is the rejected value
	Value interface{}
	// Constraint describes the allowed range
	Constraint string
	// Err is the underlying cause, if any
	Err error
}

func (e *InvalidRangeError) Error() string {
	msg := fmt.Sprintf("invalid %s %v: must be %s", e.Field, e.Value, e.Constraint)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRangeError) Unwrap() error { return e.Err }

// Is matches ErrInvalidRange.
func (e *InvalidRangeError) Is(target error) bool { return target == ErrInvalidRange }

// PersistenceError reports a failure to write or read a destination table.
type PersistenceError struct {
	// Database is the logical database identifier
	Database string
	// Table is the logical table identifier
	Table string
	// Operation is the failed operation (open, write, read, ...)
	Operation string
	// Message describes the failure
	Message string
	// Retryable indicates whether the cause is transient
	Retryable bool
	// Err is the underlying cause, if any
	Err error
}

// NewPersistenceError creates a PersistenceError for the (database, table) pair.
func NewPersistenceError(database, table, operation, message string, err error, retryable bool) *PersistenceError {
	return &PersistenceError{
		Database:  database,
		Table:     table,
		Operation: operation,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

func (e *PersistenceError) Error() string {
	var sb strings.Builder
	sb.WriteString("persistence error")
	if e.Database != "" || e.Table != "" {
		sb.WriteString(fmt.Sprintf(" on %s.%s", e.Database, e.Table))
	}
	if e.Operation != "" {
		sb.WriteString(" during ")
		sb.WriteString(e.Operation)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyError classifies any error into a ClassifiedError.
// Typed pipeline errors keep their category; context errors map to
// timeout/canceled; everything else is CategoryUnknown and not retryable.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category:  CategoryUnknown,
			Retryable: false,
			Message:   "nil error",
		}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var (
		dsErr  *DataSourceError
		catErr *InvalidCategoryError
		rngErr *InvalidRangeError
		perErr *PersistenceError
	)
	switch {
	case errors.As(err, &dsErr):
		return &ClassifiedError{Category: CategoryDataSource, Message: err.Error(), OriginalErr: err}
	case errors.As(err, &catErr):
		return &ClassifiedError{Category: CategoryInvalidCategory, Message: err.Error(), OriginalErr: err}
	case errors.As(err, &rngErr):
		return &ClassifiedError{Category: CategoryInvalidRange, Message: err.Error(), OriginalErr: err}
	case errors.As(err, &perErr):
		return &ClassifiedError{
			Category:    CategoryPersistence,
			Retryable:   perErr.Retryable,
			Message:     err.Error(),
			OriginalErr: err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{Category: CategoryTimeout, Retryable: true, Message: "deadline exceeded", OriginalErr: err}
	case errors.Is(err, context.Canceled):
		return &ClassifiedError{Category: CategoryCanceled, Message: "context canceled", OriginalErr: err}
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   false,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// IsRetryable returns true if the error is classified as retryable.
// Nil errors return false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsCriteriaError reports whether err was caused by invalid filter criteria.
func IsCriteriaError(err error) bool {
	return errors.Is(err, ErrInvalidCategory) || errors.Is(err, ErrInvalidRange)
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	return ClassifyError(err).Category
}
