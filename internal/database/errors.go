// Package database provides SQL connection handling and table replacement.
// This file classifies raw driver errors into categorized, retry-aware errors.
package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Error categories for database operations
const (
	CategoryConnection  = "connection"
	CategoryQuery       = "query"
	CategoryConstraint  = "constraint"
	CategoryTransaction = "transaction"
	CategoryTimeout     = "timeout"
	CategoryNotFound    = "not_found"
	CategoryUnknown     = "unknown"
)

const maxQueryLength = 500

// DatabaseError is a categorized driver error.
//
//nolint:revive // database.DatabaseError reads fine at call sites
type DatabaseError struct {
	Category    string
	Operation   string // select, insert, create, ...
	Message     string
	Query       string // statement text, never parameter values
	ParamCount  int
	OriginalErr error
	Retryable   bool
}

func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("database %s error: %s", e.Category, e.Message)
	if e.Query != "" {
		msg = fmt.Sprintf("database %s error in %s: %s", e.Category, e.Operation, e.Message)
	}
	if e.OriginalErr != nil {
		msg += fmt.Sprintf(" (original: %v)", e.OriginalErr)
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns true if the error is transient and can be retried.
func (e *DatabaseError) IsRetryable() bool {
	return e.Retryable
}

// NewDatabaseError creates a new database error with the given details.
func NewDatabaseError(category, operation, message string, originalErr error, retryable bool) *DatabaseError {
	return &DatabaseError{
		Category:    category,
		Operation:   operation,
		Message:     message,
		OriginalErr: originalErr,
		Retryable:   retryable,
	}
}

// NewConnectionError creates a retryable connection error.
func NewConnectionError(message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryConnection, "connect", message, originalErr, true)
}

// NewQueryError creates a query error carrying the failed statement.
func NewQueryError(operation, message, query string, paramCount int, originalErr error, retryable bool) *DatabaseError {
	e := NewDatabaseError(CategoryQuery, operation, message, originalErr, retryable)
	e.Query = sanitizeQuery(query)
	e.ParamCount = paramCount
	return e
}

// NewConstraintError creates a constraint violation error.
func NewConstraintError(operation, message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryConstraint, operation, message, originalErr, false)
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(operation, message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryTimeout, operation, message, originalErr, true)
}

// rule maps a family of driver failures to a category.
type rule struct {
	category  string
	message   string
	retryable bool

	// pgClasses and pgCodes match SQLSTATE values of *pq.Error.
	pgClasses []pq.ErrorClass
	pgCodes   []pq.ErrorCode

	// fragments match the lowercased error text of any driver.
	fragments []string
	// sqlite fragments only apply to the sqlite driver.
	sqlite []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		category:  CategoryTimeout,
		message:   "operation timed out",
		retryable: true,
		pgCodes:   []pq.ErrorCode{"57014"}, // query_canceled
		fragments: []string{"timeout", "timed out", "deadline exceeded"},
	},
	{
		category:  CategoryConnection,
		message:   "connection failed or lost",
		retryable: true,
		pgClasses: []pq.ErrorClass{"08", "53", "57P"},
		fragments: []string{
			"connection refused", "connection reset", "connection closed", "no such host",
			"network is unreachable", "broken pipe", "bad connection", "unexpected eof",
			"server closed", "dial tcp", "connect: ", "too many open files",
		},
		sqlite: []string{"unable to open database"},
	},
	{
		category:  CategoryConstraint,
		message:   "constraint violation",
		pgClasses: []pq.ErrorClass{"23"},
		fragments: []string{
			"unique constraint", "duplicate key", "violates", "foreign key constraint",
			"cannot be null", "integrity constraint", "constraint violation",
		},
		sqlite: []string{"sqlite_constraint", "constraint failed"},
	},
	{
		category:  CategoryQuery,
		message:   "lock conflict, retry later",
		retryable: true,
		pgClasses: []pq.ErrorClass{"40"},
		fragments: []string{"deadlock", "lock wait timeout", "could not serialize"},
		// SQLITE_BUSY and SQLITE_LOCKED clear once the other writer finishes.
		sqlite: []string{"database is locked", "sqlite_busy", "database table is locked"},
	},
	{
		category:  CategoryNotFound,
		message:   "table or schema does not exist",
		pgCodes:   []pq.ErrorCode{"42P01", "3F000"},
		fragments: []string{"does not exist"},
		sqlite:    []string{"no such table"},
	},
	{
		category:  CategoryQuery,
		message:   "SQL syntax error",
		pgCodes:   []pq.ErrorCode{"42601"},
		fragments: []string{"syntax error", "at or near"},
		sqlite:    []string{"incomplete input"},
	},
}

func (r rule) matches(pqErr *pq.Error, msg, driver string) bool {
	if pqErr != nil {
		for _, class := range r.pgClasses {
			if strings.HasPrefix(string(pqErr.Code), string(class)) {
				return true
			}
		}
		for _, code := range r.pgCodes {
			if pqErr.Code == code {
				return true
			}
		}
	}
	for _, f := range r.fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	if driver == DriverSQLite || driver == "" {
		for _, f := range r.sqlite {
			if strings.Contains(msg, f) {
				return true
			}
		}
	}
	return false
}

func matchRule(err error, driver string) (rule, bool) {
	var pqErr *pq.Error
	errors.As(err, &pqErr)
	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.matches(pqErr, msg, driver) {
			return r, true
		}
	}
	return rule{}, false
}

// ClassifyDatabaseError classifies a raw driver error into a DatabaseError.
// Postgres errors are matched on their SQLSTATE, others on their text.
func ClassifyDatabaseError(err error, driver, operation, query string, paramCount int) *DatabaseError {
	if err == nil {
		return nil
	}

	r, ok := matchRule(err, driver)
	if !ok {
		return NewQueryError(operation, err.Error(), query, paramCount, err, false)
	}
	switch r.category {
	case CategoryQuery:
		return NewQueryError(operation, r.message, query, paramCount, err, r.retryable)
	case CategoryConnection:
		return NewConnectionError(r.message, err)
	default:
		return NewDatabaseError(r.category, operation, r.message, err, r.retryable)
	}
}

// sanitizeQuery truncates long statements before they are logged.
func sanitizeQuery(query string) string {
	if len(query) > maxQueryLength {
		return query[:maxQueryLength] + "... (truncated)"
	}
	return query
}

// GetDatabaseError extracts the DatabaseError from an error chain.
func GetDatabaseError(err error) *DatabaseError {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return nil
}

// IsNotFound reports whether err is a classified missing table error.
func IsNotFound(err error) bool {
	dbErr := GetDatabaseError(err)
	return dbErr != nil && dbErr.Category == CategoryNotFound
}

// IsRetryableError reports whether err is transient. Unclassified errors
// are matched against the driver rules.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if dbErr := GetDatabaseError(err); dbErr != nil {
		return dbErr.Retryable
	}
	r, ok := matchRule(err, "")
	return ok && r.retryable
}
