// Package connector provides public types for the top-apps pipeline.
// This package is intended to be importable by external projects that need
// to drive the pipeline or consume its results.
package connector

import "time"

// Pipeline represents a complete pipeline configuration.
// It names the two sources, the filter criteria and the destination
// required to execute one extract → transform → load run.
type Pipeline struct {
	// ID is the unique identifier for this pipeline
	ID string `json:"id"`

	// Name is the human-readable name of the pipeline
	Name string `json:"name"`

	// Description provides additional context about the pipeline
	Description string `json:"description,omitempty"`

	// Version is the pipeline configuration version
	Version string `json:"version"`

	// Sources defines the apps and reviews inputs
	Sources Sources `json:"sources"`

	// Columns maps logical fields to physical column names
	Columns ColumnMapping `json:"columns"`

	// Criteria holds the filter criteria for the transform stage
	Criteria Criteria `json:"criteria"`

	// Destination defines where the result set is loaded
	Destination Destination `json:"destination"`

	// Schedule defines the CRON expression for periodic execution
	Schedule string `json:"schedule,omitempty"`

	// ErrorHandling configures caller-level retry of the load stage
	ErrorHandling *ErrorHandling `json:"errorHandling,omitempty"`

	// Cache configures the results cache used by long-running callers
	Cache *CacheConfig `json:"cache,omitempty"`

	// Enabled indicates whether the pipeline is active
	Enabled bool `json:"enabled"`
}

// Sources holds the two delimited inputs of a run.
type Sources struct {
	Apps    SourceConfig `json:"apps"`
	Reviews SourceConfig `json:"reviews"`
}

// SourceConfig describes one delimited tabular file.
type SourceConfig struct {
	// Path is the file path of the CSV source
	Path string `json:"path"`

	// Format selects the input module. Empty means "csv".
	Format string `json:"format,omitempty"`

	// Delimiter is a single character, or "auto" to sniff ',', ';' and tab.
	// Empty means ','.
	Delimiter string `json:"delimiter,omitempty"`
}

// ColumnMapping maps logical record fields to normalized header names.
// Empty fields fall back to DefaultColumnMapping.
type ColumnMapping struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	Category     string `json:"category,omitempty"`
	Rating       string `json:"rating,omitempty"`
	Reviews      string `json:"reviews,omitempty"`
	ReviewID     string `json:"reviewId,omitempty"`
	ReviewCount  string `json:"reviewCount,omitempty"`
	Polarity     string `json:"polarity,omitempty"`
	Subjectivity string `json:"subjectivity,omitempty"`
	Sentiment    string `json:"sentiment,omitempty"`
}

// DefaultColumnMapping returns the column names used by the Google Play
// style apps_data.csv / review_data.csv pair.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		ID:           "app",
		Category:     "category",
		Rating:       "rating",
		Reviews:      "reviews",
		ReviewID:     "app",
		Polarity:     "sentiment_polarity",
		Subjectivity: "sentiment_subjectivity",
		Sentiment:    "sentiment",
	}
}

// WithDefaults returns a copy of m where every empty field is taken from
// DefaultColumnMapping. Name and ReviewCount stay optional.
func (m ColumnMapping) WithDefaults() ColumnMapping {
	d := DefaultColumnMapping()
	if m.ID == "" {
		m.ID = d.ID
	}
	if m.Category == "" {
		m.Category = d.Category
	}
	if m.Rating == "" {
		m.Rating = d.Rating
	}
	if m.Reviews == "" {
		m.Reviews = d.Reviews
	}
	if m.ReviewID == "" {
		m.ReviewID = d.ReviewID
	}
	if m.Polarity == "" {
		m.Polarity = d.Polarity
	}
	if m.Subjectivity == "" {
		m.Subjectivity = d.Subjectivity
	}
	if m.Sentiment == "" {
		m.Sentiment = d.Sentiment
	}
	return m
}

// Criteria holds the filter criteria of one transform.
type Criteria struct {
	// Category is matched exactly against the apps category column
	Category string `json:"category"`

	// MinRating is the inclusive lower bound on rating, in [0, 5]
	MinRating float64 `json:"minRating"`

	// MinReviews is the inclusive lower bound on the apps review count
	MinReviews int64 `json:"minReviews"`

	// Where is an optional boolean expression applied after the core filters
	Where string `json:"where,omitempty"`

	// Limit keeps only the first N ranked records (0 keeps all)
	Limit int `json:"limit,omitempty"`

	// Deduplicate keeps only the first occurrence of each app identifier
	Deduplicate bool `json:"deduplicate,omitempty"`

	// OnInvalidRow is "fail" (default), "skip" or "log"
	OnInvalidRow string `json:"onInvalidRow,omitempty"`
}

// Destination names the (database, table) pair a result set is loaded into.
type Destination struct {
	// Type is the sink type ("sqlite", "postgres", "csv")
	Type string `json:"type"`

	// Database is the logical database identifier
	Database string `json:"database"`

	// Table is the logical table identifier
	Table string `json:"table"`

	// DataDir is the directory holding file-backed sinks (sqlite, csv)
	DataDir string `json:"dataDir,omitempty"`

	// ConnectionString is the DSN for server-backed sinks (postgres)
	ConnectionString string `json:"connectionString,omitempty"`

	// ConnectionStringRef is a ${ENV_VAR} reference resolved at sink creation
	ConnectionStringRef string `json:"connectionStringRef,omitempty"`
}

// Key identifies the destination for load serialization.
func (d Destination) Key() string {
	return d.Type + ":" + d.Database + "." + d.Table
}

// ErrorHandling defines caller-level retry behavior.
type ErrorHandling struct {
	Retry *RetrySettings `json:"retry,omitempty"`
}

// RetrySettings configures retries of the load stage.
type RetrySettings struct {
	MaxAttempts       int     `json:"maxAttempts"`
	DelayMs           int     `json:"delayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	MaxDelayMs        int     `json:"maxDelayMs"`
}

// CacheConfig configures the results cache.
type CacheConfig struct {
	TTLSeconds int `json:"ttlSeconds"`
	Size       int `json:"size"`
}

// ExecutionResult represents the result of a pipeline execution.
type ExecutionResult struct {
	// PipelineID is the ID of the executed pipeline
	PipelineID string `json:"pipelineId"`

	// Status is the execution status ("success", "error")
	Status string `json:"status"`

	// StartedAt is when execution started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when execution completed
	CompletedAt time.Time `json:"completedAt"`

	// Criteria are the criteria the run was executed with
	Criteria Criteria `json:"criteria"`

	// Destination is where the result set was (or would have been) loaded
	Destination Destination `json:"destination"`

	// AppsExtracted is the number of rows read from the apps source
	AppsExtracted int `json:"appsExtracted"`

	// ReviewsExtracted is the number of rows read from the reviews source
	ReviewsExtracted int `json:"reviewsExtracted"`

	// RecordsProcessed is the number of records in the result set
	RecordsProcessed int `json:"recordsProcessed"`

	// Loaded reports whether the load stage completed
	Loaded bool `json:"loaded"`

	// DryRun reports whether the load stage was skipped on purpose
	DryRun bool `json:"dryRun,omitempty"`

	// LoadAttempts is the number of load attempts made
	LoadAttempts int `json:"loadAttempts,omitempty"`

	// Timings holds per-stage durations
	Timings StageTimings `json:"timings"`

	// Results is the transformed result set. It stays set when load fails
	// so the caller can retry the load.
	Results *ResultSet `json:"results,omitempty"`

	// Summary holds aggregate statistics over Results
	Summary *Summary `json:"summary,omitempty"`

	// Error contains error details if execution failed
	Error *ExecutionError `json:"error,omitempty"`
}

// StageTimings holds the duration of each stage.
type StageTimings struct {
	Extract   time.Duration `json:"extract"`
	Transform time.Duration `json:"transform"`
	Load      time.Duration `json:"load"`
}

// ExecutionError contains details about an execution failure.
type ExecutionError struct {
	// Code is the error code
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Stage is the stage where the error occurred
	Stage string `json:"stage,omitempty"`

	// ErrorCategory is the classified category (data_source, invalid_category, ...)
	ErrorCategory string `json:"errorCategory,omitempty"`

	// Retryable reports whether retrying the failed stage may succeed
	Retryable bool `json:"retryable"`
}
