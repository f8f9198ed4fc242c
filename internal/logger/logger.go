// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across the pipeline.
//
// This package provides execution context helpers for consistent pipeline logging,
// including helpers for run start/end, stage start/end, and metrics logging.
// All helpers use structured logging with consistent field names (snake_case).
//
// Logs are written to stderr so that command output on stdout stays parseable.
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Human-readable console output with colors and prefixes
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

func init() {
	Logger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetOutput redirects log output and resets the logger to JSON at the given level.
func SetOutput(w io.Writer, level slog.Level) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
	SetLevelAndFormat(level, FormatJSON)
}

func currentOutput() io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	return output
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// WithPipeline returns a logger with pipeline context.
func WithPipeline(pipelineID string) *slog.Logger {
	return Logger.With("pipeline_id", pipelineID)
}

// =============================================================================
// Execution Context Types
// =============================================================================

// ExecutionContext contains structured context for execution logging.
type ExecutionContext struct {
	// PipelineID is the unique identifier of the pipeline
	PipelineID string
	// PipelineName is the human-readable name of the pipeline
	PipelineName string
	// Stage is the current execution stage (extract, transform, load)
	Stage string
	// Source is the source being extracted, when Stage is extract
	Source string
	// Destination is the destination key, when Stage is load
	Destination string
	// DryRun indicates if this is a dry-run execution
	DryRun bool
}

// ExecutionError contains structured error information for logging.
type ExecutionError struct {
	// Code is the error code (e.g., EXTRACT_FAILED, LOAD_FAILED)
	Code string
	// Message is the human-readable error message
	Message string
}

// ErrorContext contains structured context for error logging.
// Use this with LogError() for consistent, actionable error logs.
type ErrorContext struct {
	PipelineID   string
	PipelineName string
	Stage        string

	ErrorCode     string
	ErrorCategory string
	Err           error

	Database string
	Table    string
	Source   string
	Attempt  int
	Duration time.Duration

	// Extra holds additional context as key-value pairs
	Extra map[string]interface{}
}

// ExecutionMetrics contains performance metrics for execution logging.
type ExecutionMetrics struct {
	TotalDuration     time.Duration
	ExtractDuration   time.Duration
	TransformDuration time.Duration
	LoadDuration      time.Duration
	AppsExtracted     int
	ReviewsExtracted  int
	RecordsProcessed  int
	LoadAttempts      int
}

// =============================================================================
// Execution Context Helpers
// =============================================================================

// WithExecution returns a logger with execution context attached.
// Only non-empty fields are included in the log output.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(buildContextAttrs(ctx)...)
}

// LogExecutionStart logs the start of a pipeline run.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", buildContextAttrs(ctx)...)
}

// LogExecutionEnd logs the completion of a pipeline run with its final status.
func LogExecutionEnd(ctx ExecutionContext, status string, recordsProcessed int, duration time.Duration) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("records_processed", recordsProcessed),
		slog.Duration("duration", duration),
	)
	Logger.Info("execution completed", attrs...)
}

// LogStageStart logs the start of a pipeline stage (extract, transform, load).
func LogStageStart(ctx ExecutionContext) {
	Logger.Info("stage started", buildContextAttrs(ctx)...)
}

// LogStageEnd logs the completion of a pipeline stage.
// If err is non-nil, logs as an error with error details.
func LogStageEnd(ctx ExecutionContext, recordCount int, duration time.Duration, err *ExecutionError) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.Int("record_count", recordCount),
		slog.Duration("duration", duration),
	)

	if err != nil {
		attrs = append(attrs,
			slog.String("error_code", err.Code),
			slog.String("error", err.Message),
		)
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Info("stage completed", attrs...)
}

// LogMetrics logs execution performance metrics.
func LogMetrics(ctx ExecutionContext, metrics ExecutionMetrics) {
	attrs := buildContextAttrs(ctx)
	attrs = append(attrs,
		slog.Duration("total_duration", metrics.TotalDuration),
		slog.Duration("extract_duration", metrics.ExtractDuration),
		slog.Duration("transform_duration", metrics.TransformDuration),
		slog.Duration("load_duration", metrics.LoadDuration),
		slog.Int("apps_extracted", metrics.AppsExtracted),
		slog.Int("reviews_extracted", metrics.ReviewsExtracted),
		slog.Int("records_processed", metrics.RecordsProcessed),
		slog.Int("load_attempts", metrics.LoadAttempts),
	)
	Logger.Info("execution metrics", attrs...)
}

// attrs collects slog attributes, skipping zero values.
type attrs []any

func (a *attrs) str(key, value string) {
	if value != "" {
		*a = append(*a, slog.String(key, value))
	}
}

func (a *attrs) num(key string, value int) {
	if value > 0 {
		*a = append(*a, slog.Int(key, value))
	}
}

// LogError logs an error with full execution context, including the chain
// of wrapped errors.
func LogError(message string, errCtx ErrorContext) {
	a := make(attrs, 0, 16)
	a.str("pipeline_id", errCtx.PipelineID)
	a.str("pipeline_name", errCtx.PipelineName)
	a.str("stage", errCtx.Stage)
	a.str("error_code", errCtx.ErrorCode)
	a.str("error_category", errCtx.ErrorCategory)
	if err := errCtx.Err; err != nil {
		a.str("error", err.Error())
		a.str("error_type", fmt.Sprintf("%T", err))

		var chain []string
		for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
			chain = append(chain, cur.Error())
		}
		if len(chain) > 0 {
			a.str("error_chain", strings.Join(append([]string{err.Error()}, chain...), " -> "))
		}
	}
	a.str("source", errCtx.Source)
	a.str("database", errCtx.Database)
	a.str("table", errCtx.Table)
	a.num("attempt", errCtx.Attempt)
	if errCtx.Duration > 0 {
		a = append(a, slog.Duration("duration", errCtx.Duration))
	}
	for k, v := range errCtx.Extra {
		a = append(a, slog.Any(k, v))
	}

	Logger.Error(message, a...)
}

// buildContextAttrs turns an ExecutionContext into slog attributes.
// pipeline_id is always present; other fields only when set.
func buildContextAttrs(ctx ExecutionContext) []any {
	a := make(attrs, 0, 8)
	a = append(a, slog.String("pipeline_id", ctx.PipelineID))
	a.str("pipeline_name", ctx.PipelineName)
	a.str("stage", ctx.Stage)
	a.str("source", ctx.Source)
	a.str("destination", ctx.Destination)
	if ctx.DryRun {
		a = append(a, slog.Bool("dry_run", true))
	}
	return a
}

// =============================================================================
// Human-Readable Log Format Support
// =============================================================================

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat parses "json" or "human". Unknown values return FormatJSON.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "human") {
		return FormatHuman
	}
	return FormatJSON
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(level slog.Level, format OutputFormat) {
	w := currentOutput()
	switch format {
	case FormatHuman:
		Logger = slog.New(NewHumanHandler(w, &HumanHandlerOptions{
			Level:     level,
			UseColors: isTerminal(w),
		}))
	default:
		Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		}))
	}
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes (auto-detected by default)
	UseColors bool
}

// HumanHandler is a slog handler that outputs human-readable log messages.
type HumanHandler struct {
	opts   HumanHandlerOptions
	writer io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{
		opts:   *opts,
		writer: w,
		mu:     &sync.Mutex{},
	}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// maxInlineAttrs is the number of attributes printed on one line.
const maxInlineAttrs = 5

// Handle outputs a log record in human-readable format.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder

	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(h.levelPrefix(r.Level, r.Message))
	sb.WriteString(" ")
	sb.WriteString(r.Message)

	keyAttrs := make([]string, 0, len(h.attrs)+r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		keyAttrs = append(keyAttrs, formatAttr(a))
		return true
	})
	for _, a := range h.attrs {
		keyAttrs = append(keyAttrs, formatAttr(a))
	}

	if len(keyAttrs) > 0 {
		n := len(keyAttrs)
		if n > maxInlineAttrs {
			n = maxInlineAttrs
		}
		sb.WriteString(" ")
		sb.WriteString(strings.Join(keyAttrs[:n], " "))
		if len(keyAttrs) > maxInlineAttrs {
			sb.WriteString(fmt.Sprintf(" (+%d more)", len(keyAttrs)-maxInlineAttrs))
		}
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &HumanHandler{opts: h.opts, writer: h.writer, mu: h.mu, attrs: merged}
}

// WithGroup returns the handler unchanged; groups are flattened in human output.
func (h *HumanHandler) WithGroup(_ string) slog.Handler {
	return h
}

// levelPrefix returns a human-readable prefix for the level, using ✓ for completions.
func (h *HumanHandler) levelPrefix(level slog.Level, message string) string {
	const (
		colorReset  = "\033[0m"
		colorRed    = "\033[31m"
		colorYellow = "\033[33m"
		colorGreen  = "\033[32m"
		colorCyan   = "\033[36m"
	)

	lower := strings.ToLower(message)
	isSuccess := strings.Contains(lower, "completed") || strings.Contains(lower, "succeeded")

	var prefix, color string
	switch {
	case level >= slog.LevelError:
		prefix, color = "✗", colorRed
	case level >= slog.LevelWarn:
		prefix, color = "⚠", colorYellow
	case level >= slog.LevelInfo && isSuccess:
		prefix, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		prefix, color = "ℹ", colorCyan
	default:
		prefix, color = "·", colorReset
	}

	if h.opts.UseColors {
		return color + prefix + colorReset
	}
	return prefix
}

// formatAttr formats a single attribute for display.
func formatAttr(a slog.Attr) string {
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return fmt.Sprintf("%s=%s", a.Key, FormatDuration(v))
	case float64:
		return fmt.Sprintf("%s=%.2f", a.Key, v)
	default:
		return fmt.Sprintf("%s=%v", a.Key, v)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// FormatMetricsHuman formats execution metrics in a human-readable way.
func FormatMetricsHuman(metrics ExecutionMetrics) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Selected %d of %d apps in %s",
		metrics.RecordsProcessed,
		metrics.AppsExtracted,
		FormatDuration(metrics.TotalDuration)))
	if metrics.LoadAttempts > 1 {
		sb.WriteString(fmt.Sprintf(" (%d load attempts)", metrics.LoadAttempts))
	}
	return sb.String()
}
