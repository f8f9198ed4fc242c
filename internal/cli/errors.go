// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"

	"github.com/canectors/topapps/internal/config"
	"github.com/canectors/topapps/pkg/connector"
)

// Exit codes of the topapps command.
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

// PrintParseErrors prints configuration parse errors.
func PrintParseErrors(w io.Writer, errors []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errors {
		location := formatErrorLocation(err.Path, err.Line, err.Column)
		if location != "" {
			fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", err.Message)
		}
		if verbose && err.Type != "" {
			fmt.Fprintf(w, "    Type: %s\n", err.Type)
		}
	}
}

// formatErrorLocation formats path:line:column, omitting unknown parts.
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}
	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints schema and semantic validation errors.
func PrintValidationErrors(w io.Writer, errors []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errors {
		path := err.Path
		if path == "" {
			path = "/"
		}
		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n", path, truncate(err.Message, 80))
	}
	if !quiet && !verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

// PrintConfigResult prints the errors of a failed configuration load and
// returns the matching exit code.
func PrintConfigResult(w io.Writer, result *config.Result, verbose, quiet bool) int {
	if result.HasParseErrors() {
		PrintParseErrors(w, result.ParseErrors, verbose)
		return ExitParseError
	}
	if len(result.ValidationErrors) > 0 {
		PrintValidationErrors(w, result.ValidationErrors, verbose, quiet)
		return ExitValidationError
	}
	return ExitSuccess
}

// PrintExecutionError prints the error of a failed run.
func PrintExecutionError(w io.Writer, execErr *connector.ExecutionError, verbose bool) {
	if execErr == nil {
		return
	}
	fmt.Fprintln(w, "✗ Pipeline execution failed")
	if execErr.Stage != "" {
		fmt.Fprintf(w, "  Stage: %s\n", execErr.Stage)
	}
	fmt.Fprintf(w, "  Error: %s\n", execErr.Message)
	if verbose {
		fmt.Fprintf(w, "  Code: %s\n", execErr.Code)
		if execErr.ErrorCategory != "" {
			fmt.Fprintf(w, "  Category: %s\n", execErr.ErrorCategory)
		}
		fmt.Fprintf(w, "  Retryable: %t\n", execErr.Retryable)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
