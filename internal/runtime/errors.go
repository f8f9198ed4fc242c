// Package runtime provides error codes and execution error building.
package runtime

import (
	"errors"
	"fmt"

	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

// Error codes for pipeline execution errors
const (
	ErrCodeExtractFailed   = "EXTRACT_FAILED"
	ErrCodeTransformFailed = "TRANSFORM_FAILED"
	ErrCodeLoadFailed      = "LOAD_FAILED"
	ErrCodeInvalidInput    = "INVALID_INPUT"
)

// Stage names
const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

// Common errors
var (
	// ErrNilPipeline is returned when pipeline configuration is nil
	ErrNilPipeline = errors.New("pipeline configuration is nil")

	// ErrNilInputModule is returned when the apps input module is nil
	ErrNilInputModule = errors.New("input module is nil")

	// ErrNilFilterModule is returned when the filter module is nil
	ErrNilFilterModule = errors.New("filter module is nil")

	// ErrNilOutputModule is returned when output module is nil outside dry-run
	ErrNilOutputModule = errors.New("output module is nil")
)

// buildExecutionError creates an ExecutionError with classified category.
func buildExecutionError(code, stage string, err error) *connector.ExecutionError {
	cl := errhandling.ClassifyError(err)
	return &connector.ExecutionError{
		Code:          code,
		Message:       err.Error(),
		Stage:         stage,
		ErrorCategory: string(cl.Category),
		Retryable:     cl.Retryable,
	}
}

// stageError wraps err with the stage it failed in. The typed error stays
// reachable through errors.Is and errors.As.
func stageError(stage string, err error) error {
	return fmt.Errorf("%s stage: %w", stage, err)
}

// ErrorCode returns the execution error code of a failed result, or "".
func ErrorCode(result *connector.ExecutionResult) string {
	if result == nil || result.Error == nil {
		return ""
	}
	return result.Error.Code
}
