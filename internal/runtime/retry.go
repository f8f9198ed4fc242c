// Package runtime provides retry configuration for the load stage.
package runtime

import (
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/pkg/connector"
)

// RetryConfigFor returns the load retry configuration of a pipeline.
// Pipelines without errorHandling.retry make a single attempt.
func RetryConfigFor(pipeline *connector.Pipeline) errhandling.RetryConfig {
	if pipeline == nil || pipeline.ErrorHandling == nil || pipeline.ErrorHandling.Retry == nil {
		return errhandling.DefaultRetryConfig()
	}
	r := pipeline.ErrorHandling.Retry
	return errhandling.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		DelayMs:           r.DelayMs,
		BackoffMultiplier: r.BackoffMultiplier,
		MaxDelayMs:        r.MaxDelayMs,
	}.WithDefaults()
}
