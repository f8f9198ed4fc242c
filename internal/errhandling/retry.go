// Package errhandling provides retry configuration and mechanism for pipeline execution.
// This file defines retry configuration, delay calculation and the retry executor
// callers use around the load stage.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Default retry configuration values
const (
	DefaultMaxAttempts       = 1
	DefaultDelayMs           = 1000
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 30000
	MaxRetryAttempts         = 10
	MinBackoffMultiplier     = 1.0
)

// OnErrorStrategy defines what action to take when an invalid row is found.
type OnErrorStrategy string

// Error handling strategies
const (
	// OnErrorFail stops the run and returns the error (default).
	OnErrorFail OnErrorStrategy = "fail"

	// OnErrorSkip drops the offending row and continues.
	OnErrorSkip OnErrorStrategy = "skip"

	// OnErrorLog drops the offending row, logs a warning and continues.
	OnErrorLog OnErrorStrategy = "log"
)

// ParseOnErrorStrategy parses an error strategy string.
// Returns OnErrorFail for invalid or empty input.
func ParseOnErrorStrategy(s string) OnErrorStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail", "":
		return OnErrorFail
	case "skip":
		return OnErrorSkip
	case "log":
		return OnErrorLog
	default:
		return OnErrorFail
	}
}

// RetryConfig holds retry configuration for one stage.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, the first one included.
	// Default: 1 (no retry), Max: 10
	MaxAttempts int

	// DelayMs is the initial delay between attempts in milliseconds.
	DelayMs int

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// MaxDelayMs caps the delay between attempts in milliseconds.
	MaxDelayMs int
}

// DefaultRetryConfig returns a configuration that makes a single attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		DelayMs:           DefaultDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelayMs:        DefaultMaxDelayMs,
	}
}

// WithDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) WithDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.DelayMs == 0 {
		c.DelayMs = d.DelayMs
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.MaxDelayMs == 0 {
		c.MaxDelayMs = d.MaxDelayMs
	}
	return c
}

// Validate validates the retry configuration.
// Returns an error if any value is out of valid range.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("maxAttempts must be >= 1")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.BackoffMultiplier < MinBackoffMultiplier {
		return fmt.Errorf("backoffMultiplier must be >= %v", MinBackoffMultiplier)
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	return nil
}

// CalculateDelay calculates the delay after a failed attempt (0-indexed).
// The formula is: min(delayMs * (backoffMultiplier ^ attempt), maxDelayMs)
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delayMs := float64(c.DelayMs) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) error

// RetryInfo contains information about retry attempts.
type RetryInfo struct {
	// TotalAttempts is the total number of attempts made.
	TotalAttempts int

	// TotalDuration is the total time spent including delays.
	TotalDuration time.Duration

	// Delays is the list of delays between attempts.
	Delays []time.Duration

	// Errors is the list of errors encountered.
	Errors []error
}

// RetryExecutor executes functions with retry logic.
type RetryExecutor struct {
	config    RetryConfig
	retryInfo RetryInfo
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a new retry executor with the given configuration.
// Zero fields take their defaults.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	return &RetryExecutor{
		config: config.WithDefaults(),
		sleep:  sleepContext,
	}
}

// Execute runs fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The last error is returned unmodified.
func (e *RetryExecutor) Execute(ctx context.Context, fn RetryFunc) error {
	startTime := time.Now()
	e.retryInfo = RetryInfo{}
	defer func() { e.retryInfo.TotalDuration = time.Since(startTime) }()

	var lastErr error
	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		e.retryInfo.TotalAttempts = attempt + 1
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		e.retryInfo.Errors = append(e.retryInfo.Errors, err)

		if !IsRetryable(err) || attempt+1 >= e.config.MaxAttempts {
			break
		}

		delay := e.config.CalculateDelay(attempt)
		e.retryInfo.Delays = append(e.retryInfo.Delays, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	return lastErr
}

// GetRetryInfo returns information about the last Execute call.
func (e *RetryExecutor) GetRetryInfo() RetryInfo {
	return e.retryInfo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
