package errhandling

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseOnErrorStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want OnErrorStrategy
	}{
		{"", OnErrorFail},
		{"fail", OnErrorFail},
		{"SKIP", OnErrorSkip},
		{" log ", OnErrorLog},
		{"whatever", OnErrorFail},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseOnErrorStrategy(tt.in); got != tt.want {
				t.Errorf("ParseOnErrorStrategy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"defaults", DefaultRetryConfig(), false},
		{"zero attempts", RetryConfig{MaxAttempts: 0, BackoffMultiplier: 2}, true},
		{"too many attempts", RetryConfig{MaxAttempts: 11, BackoffMultiplier: 2}, true},
		{"negative delay", RetryConfig{MaxAttempts: 2, DelayMs: -1, BackoffMultiplier: 2}, true},
		{"low multiplier", RetryConfig{MaxAttempts: 2, BackoffMultiplier: 0.5}, true},
		{"negative max delay", RetryConfig{MaxAttempts: 2, BackoffMultiplier: 1, MaxDelayMs: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryConfig_CalculateDelay(t *testing.T) {
	c := RetryConfig{MaxAttempts: 5, DelayMs: 100, BackoffMultiplier: 2, MaxDelayMs: 500}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := c.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func newTestExecutor(config RetryConfig) *RetryExecutor {
	e := NewRetryExecutor(config)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func TestRetryExecutor_SucceedsAfterTransientErrors(t *testing.T) {
	e := newTestExecutor(RetryConfig{MaxAttempts: 3, DelayMs: 10})

	calls := 0
	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewPersistenceError("db", "t", "write", "connection reset", nil, true)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	info := e.GetRetryInfo()
	if info.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", info.TotalAttempts)
	}
	if len(info.Delays) != 2 || info.Delays[0] != 10*time.Millisecond || info.Delays[1] != 20*time.Millisecond {
		t.Errorf("Delays = %v", info.Delays)
	}
}

func TestRetryExecutor_StopsOnFatalError(t *testing.T) {
	e := newTestExecutor(RetryConfig{MaxAttempts: 5})
	fatal := NewPersistenceError("db", "t", "write", "syntax error", nil, false)

	calls := 0
	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Execute() error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryExecutor_ExhaustsAttempts(t *testing.T) {
	e := newTestExecutor(RetryConfig{MaxAttempts: 2})
	transient := NewPersistenceError("db", "t", "write", "timeout", nil, true)

	calls := 0
	err := e.Execute(context.Background(), func(context.Context) error {
		calls++
		return transient
	})

	if !errors.Is(err, transient) {
		t.Errorf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryExecutor_DefaultIsSingleAttempt(t *testing.T) {
	e := newTestExecutor(RetryConfig{})

	calls := 0
	_ = e.Execute(context.Background(), func(context.Context) error {
		calls++
		return NewPersistenceError("db", "t", "write", "timeout", nil, true)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewRetryExecutor(RetryConfig{MaxAttempts: 3})
	calls := 0
	err := e.Execute(ctx, func(context.Context) error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
