package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// customError implements temporary interface for testing
type customError struct {
	message   string
	temporary bool
}

func (e customError) Error() string   { return e.message }
func (e customError) Temporary() bool { return e.temporary }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay=30s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
	if cfg.JitterStrategy != JitterDecorrelated {
		t.Errorf("expected JitterStrategy=JitterDecorrelated, got %v", cfg.JitterStrategy)
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"temporary error", customError{"temp", true}, true},
		{"non-temporary error", customError{"not temp", false}, false},
		{"regular error", errors.New("regular"), false},
		{"sqlite busy is not known here", errors.New("database is locked"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DefaultRetryable(tt.err)
			if result != tt.expected {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond}, // 100 * 2^0
		{2, 200 * time.Millisecond}, // 100 * 2^1
		{3, 400 * time.Millisecond}, // 100 * 2^2
		{4, 800 * time.Millisecond}, // 100 * 2^3
		{5, 1 * time.Second},        // 100 * 2^4 = 1600ms, capped at 1s
		{6, 1 * time.Second},        // still capped
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := config.calculateDelay(tt.attempt)
			if result != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestDoSuccess(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		// JitterNone for predictable testing
	}

	var attempts int32
	fn := func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return nil // success on first try
	}

	err := Do(ctx, config, fn)
	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}

	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoRetryableError(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond, // very short for testing
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	var attempts int32
	fn := func(ctx context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return context.DeadlineExceeded // retryable
		}
		return nil // success on third attempt
	}

	err := Do(ctx, config, fn)
	if err != nil {
		t.Errorf("expected success after retries, got error: %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	permanent := errors.New("syntax error")

	var attempts int32
	fn := func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return permanent
	}

	err := Do(ctx, config, fn)
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got: %v", err)
	}

	if attempts != 1 {
		t.Errorf("expected 1 attempt (no retries), got %d", attempts)
	}
}

func TestDoMaxAttemptsReached(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	var attempts int32
	fn := func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return io.EOF // always retryable
	}

	err := Do(ctx, config, fn)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %T: %v", err, err)
	}
	if exceeded.Attempts != 3 {
		t.Errorf("expected 3 attempts in error, got %d", exceeded.Attempts)
	}
	if !errors.Is(err, io.EOF) {
		t.Error("expected last error to unwrap to io.EOF")
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	var attempts int32
	fn := func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			cancel() // cancel during the first backoff wait
		}
		return io.EOF
	}

	err := Do(ctx, config, fn)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

func TestDoInvalidConfig(t *testing.T) {
	ctx := context.Background()

	err := Do(ctx, Config{MaxAttempts: 0}, func(ctx context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "MaxAttempts") {
		t.Errorf("expected MaxAttempts validation error, got: %v", err)
	}

	err = Do(ctx, Config{MaxAttempts: 1, InitialDelay: -time.Second}, func(ctx context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "InitialDelay") {
		t.Errorf("expected InitialDelay validation error, got: %v", err)
	}
}

func TestRetryConvenienceFunctions(t *testing.T) {
	ctx := context.Background()

	var attempts int32
	err := Retry(ctx, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return nil
	})
	if err != nil {
		t.Errorf("Retry: expected success, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Retry: expected 1 attempt, got %d", attempts)
	}

	atomic.StoreInt32(&attempts, 0)
	err = RetryWithAttempts(ctx, 2, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return io.EOF
	})
	if err == nil {
		t.Error("RetryWithAttempts: expected error")
	}
	if attempts != 2 {
		t.Errorf("RetryWithAttempts: expected 2 attempts, got %d", attempts)
	}
}

func TestDoWithRetryableCustomCheck(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}

	busy := errors.New("database is locked")
	isBusy := func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "database is locked")
	}

	var attempts int32
	fn := func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return busy
		}
		return nil
	}

	err := DoWithRetryable(ctx, config, fn, isBusy)
	if err != nil {
		t.Errorf("expected success after busy retries, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid config",
			config: Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0},
		},
		{
			name:    "zero attempts",
			config:  Config{MaxAttempts: 0, InitialDelay: time.Millisecond},
			wantErr: true,
		},
		{
			name:    "min greater than max",
			config:  Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MinDelay: 2 * time.Second, MaxDelay: time.Second},
			wantErr: true,
		},
		{
			name:    "multiplier below one",
			config:  Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5},
			wantErr: true,
		},
		{
			name:    "negative elapsed budget",
			config:  Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxElapsedTime: -time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Normalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	// MinDelay defaults to InitialDelay
	cfg := Config{MaxAttempts: 1, InitialDelay: 5 * time.Millisecond}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if cfg.MinDelay != 5*time.Millisecond {
		t.Errorf("expected MinDelay to default to InitialDelay, got %v", cfg.MinDelay)
	}
}

func TestMaxElapsedTime(t *testing.T) {
	ctx := context.Background()
	config := Config{
		MaxAttempts:    100,
		InitialDelay:   20 * time.Millisecond,
		MaxDelay:       20 * time.Millisecond,
		MaxElapsedTime: 30 * time.Millisecond,
		Multiplier:     1.0,
	}

	var attempts int32
	err := Do(ctx, config, func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return io.EOF
	})

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %T: %v", err, err)
	}
	if exceeded.Reason != "max elapsed time exceeded" {
		t.Errorf("expected elapsed time reason, got %q", exceeded.Reason)
	}
	if attempts >= 100 {
		t.Errorf("expected early stop, got %d attempts", attempts)
	}
}

func TestOnRetryCallback(t *testing.T) {
	ctx := context.Background()

	type retryEvent struct {
		attempt int
		delay   time.Duration
	}
	var events []retryEvent

	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		OnRetry: func(attempt int, err error, nextDelay time.Duration) {
			events = append(events, retryEvent{attempt, nextDelay})
		},
	}

	_ = Do(ctx, config, func(ctx context.Context) error { return io.EOF })

	// 3 attempts means 2 retry events
	if len(events) != 2 {
		t.Fatalf("expected 2 retry events, got %d", len(events))
	}
	if events[0].attempt != 1 || events[1].attempt != 2 {
		t.Errorf("unexpected attempt numbers: %+v", events)
	}
}

func TestRetriesExceededError(t *testing.T) {
	inner := errors.New("boom")
	err := &RetriesExceededError{
		LastError:     inner,
		Attempts:      4,
		TotalDuration: 2 * time.Second,
		Reason:        "max attempts exceeded",
	}

	if !strings.Contains(err.Error(), "4 attempts") {
		t.Errorf("expected attempts in message, got %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose last error")
	}
}
