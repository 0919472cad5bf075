// Package infra provides small shared primitives for the daemon: bounded
// retry with backoff and TTL-based deduplication.
package infra

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how retry delays grow between attempts.
type BackoffStrategy string

const (
	// BackoffConstant uses a fixed delay between retries.
	BackoffConstant BackoffStrategy = "constant"

	// BackoffLinear increases delay linearly with the attempt number.
	BackoffLinear BackoffStrategy = "linear"

	// BackoffExponential doubles the delay after each retry.
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the number of retry attempts after the initial one
	// (0 = no retries).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Strategy determines how delays increase between retries.
	Strategy BackoffStrategy

	// JitterFraction adds randomness to delays (0.0-1.0).
	JitterFraction float64

	// RetryIf decides whether an error is retryable. If nil, all errors
	// except context cancellation are retried.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the defaults used for provider calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Strategy:       BackoffExponential,
		JitterFraction: 0.1,
	}
}

// RetryResult describes what a retry loop did.
type RetryResult struct {
	// Attempts is the total number of attempts made.
	Attempts int

	// TotalDuration is the total time spent including delays.
	TotalDuration time.Duration

	// LastError is the last error encountered (nil on success).
	LastError error
}

// Retry executes fn until it succeeds, the attempt budget is spent, or the
// context is cancelled. It returns the value from the last attempt and a
// RetryResult describing the run.
func Retry[T any](ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (T, error)) (T, *RetryResult) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var zero T
	result := &RetryResult{}
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return zero, result
		}

		val, err := fn(ctx)
		if err == nil {
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			return val, result
		}
		result.LastError = err

		if !shouldRetry(cfg, err) || attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delayFor(cfg, attempt)):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return zero, result
		}
	}

	result.TotalDuration = time.Since(start)
	return zero, result
}

// RetryVoid executes fn with retries for functions that don't return a value.
func RetryVoid(ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) error) *RetryResult {
	_, result := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return result
}

func shouldRetry(cfg *RetryConfig, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cfg.RetryIf != nil {
		return cfg.RetryIf(err)
	}
	return true
}

func delayFor(cfg *RetryConfig, attempt int) time.Duration {
	var delay time.Duration

	switch cfg.Strategy {
	case BackoffConstant:
		delay = cfg.InitialDelay
	case BackoffLinear:
		delay = cfg.InitialDelay * time.Duration(attempt+1)
	case BackoffExponential:
		delay = time.Duration(float64(cfg.InitialDelay) * math.Pow(2, float64(attempt)))
	default:
		delay = cfg.InitialDelay
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.JitterFraction > 0 {
		jitter := float64(delay) * cfg.JitterFraction
		delay += time.Duration((rand.Float64()*2 - 1) * jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
