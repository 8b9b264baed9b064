package util

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff for idempotent operations such as
// dialing an RPC endpoint or reading contract views. Transaction submission
// must never go through Retry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt (-1 = unlimited)
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the +/- fraction applied to each delay (0.0 - 1.0)
	Jitter float64
	// RetryIf decides whether an error is worth another attempt; nil retries all
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the backoff used for RPC dials
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Jitter:     0.1,
	}
}

// ErrMaxRetriesExceeded is joined onto the last error once retries run out
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// Retry calls fn until it succeeds, the retry budget is spent, RetryIf
// rejects the error, or ctx is done. It returns the value of the last
// successful call and the number of attempts made.
func Retry[T any](ctx context.Context, cfg *RetryConfig, fn func(context.Context) (T, error)) (T, int, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, attempt, nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, attempt, err
		}
		if cfg.MaxRetries >= 0 && attempt > cfg.MaxRetries {
			return zero, attempt, errors.Join(ErrMaxRetriesExceeded, err)
		}

		timer := time.NewTimer(backoff(cfg, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func backoff(cfg *RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if cfg.Jitter > 0 {
		spread := delay * cfg.Jitter
		delay = delay - spread + rand.Float64()*2*spread
	}
	if cfg.MaxDelay > 0 && time.Duration(delay) > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}
