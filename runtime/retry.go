package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/satishbabariya/prisma-engine/errs"
)

// ErrRetryExhausted wraps the last error once every attempt failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int           // attempts, including the first
	InitialDelay  time.Duration // delay before the first retry
	MaxDelay      time.Duration // cap on the delay between attempts
	BackoffFactor float64       // delay multiplier per attempt
	Jitter        bool          // randomize each delay by ±25%
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// RetryOption customizes retry behavior.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialDelay = d }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxDelay = d }
}

// WithBackoffFactor sets the delay multiplier.
func WithBackoffFactor(f float64) RetryOption {
	return func(c *RetryConfig) { c.BackoffFactor = f }
}

// WithoutJitter makes every delay exact.
func WithoutJitter() RetryOption {
	return func(c *RetryConfig) { c.Jitter = false }
}

// Retry calls fn until it succeeds, fails with an error that is not
// retryable (see errs.IsRetryable), or runs out of attempts. The engine
// itself never retries; wrap a whole transaction in Retry to survive write
// conflicts:
//
//	err := runtime.Retry(ctx, func() error {
//		return client.Transaction(ctx, body, runtime.WithIsolationLevel(sql.LevelSerializable))
//	})
func Retry(ctx context.Context, fn func() error, opts ...RetryOption) error {
	config := DefaultRetryConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errs.IsRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		wait := delay
		if config.Jitter && delay > 0 {
			spread := delay / 4
			if spread > 0 {
				wait = delay - spread + time.Duration(rand.Int63n(int64(spread)*2))
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...RetryOption) (T, error) {
	var result T
	err := Retry(ctx, func() error {
		var err error
		result, err = fn()
		return err
	}, opts...)
	return result, err
}
