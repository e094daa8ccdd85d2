package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// RetryConfig defines configuration for exponential backoff retries.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
	RetryIfFn       func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Retry retries a function with exponential backoff. A RetryIfFn returning
// false marks the error permanent and stops further attempts.
func Retry(ctx context.Context, config RetryConfig, logger observability.Logger, operation string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval
	b.Multiplier = config.Multiplier
	b.MaxElapsedTime = config.MaxElapsedTime

	var policy backoff.BackOff = b
	if config.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(b, uint64(config.MaxRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		if config.RetryIfFn != nil && !config.RetryIfFn(err) {
			return backoff.Permanent(err)
		}

		logger.Warn("Retrying after error", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		return err
	}, policy)
}

// RetryConstant retries a function at a fixed interval, for callers whose
// budget accounting cannot absorb exponential growth. The same RetryIfFn
// permanent-error semantics apply.
func RetryConstant(ctx context.Context, maxRetries int, interval time.Duration, retryIf func(error) bool, fn func() error) error {
	var policy backoff.BackOff = backoff.NewConstantBackOff(interval)
	if maxRetries >= 0 {
		policy = backoff.WithMaxRetries(policy, uint64(maxRetries))
	}
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if retryIf != nil && !retryIf(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// RetryWithResult retries a function with exponential backoff and returns
// its result.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger observability.Logger, operation string, fn func() (T, error)) (T, error) {
	var result T

	err := Retry(ctx, config, logger, operation, func() error {
		var err error
		result, err = fn()
		return err
	})

	return result, err
}
