package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Second,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(5), observability.NewNoopLogger(), "connect", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	boom := errors.New("schema mismatch")
	cfg := fastRetryConfig(5)
	cfg.RetryIfFn = func(err error) bool { return false }

	attempts := 0
	err := Retry(context.Background(), cfg, observability.NewNoopLogger(), "connect", func() error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("still down")

	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(2), observability.NewNoopLogger(), "connect", func() error {
		attempts++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestRetryConstant(t *testing.T) {
	t.Run("Fixed Interval Attempts", func(t *testing.T) {
		attempts := 0
		err := RetryConstant(context.Background(), 2, time.Millisecond, nil, func() error {
			attempts++
			return errors.New("nope")
		})

		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("Permanent Error Stops Immediately", func(t *testing.T) {
		boom := errors.New("bad request")
		attempts := 0
		err := RetryConstant(context.Background(), 5, time.Millisecond,
			func(err error) bool { return false },
			func() error {
				attempts++
				return boom
			})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, attempts)
	})
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	errCh := make(chan error, 1)
	go func() {
		cfg := fastRetryConfig(0) // unlimited retries
		cfg.InitialInterval = 10 * time.Millisecond
		cfg.MaxElapsedTime = 10 * time.Second
		errCh <- Retry(ctx, cfg, observability.NewNoopLogger(), "connect", func() error {
			attempts++
			return errors.New("down")
		})
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after context cancellation")
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	val, err := RetryWithResult(context.Background(), fastRetryConfig(3), observability.NewNoopLogger(), "embed",
		func() ([]float32, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("transient")
			}
			return []float32{0.1, 0.2}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, val)
	assert.Equal(t, 2, attempts)
}
