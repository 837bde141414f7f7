package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithExponentialBackoff(t *testing.T) {
	t.Run("first-attempt-success", func(t *testing.T) {
		attempts := 0
		err := WithExponentialBackoff(t.Context(), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, attempts)
	})

	t.Run("success-after-retries", func(t *testing.T) {
		attempts := 0
		err := WithExponentialBackoff(t.Context(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		}, WithInitialDelay(5*time.Millisecond))
		require.NoError(t, err)
		require.Equal(t, 3, attempts)
	})

	t.Run("budget-exhausted", func(t *testing.T) {
		boom := errors.New("persistent error")
		attempts := 0
		err := WithExponentialBackoff(t.Context(), func() error {
			attempts++
			return boom
		}, WithMaxRetries(3), WithInitialDelay(time.Millisecond))
		require.ErrorIs(t, err, boom)
		// MaxRetries counts retries after the first attempt.
		require.Equal(t, 4, attempts)
	})

	t.Run("context-cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		attempts := 0
		err := WithExponentialBackoff(ctx, func() error {
			attempts++
			return errors.New("error")
		}, WithInitialDelay(time.Millisecond))
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	})

	t.Run("fatal-stops-immediately", func(t *testing.T) {
		boom := errors.New("bad credentials")
		attempts := 0
		err := WithExponentialBackoff(t.Context(), func() error {
			attempts++
			return Fatal(boom)
		}, WithInitialDelay(time.Millisecond))
		require.Error(t, err)
		require.True(t, IsFatal(err))
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, attempts)
	})

	t.Run("delay-capped-at-max", func(t *testing.T) {
		attempts := 0
		start := time.Now()
		err := WithExponentialBackoff(t.Context(), func() error {
			attempts++
			if attempts < 4 {
				return errors.New("error")
			}
			return nil
		},
			WithInitialDelay(10*time.Millisecond),
			WithMaxDelay(20*time.Millisecond),
			WithMultiplier(4.0))
		require.NoError(t, err)
		// 10ms + 20ms + 20ms of backoff, far below the uncapped 10+40+160.
		require.Less(t, time.Since(start), 150*time.Millisecond)
	})
}

func TestFatal(t *testing.T) {
	require.Nil(t, Fatal(nil))
	require.False(t, IsFatal(errors.New("plain")))
	require.True(t, IsFatal(Fatal(errors.New("fatal"))))
}
