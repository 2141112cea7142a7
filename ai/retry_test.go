package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{MaxAttempts: attempts, BaseDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(3), func(context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(5), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("provider hiccup")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	expected := errors.New("provider down")
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(3), func(context.Context) error {
		attempts++
		return expected
	})
	assert.Equal(t, expected, err, "should return the last error")
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
}

func TestRetryWithBackoff_Permanent(t *testing.T) {
	cause := errors.New("bad request")
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff(5), func(context.Context) error {
		attempts++
		return Permanent(cause)
	})
	assert.Equal(t, cause, err, "permanent errors are unwrapped and returned")
	assert.Equal(t, 1, attempts, "permanent errors are not retried")
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, fastBackoff(10), func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := RetryWithBackoff(ctx, Backoff{MaxAttempts: 10, BaseDelay: 20 * time.Millisecond}, func(context.Context) error {
		return errors.New("error")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastBackoff(n), func(context.Context) error {
			attempts++
			return nil
		})
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Equal(t, 0, attempts)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 350*time.Millisecond, b.Delay(3), "capped at MaxDelay")
	assert.Equal(t, 350*time.Millisecond, b.Delay(10))

	uncapped := Backoff{BaseDelay: time.Millisecond}
	assert.Equal(t, 8*time.Millisecond, uncapped.Delay(4))
}
