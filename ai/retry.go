// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Backoff describes a bounded exponential retry schedule.
type Backoff struct {
	// MaxAttempts is the total number of attempts, including the first (must be > 0).
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles on each retry.
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultBackoff is three attempts starting at 200ms.
func DefaultBackoff() Backoff {
	return Backoff{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the wait before the given retry attempt (attempt 1 is the first retry).
func (b Backoff) Delay(attempt int) time.Duration {
	delay := b.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.MaxDelay > 0 && delay >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. RetryWithBackoff returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithBackoff retries an operation following the Backoff schedule.
// Returns the error from the last attempt if all attempts fail, or the context
// error if ctx is done before the schedule completes.
func RetryWithBackoff(ctx context.Context, b Backoff, operation func(ctx context.Context) error) error {
	if b.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", b.MaxAttempts, "error", lastErr)

		if attempt == b.MaxAttempts {
			break
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
