package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Backoff computes the wait before the given attempt (1-based, attempt 0 never waits).
type Backoff func(attempt int) time.Duration

// Linear waits base*attempt, the same curve the outbox publisher uses.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential waits base*2^(attempt-1), capped at max when max > 0.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		d := base << (attempt - 1)
		if max > 0 && (d > max || d <= 0) {
			return max
		}
		return d
	}
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int // total attempts including the first; values < 1 mean 1
	Backoff     Backoff
	Clock       clockwork.Clock
}

// Do calls fn until it succeeds, the attempts run out or ctx is cancelled.
// fn receives the 0-indexed attempt number.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.Backoff != nil {
			if wait := p.Backoff(attempt); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-clock.After(wait):
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
