package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestDo_SuccessFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, Backoff: Linear(time.Second)}, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	calls := 0
	go func() {
		done <- Do(ctx, Policy{MaxAttempts: 3, Backoff: Linear(time.Second), Clock: clock}, func(attempt int) error {
			calls++
			if attempt < 2 {
				return errors.New("transient error")
			}
			return nil
		})
	}()

	// attempt 1 waits 1s, attempt 2 waits 2s
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Second)

	require.NoError(t, <-done)
	require.Equal(t, 3, calls)
}

func TestDo_AllAttemptsExhausted(t *testing.T) {
	persistent := errors.New("persistent error")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(attempt int) error {
		calls++
		return persistent
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, persistent)
	require.Equal(t, 3, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func(attempt int) error {
		calls++
		return errors.New("fail")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Policy{MaxAttempts: 5, Backoff: Linear(time.Minute), Clock: clock}, func(attempt int) error {
			return errors.New("fail")
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
}

func TestBackoffCurves(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{name: "linear_first", backoff: Linear(200 * time.Millisecond), attempt: 1, want: 200 * time.Millisecond},
		{name: "linear_third", backoff: Linear(200 * time.Millisecond), attempt: 3, want: 600 * time.Millisecond},
		{name: "exponential_first", backoff: Exponential(time.Second, 0), attempt: 1, want: time.Second},
		{name: "exponential_fourth", backoff: Exponential(time.Second, 0), attempt: 4, want: 8 * time.Second},
		{name: "exponential_capped", backoff: Exponential(time.Second, 5*time.Second), attempt: 4, want: 5 * time.Second},
		{name: "exponential_zero", backoff: Exponential(time.Second, 0), attempt: 0, want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.backoff(tc.attempt))
		})
	}
}
