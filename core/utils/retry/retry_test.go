package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/sismo-relay/core/utils/retry"
)

var fastPolicy = retry.Policy{Delay: time.Millisecond}

var errFatal = errors.New("fatal")

func classifyFatal(err error) retry.Action {
	if errors.Is(err, errFatal) {
		return retry.Stop
	}
	return retry.Retry
}

func TestForever_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := retry.Forever(context.Background(), clockwork.NewRealClock(), fastPolicy, classifyFatal, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return errFatal
	})

	var permErr *retry.PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 3, calls)
}

func TestForever_RestartsAfterCleanExit(t *testing.T) {
	var attempts []int
	calls := 0
	p := retry.Policy{
		Delay: time.Millisecond,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			assert.ErrorIs(t, err, retry.ErrExited)
			attempts = append(attempts, attempt)
		},
	}

	err := retry.Forever(context.Background(), clockwork.NewRealClock(), p, classifyFatal, func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return errFatal
		}
		return nil
	})

	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestForever_WaitsDelayBetweenAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- retry.Forever(ctx, clock, retry.Policy{Delay: time.Second}, classifyFatal, func(ctx context.Context) error {
			if calls.Add(1) == 2 {
				return errFatal
			}
			return errors.New("transient")
		})
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Millisecond)
	err := <-done
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, int32(2), calls.Load())
}

func TestForever_ContextCancelledDuringDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- retry.Forever(ctx, clock, retry.Policy{Delay: time.Hour}, classifyFatal, func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}
