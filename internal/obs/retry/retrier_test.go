package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	}, Policy{Name: "t", Attempts: 5, Backoff: ExpoJitter{Base: time.Millisecond}})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	var exhausted error
	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, Policy{
		Attempts:  5,
		Retryable: func(err error) bool { return errors.Is(err, errBoom) },
		OnExhaust: func(err error) { exhausted = err },
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, exhausted, fatal)
}

func TestDo_ReturnsLastError(t *testing.T) {
	attempts := []int{}
	err := Do(context.Background(), func() error { return errBoom }, Policy{
		Attempts:  3,
		OnAttempt: func(i int, _ error) { attempts = append(attempts, i) },
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func() error { return errBoom }, Policy{
		Attempts: 3,
		Backoff:  ExpoJitter{Base: time.Hour},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errBoom
	}, Once("once", func(err error) bool { return errors.Is(err, errBoom) }))

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestExpoJitter_Caps(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))

	j := ExpoJitter{Base: time.Second, Jitter: 0.5}
	for i := 0; i < 20; i++ {
		d := j.Next(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}
