package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLimiter_RejectsOverLimit(t *testing.T) {
	clk := newClock()
	l := New("test", 3, time.Minute, WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check("k"))
		clk.Advance(time.Second)
	}

	err := l.Check("k")
	require.ErrorIs(t, err, ErrRateLimited)

	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "test", le.Limiter)
	assert.Equal(t, 57*time.Second, le.RetryAfter)
}

func TestLimiter_WindowSlides(t *testing.T) {
	clk := newClock()
	l := New("test", 2, time.Minute, WithClock(clk.Now))

	require.NoError(t, l.Check("k"))
	clk.Advance(30 * time.Second)
	require.NoError(t, l.Check("k"))
	require.ErrorIs(t, l.Check("k"), ErrRateLimited)

	// first event leaves the window, second is still inside
	clk.Advance(30*time.Second + time.Millisecond)
	require.NoError(t, l.Check("k"))
	require.ErrorIs(t, l.Check("k"), ErrRateLimited)
}

func TestLimiter_RejectedCallsDoNotCount(t *testing.T) {
	clk := newClock()
	l := New("test", 1, time.Minute, WithClock(clk.Now))

	require.NoError(t, l.Check("k"))
	for i := 0; i < 5; i++ {
		clk.Advance(10 * time.Second)
		require.ErrorIs(t, l.Check("k"), ErrRateLimited)
	}
	clk.Advance(11 * time.Second)
	require.NoError(t, l.Check("k"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	clk := newClock()
	l := New("test", 1, time.Minute, WithClock(clk.Now))

	require.NoError(t, l.Check("a"))
	require.NoError(t, l.Check("b"))
	require.ErrorIs(t, l.Check("a"), ErrRateLimited)
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_Sweep(t *testing.T) {
	clk := newClock()
	l := New("test", 5, time.Minute, WithClock(clk.Now))

	require.NoError(t, l.Check("old"))
	clk.Advance(45 * time.Second)
	require.NoError(t, l.Check("fresh"))

	clk.Advance(20 * time.Second)
	assert.Equal(t, 1, l.Sweep(clk.Now()))
	assert.Equal(t, 1, l.Len())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, l.Sweep(clk.Now()))
	assert.Equal(t, 0, l.Len())

	// a swept key starts from an empty log
	require.NoError(t, l.Check("old"))
}

func TestLimiter_RunStopsWithContext(t *testing.T) {
	l := New("test", 1, 10*time.Millisecond)
	require.NoError(t, l.Check("k"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLimiter_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	clk := newClock()
	l := New("test", 50, time.Hour, WithClock(clk.Now))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared") == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowed.Load())
}

func TestLimiter_ConcurrentSweepKeepsCounts(t *testing.T) {
	clk := newClock()
	l := New("test", 1000, time.Hour, WithClock(clk.Now))

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				l.Sweep(clk.Now())
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Check("k")
			}
		}()
	}
	wg.Wait()
	close(stop)

	l.mu.RLock()
	b := l.buckets["k"]
	l.mu.RUnlock()
	require.NotNil(t, b)
	assert.Len(t, b.events, 800)
}
