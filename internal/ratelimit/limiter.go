// Package ratelimit holds the in-process sliding-log limiters that gate the
// HTTP surface. State lives in memory only and resets on restart, so limits
// are advisory when several instances run side by side.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate limited")

// LimitError is returned by Check when the key is over its limit.
type LimitError struct {
	Limiter    string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", e.Limiter, e.RetryAfter)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Rate limit checks by result.",
	}, []string{"limiter", "result"})
	bucketsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ratelimit_buckets",
		Help: "Live rate limit buckets.",
	}, []string{"limiter"})
	sweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_swept_total",
		Help: "Idle buckets removed by the sweeper.",
	}, []string{"limiter"})
)

type bucket struct {
	mu     sync.Mutex
	events []time.Time
	dead   bool
}

type Limiter struct {
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
	log    *zap.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

func New(name string, limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		name:    name,
		limit:   limit,
		window:  window,
		now:     time.Now,
		log:     zap.NewNop(),
		buckets: make(map[string]*bucket),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) Name() string          { return l.name }
func (l *Limiter) Limit() int            { return l.limit }
func (l *Limiter) Window() time.Duration { return l.window }

// Check records one event for key, or returns a *LimitError when the key
// already has limit events inside the trailing window.
func (l *Limiter) Check(key string) error {
	for {
		b := l.bucket(key)
		b.mu.Lock()
		if b.dead {
			// swept between lookup and lock
			b.mu.Unlock()
			continue
		}
		now := l.now()
		b.evict(now.Add(-l.window))
		if len(b.events) >= l.limit {
			retry := b.events[0].Add(l.window).Sub(now)
			b.mu.Unlock()
			checksTotal.WithLabelValues(l.name, "rejected").Inc()
			return &LimitError{Limiter: l.name, RetryAfter: retry}
		}
		b.events = append(b.events, now)
		b.mu.Unlock()
		checksTotal.WithLabelValues(l.name, "allowed").Inc()
		return nil
	}
}

func (l *Limiter) bucket(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{events: make([]time.Time, 0, l.limit)}
	l.buckets[key] = b
	bucketsGauge.WithLabelValues(l.name).Set(float64(len(l.buckets)))
	return b
}

// evict drops events at or before cut. Events are appended in order, so
// the survivors are a suffix.
func (b *bucket) evict(cut time.Time) {
	i := 0
	for i < len(b.events) && !b.events[i].After(cut) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(b.events, b.events[i:])
	b.events = b.events[:n]
}

// Sweep removes buckets with no event inside the window and returns how
// many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	cut := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		b.evict(cut)
		if len(b.events) == 0 {
			b.dead = true
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	bucketsGauge.WithLabelValues(l.name).Set(float64(len(l.buckets)))
	if removed > 0 {
		sweptTotal.WithLabelValues(l.name).Add(float64(removed))
	}
	return removed
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Run sweeps idle buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(l.now()); n > 0 {
				l.log.Debug("ratelimit.sweep",
					zap.String("limiter", l.name),
					zap.Int("removed", n),
					zap.Int("live", l.Len()),
				)
			}
		}
	}
}
