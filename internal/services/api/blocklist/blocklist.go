// Package blocklist keeps a cached set of disposable email domains.
package blocklist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/NordCoder/greensteps/internal/domain/user"
)

const (
	DefaultURL = "https://raw.githubusercontent.com/disposable-email-domains/disposable-email-domains/refs/heads/main/disposable_email_blocklist.conf"
	DefaultTTL = time.Hour
)

type Option func(*Checker)

func WithClock(now func() time.Time) Option { return func(c *Checker) { c.now = now } }

// WithRetryAfter sets how long a failed download is not retried.
func WithRetryAfter(d time.Duration) Option { return func(c *Checker) { c.retryAfter = d } }

type Checker struct {
	url        string
	ttl        time.Duration
	retryAfter time.Duration
	client     *http.Client
	log        *zap.Logger
	now        func() time.Time
	group      singleflight.Group

	mu          sync.RWMutex
	domains     map[string]struct{}
	updatedAt   time.Time
	attemptedAt time.Time
}

func New(url string, ttl time.Duration, client *http.Client, log *zap.Logger, opts ...Option) *Checker {
	if url == "" {
		url = DefaultURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		url:        url,
		ttl:        ttl,
		retryAfter: time.Minute,
		client:     client,
		log:        log,
		now:        time.Now,
		domains:    map[string]struct{}{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IsBlocked refreshes a stale list before answering. When the download
// fails the previous list is used.
func (c *Checker) IsBlocked(ctx context.Context, email string) bool {
	domain := user.EmailDomain(email)
	if domain == "" {
		return false
	}
	if c.stale() {
		_ = c.Refresh(ctx)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.domains[domain]
	return ok
}

func (c *Checker) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.domains)
}

func (c *Checker) stale() bool {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if now.Sub(c.updatedAt) < c.ttl {
		return false
	}
	return now.Sub(c.attemptedAt) >= c.retryAfter
}

// Refresh downloads the list. Concurrent callers share one download.
func (c *Checker) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Checker) refresh(ctx context.Context) error {
	c.mu.Lock()
	c.attemptedAt = c.now()
	c.mu.Unlock()

	domains, err := c.download(ctx)
	if err != nil {
		c.log.Error("blocklist.refresh_failed", zap.Error(err), zap.Int("kept", c.Len()))
		return err
	}

	c.mu.Lock()
	c.domains = domains
	c.updatedAt = c.now()
	c.mu.Unlock()
	c.log.Info("blocklist.refreshed", zap.Int("domains", len(domains)))
	return nil
}

func (c *Checker) download(ctx context.Context) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blocklist get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blocklist get: status %d", resp.StatusCode)
	}
	return parse(io.LimitReader(resp.Body, 16<<20))
}

// parse reads one domain per line, skipping blanks and # comments.
func parse(r io.Reader) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("blocklist parse: %w", err)
	}
	return out, nil
}
