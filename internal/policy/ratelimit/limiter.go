// Package ratelimit spaces out requests to the same host so a crawl stays
// polite. Wrappers apply it to both crawl fetchers and browser sessions.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/site-auditor/internal/crawl"
	"github.com/JakeFAU/site-auditor/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter keeps one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	metrics.Init()
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Enabled reports whether Wait can ever block.
func (l *Limiter) Enabled() bool {
	return l.rate != rate.Inf
}

// Wait blocks until a token is available for rawURL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(d)
	}
	return nil
}

// Hosts returns how many hosts have a bucket.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher wraps next so every Fetch waits for its host's token.
func (l *Limiter) Fetcher(next crawl.Fetcher) crawl.Fetcher {
	if !l.Enabled() {
		return next
	}
	return &fetcher{next: next, limiter: l}
}

// Browser wraps next so every session Fetch waits for its host's token.
func (l *Limiter) Browser(next crawl.Browser) crawl.Browser {
	if !l.Enabled() {
		return next
	}
	return &browser{next: next, limiter: l}
}

type fetcher struct {
	next    crawl.Fetcher
	limiter *Limiter
}

func (f *fetcher) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, req.URL); err != nil {
		return crawl.FetchResponse{URL: req.URL, NoResponse: true}, err
	}
	return f.next.Fetch(ctx, req)
}

type browser struct {
	next    crawl.Browser
	limiter *Limiter
}

func (b *browser) Open(ctx context.Context) (crawl.Session, error) {
	s, err := b.next.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &session{Session: s, limiter: b.limiter}, nil
}

type session struct {
	crawl.Session
	limiter *Limiter
}

func (s *session) Fetch(ctx context.Context, req crawl.FetchRequest) (crawl.FetchResponse, error) {
	if err := s.limiter.Wait(ctx, req.URL); err != nil {
		return crawl.FetchResponse{URL: req.URL, NoResponse: true}, err
	}
	return s.Session.Fetch(ctx, req)
}
