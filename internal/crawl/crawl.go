// Package crawl implements the bounded breadth-first site traversal and the
// ordered list of crawl strategies (browser first, plain HTTP second).
package crawl

import (
	"context"
	"time"
)

// Strategy names reported on the compiled report and in metrics.
const (
	StrategyPrimary  = "primary"
	StrategyFallback = "fallback"
)

// Request describes one crawl. MaxPages is threaded per audit and never
// stored at package scope.
type Request struct {
	TargetURL         string
	MaxPages          int
	MultiPage         bool
	IncludeScreenshot bool
}

// Cap returns the effective page cap for the request.
func (r Request) Cap() int {
	if !r.MultiPage {
		return 1
	}
	if r.MaxPages < 1 {
		return 1
	}
	return r.MaxPages
}

// FetchRequest asks a Fetcher for one page.
type FetchRequest struct {
	URL        string
	Screenshot bool
}

// FetchResponse is the raw outcome of loading one page. NoResponse is set
// when navigation finished without a main document response.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Screenshot  string
	Duration    time.Duration
	NoResponse  bool
}

// Fetcher loads a single page. A returned error is a per-page navigation
// failure unless it wraps ErrDriverUnavailable.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Session is a browser session scoped to one crawl.
type Session interface {
	Fetcher
	Close() error
}

// Browser starts browser sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}
