package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

// Result is the page set produced by a successful strategy.
type Result struct {
	Strategy string
	Pages    []audit.CrawlPage
	Attempts []Attempt
}

// Attempt records one strategy that was tried and failed before the result
// was produced.
type Attempt struct {
	Strategy string
	Kind     string
	Err      error
}

// Strategy is one way of producing a page set for an audit.
type Strategy interface {
	Name() string
	Crawl(ctx context.Context, req Request) (Result, error)
}

// Primary crawls with a real browser session. The session is released on
// every exit path.
type Primary struct {
	browser Browser
	logger  *zap.Logger
}

// NewPrimary builds the browser-backed strategy.
func NewPrimary(browser Browser, logger *zap.Logger) *Primary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Primary{browser: browser, logger: logger}
}

// Name implements Strategy.
func (p *Primary) Name() string { return StrategyPrimary }

// Crawl implements Strategy.
func (p *Primary) Crawl(ctx context.Context, req Request) (res Result, err error) {
	if p.browser == nil {
		return Result{}, &Failure{Kind: KindDriverUnavailable, Strategy: StrategyPrimary, Err: ErrDriverUnavailable}
	}
	session, err := p.browser.Open(ctx)
	if err != nil {
		return Result{}, &Failure{Kind: KindDriverUnavailable, Strategy: StrategyPrimary, Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()

	pages, err := Traverse(ctx, req, session, p.logger)
	if err != nil {
		return Result{}, wrapTraverseErr(StrategyPrimary, err)
	}
	return Result{Strategy: StrategyPrimary, Pages: pages}, nil
}

// Fallback fetches pages with a plain HTTP client. It never renders
// JavaScript or captures screenshots, and crawls at most MaxPages pages.
type Fallback struct {
	fetcher  Fetcher
	maxPages int
	logger   *zap.Logger
}

// NewFallback builds the HTTP strategy. maxPages <= 0 means a single page.
func NewFallback(fetcher Fetcher, maxPages int, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Fallback{fetcher: fetcher, maxPages: maxPages, logger: logger}
}

// Name implements Strategy.
func (f *Fallback) Name() string { return StrategyFallback }

// Crawl implements Strategy.
func (f *Fallback) Crawl(ctx context.Context, req Request) (Result, error) {
	req.IncludeScreenshot = false
	if req.MaxPages > f.maxPages {
		req.MaxPages = f.maxPages
	}
	pages, err := Traverse(ctx, req, f.fetcher, f.logger)
	if err != nil {
		return Result{}, wrapTraverseErr(StrategyFallback, err)
	}
	// Without a response for the seed there is nothing to report on.
	if len(pages) == 0 || (pages[0].Failed() && pages[0].StatusCode == 0) {
		cause := errors.New("no pages fetched")
		if len(pages) > 0 {
			cause = errors.New(strings.Join(append([]string{pages[0].Error}, pages[0].Warnings...), ": "))
		}
		return Result{}, &Failure{Kind: KindFetchFailed, Strategy: StrategyFallback, Err: cause}
	}
	for i := range pages {
		pages[i].Warnings = append(pages[i].Warnings, "fetched without a browser; JavaScript-rendered content is not included")
	}
	return Result{Strategy: StrategyFallback, Pages: pages}, nil
}

// Chain tries strategies in order until one succeeds.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a Chain. Nil strategies are skipped.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{logger: logger}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// Run executes the chain. When every strategy fails it returns a
// *Failure of kind KindTotalCrawlFailure whose Err joins each attempt's
// error; the returned Result still lists the attempts.
func (c *Chain) Run(ctx context.Context, req Request) (Result, error) {
	var (
		attempts []Attempt
		errs     []error
	)
	for _, s := range c.strategies {
		res, err := s.Crawl(ctx, req)
		if err == nil {
			res.Attempts = attempts
			return res, nil
		}
		kind := KindOf(err)
		attempts = append(attempts, Attempt{Strategy: s.Name(), Kind: kind, Err: err})
		errs = append(errs, err)
		if kind == KindCanceled {
			return Result{Attempts: attempts}, err
		}
		c.logger.Warn("crawl strategy failed",
			zap.String("strategy", s.Name()),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no crawl strategies configured"))
	}
	return Result{Attempts: attempts}, &Failure{Kind: KindTotalCrawlFailure, Err: errors.Join(errs...)}
}

func wrapTraverseErr(strategy string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindCanceled, Strategy: strategy, Err: err}
	case errors.Is(err, ErrDriverUnavailable):
		return &Failure{Kind: KindDriverUnavailable, Strategy: strategy, Err: err}
	default:
		return &Failure{Kind: KindFetchFailed, Strategy: strategy, Err: fmt.Errorf("traverse: %w", err)}
	}
}
