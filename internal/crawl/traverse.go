package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/extractor"
	"github.com/JakeFAU/site-auditor/internal/links"
)

// Traverse crawls breadth-first from req.TargetURL, visiting at most
// req.Cap() pages and never the same normalized URL twice. A page whose
// final URL after redirects was already audited is dropped and does not
// count toward the cap. Per-page failures are recorded on the page and
// count toward the cap. The returned error is
// non-nil only when ctx ends or the fetcher reports ErrDriverUnavailable;
// pages gathered so far are returned alongside it.
func Traverse(ctx context.Context, req Request, fetcher Fetcher, logger *zap.Logger) ([]audit.CrawlPage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start, err := links.ParseOrigin(req.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("crawl target: %w", err)
	}

	limit := req.Cap()
	t := &traversal{
		seen:     make(map[string]struct{}),
		fetched:  make(map[string]struct{}),
		frontier: []string{req.TargetURL},
		limit:    limit,
	}
	t.mark(req.TargetURL)

	pages := make([]audit.CrawlPage, 0, limit)
	for len(t.frontier) > 0 && len(pages) < limit {
		if err := ctx.Err(); err != nil {
			return pages, fmt.Errorf("crawl canceled: %w", err)
		}
		target := t.pop()

		resp, fetchErr := fetcher.Fetch(ctx, FetchRequest{URL: target, Screenshot: req.IncludeScreenshot})
		if errors.Is(fetchErr, ErrDriverUnavailable) {
			return pages, fetchErr
		}

		page := audit.CrawlPage{
			URL:        target,
			FinalURL:   resp.URL,
			StatusCode: resp.StatusCode,
			HTML:       string(resp.Body),
			Issues:     []audit.Issue{},
		}
		switch {
		case resp.NoResponse:
			page.Error = "No response"
			if fetchErr != nil {
				page.Warnings = append(page.Warnings, fetchErr.Error())
			}
		case fetchErr != nil:
			page.Error = fetchErr.Error()
		case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
			page.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		if page.Failed() {
			logger.Debug("page failed",
				zap.String("url", target),
				zap.String("error", page.Error),
			)
			pages = append(pages, page)
			continue
		}

		pageURL := target
		if resp.URL != "" {
			pageURL = resp.URL
		}
		if !t.fetch(pageURL) {
			logger.Debug("page already audited under its final URL",
				zap.String("url", target),
				zap.String("final_url", pageURL),
			)
			continue
		}
		if resp.URL != "" {
			t.mark(resp.URL)
			// A redirected seed defines the site's real origin.
			if len(pages) == 0 {
				if o, oerr := links.ParseOrigin(resp.URL); oerr == nil {
					start = o
				}
			}
		}
		if !isHTML(resp.ContentType) {
			page.Warnings = append(page.Warnings, fmt.Sprintf("unexpected content type %q", resp.ContentType))
		}

		result, err := extractor.Extract(page.HTML, pageURL, start)
		if err != nil {
			page.Error = fmt.Sprintf("extract: %v", err)
			pages = append(pages, page)
			continue
		}
		page.Signals = &result.Signals
		page.Issues = result.Issues
		page.Score = result.Score
		page.Screenshot = resp.Screenshot
		pages = append(pages, page)

		for _, link := range result.Signals.InternalLinks {
			if len(t.frontier) >= limit {
				break
			}
			t.push(link)
		}
	}
	return pages, nil
}

type traversal struct {
	seen     map[string]struct{}
	fetched  map[string]struct{}
	frontier []string
	limit    int
}

func (t *traversal) pop() string {
	next := t.frontier[0]
	t.frontier = t.frontier[1:]
	return next
}

// mark records raw as visited or queued and reports whether it was new.
func (t *traversal) mark(raw string) bool {
	key := normalizeKey(raw)
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// fetch records the final URL of a loaded page and reports whether it is
// the first page to resolve there.
func (t *traversal) fetch(finalURL string) bool {
	key := normalizeKey(finalURL)
	if _, ok := t.fetched[key]; ok {
		return false
	}
	t.fetched[key] = struct{}{}
	return true
}

func (t *traversal) push(raw string) {
	if t.mark(raw) {
		t.frontier = append(t.frontier, raw)
	}
}

func normalizeKey(raw string) string {
	key, err := links.Normalize(raw)
	if err != nil {
		return raw
	}
	return key
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "html")
}
