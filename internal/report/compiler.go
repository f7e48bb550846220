// Package report compiles crawled pages into a scored audit report.
package report

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/crawl"
)

const maxPriorities = 3

// Severity weights for site-level deductions.
var technicalWeights = map[audit.Severity]int{
	audit.SeverityHigh:   20,
	audit.SeverityMedium: 10,
	audit.SeverityLow:    5,
}

var severityRank = map[audit.Severity]int{
	audit.SeverityHigh:   0,
	audit.SeverityMedium: 1,
	audit.SeverityLow:    2,
}

// Input is everything the compiler needs about one crawl.
type Input struct {
	TargetURL string
	Pages     []audit.CrawlPage
	Strategy  string
	CrawlDate time.Time
}

// Compile builds the report. It never fails; missing data lowers scores
// instead.
func Compile(in Input) *audit.Report {
	pages := in.Pages
	if pages == nil {
		pages = []audit.CrawlPage{}
	}
	technical := TechnicalIssues(in.TargetURL, pages, in.Strategy)

	avg := AveragePageScore(pages)
	tech := TechnicalScore(technical)
	overall := int(math.Round((avg + float64(tech)) / 2))

	return &audit.Report{
		URL:              in.TargetURL,
		OverallScore:     clamp(overall),
		TechnicalScore:   tech,
		AveragePageScore: math.Round(avg*10) / 10,
		Summary:          Summarize(pages, technical, avg),
		Pages:            pages,
		TechnicalIssues:  technical,
		CrawlDate:        in.CrawlDate.UTC(),
		Strategy:         in.Strategy,
	}
}

// AveragePageScore is the mean of page scores above zero. Failed pages are
// excluded rather than counted as zero.
func AveragePageScore(pages []audit.CrawlPage) float64 {
	var (
		sum   int
		count int
	)
	for _, p := range pages {
		if p.Score > 0 {
			sum += p.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// TechnicalScore is clamp(100 - sum of severity weights).
func TechnicalScore(issues []audit.Issue) int {
	score := 100
	for _, issue := range issues {
		score -= technicalWeights[issue.Severity]
	}
	return clamp(score)
}

// TechnicalIssues derives site-level issues that no single page owns.
func TechnicalIssues(targetURL string, pages []audit.CrawlPage, strategy string) []audit.Issue {
	issues := []audit.Issue{}

	if u, err := url.Parse(targetURL); err == nil && strings.EqualFold(u.Scheme, "http") {
		issues = append(issues, audit.Issue{
			Type:           audit.IssueMissingHTTPS,
			Detail:         "The site is served over plain HTTP.",
			Proof:          audit.Proof{Locator: targetURL, Evidence: []string{targetURL}},
			Recommendation: "Serve every page over HTTPS and redirect HTTP requests to it.",
			Severity:       audit.SeverityHigh,
		})
	}

	var (
		failed     []string
		firstOK    *audit.CrawlPage
		structured bool
	)
	for i := range pages {
		p := &pages[i]
		if p.Failed() {
			failed = append(failed, fmt.Sprintf("%s: %s", p.URL, p.Error))
			continue
		}
		if firstOK == nil {
			firstOK = p
		}
		if p.Signals != nil && len(p.Signals.StructuredData) > 0 {
			structured = true
		}
	}

	if len(failed) > 0 {
		issues = append(issues, audit.Issue{
			Type:           audit.IssuePageFetchErrors,
			Detail:         fmt.Sprintf("%d of %d crawled pages failed to load.", len(failed), len(pages)),
			Proof:          audit.Proof{Locator: "pages", Evidence: failed, Count: len(failed)},
			Recommendation: "Fix broken links and server errors so every linked page returns a 2xx response.",
			Severity:       audit.SeverityMedium,
		})
	}

	if firstOK != nil && firstOK.Signals != nil {
		if !firstOK.Signals.MobileFriendly {
			issues = append(issues, audit.Issue{
				Type:   audit.IssueNotMobileFriendly,
				Detail: "The start page has no viewport meta tag with width=device-width.",
				Proof: audit.Proof{
					Locator:  `meta[name="viewport"]`,
					Evidence: []string{firstOK.Signals.Meta.Viewport},
				},
				Recommendation: `Add <meta name="viewport" content="width=device-width, initial-scale=1">.`,
				Severity:       audit.SeverityMedium,
			})
		}
		if !structured {
			issues = append(issues, audit.Issue{
				Type:           audit.IssueNoStructuredData,
				Detail:         "No crawled page carries JSON-LD structured data.",
				Proof:          audit.Proof{Locator: `script[type="application/ld+json"]`},
				Recommendation: "Describe the organisation, products or articles with schema.org JSON-LD.",
				Severity:       audit.SeverityLow,
			})
		}
	}

	if strategy == crawl.StrategyFallback {
		issues = append(issues, audit.Issue{
			Type:           audit.IssueFallbackCrawl,
			Detail:         "Pages were fetched without a browser, so JavaScript-rendered content was not analysed.",
			Proof:          audit.Proof{Locator: "strategy", Evidence: []string{strategy}},
			Recommendation: "Re-run the audit when the browser crawler is available for a complete picture.",
			Severity:       audit.SeverityLow,
		})
	}
	return issues
}

// Summarize renders the plain-text report summary.
func Summarize(pages []audit.CrawlPage, technical []audit.Issue, avg float64) string {
	all := make([]audit.Issue, 0, len(technical))
	all = append(all, technical...)
	for _, p := range pages {
		all = append(all, p.Issues...)
	}

	var high, medium int
	for _, issue := range all {
		switch issue.Severity {
		case audit.SeverityHigh:
			high++
		case audit.SeverityMedium:
			medium++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audited %d %s with an average page score of %.1f/100. ", len(pages), plural(len(pages), "page", "pages"), avg)
	fmt.Fprintf(&b, "Found %d high and %d medium severity issues.", high, medium)
	if priorities := TopPriorities(all, maxPriorities); len(priorities) > 0 {
		fmt.Fprintf(&b, " Top priorities: %s.", strings.Join(priorities, "; "))
	}
	return b.String()
}

// TopPriorities returns up to n unique issue titles, most severe first and
// otherwise in order of appearance.
func TopPriorities(issues []audit.Issue, n int) []string {
	ordered := make([]audit.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		return severityRank[ordered[i].Severity] < severityRank[ordered[j].Severity]
	})

	seen := make(map[string]struct{})
	titles := []string{}
	for _, issue := range ordered {
		if len(titles) == n {
			break
		}
		title := issue.Title()
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		titles = append(titles, title)
	}
	return titles
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
