package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/crawl"
)

func okPage(url string, score int, issues ...audit.Issue) audit.CrawlPage {
	return audit.CrawlPage{
		URL:        url,
		StatusCode: 200,
		Score:      score,
		Issues:     issues,
		Signals: &audit.PageSignals{
			MobileFriendly: true,
			StructuredData: []json.RawMessage{json.RawMessage(`{}`)},
		},
	}
}

func TestCompile_HTTPTargetFlagsMissingHTTPS(t *testing.T) {
	t.Parallel()

	rep := Compile(Input{
		TargetURL: "http://example.com/",
		Pages:     []audit.CrawlPage{okPage("http://example.com/", 90)},
		Strategy:  crawl.StrategyPrimary,
		CrawlDate: time.Unix(0, 0),
	})

	require.Len(t, rep.TechnicalIssues, 1)
	require.Equal(t, audit.IssueMissingHTTPS, rep.TechnicalIssues[0].Type)
	require.Equal(t, audit.SeverityHigh, rep.TechnicalIssues[0].Severity)
	require.Equal(t, 80, rep.TechnicalScore)
	require.Equal(t, 85, rep.OverallScore)
}

func TestCompile_HTTPSCleanSite(t *testing.T) {
	t.Parallel()

	rep := Compile(Input{
		TargetURL: "https://example.com/",
		Pages:     []audit.CrawlPage{okPage("https://example.com/", 100)},
		Strategy:  crawl.StrategyPrimary,
	})
	require.Empty(t, rep.TechnicalIssues)
	require.Equal(t, 100, rep.TechnicalScore)
	require.Equal(t, 100, rep.OverallScore)
	require.Equal(t, "Audited 1 page with an average page score of 100.0/100. Found 0 high and 0 medium severity issues.", rep.Summary)
}

func TestCompile_FailedPagesExcludedFromAverage(t *testing.T) {
	t.Parallel()

	pages := []audit.CrawlPage{
		okPage("https://a.com/", 80),
		okPage("https://a.com/b", 90),
		{URL: "https://a.com/c", StatusCode: 500, Error: "HTTP 500"},
	}
	rep := Compile(Input{TargetURL: "https://a.com/", Pages: pages, Strategy: crawl.StrategyPrimary})

	require.InDelta(t, 85.0, rep.AveragePageScore, 0.001)
	require.Len(t, rep.TechnicalIssues, 1)
	fetchErrs := rep.TechnicalIssues[0]
	require.Equal(t, audit.IssuePageFetchErrors, fetchErrs.Type)
	require.Equal(t, []string{"https://a.com/c: HTTP 500"}, fetchErrs.Proof.Evidence)
	require.Equal(t, 90, rep.TechnicalScore)
	// round((85 + 90) / 2)
	require.Equal(t, 88, rep.OverallScore)
}

func TestTechnicalIssues_SiteChecks(t *testing.T) {
	t.Parallel()

	page := okPage("https://a.com/", 70)
	page.Signals.MobileFriendly = false
	page.Signals.StructuredData = nil

	issues := TechnicalIssues("https://a.com/", []audit.CrawlPage{page}, crawl.StrategyFallback)
	var types []audit.IssueType
	for _, issue := range issues {
		types = append(types, issue.Type)
	}
	require.Equal(t, []audit.IssueType{
		audit.IssueNotMobileFriendly,
		audit.IssueNoStructuredData,
		audit.IssueFallbackCrawl,
	}, types)
	// 100 - 10 - 5 - 5
	require.Equal(t, 80, TechnicalScore(issues))
}

func TestTechnicalScoreClamps(t *testing.T) {
	t.Parallel()

	issues := make([]audit.Issue, 6)
	for i := range issues {
		issues[i] = audit.Issue{Severity: audit.SeverityHigh}
	}
	require.Equal(t, 0, TechnicalScore(issues))
}

func TestAveragePageScoreNoScoredPages(t *testing.T) {
	t.Parallel()

	require.Zero(t, AveragePageScore(nil))
	require.Zero(t, AveragePageScore([]audit.CrawlPage{{Error: "No response"}}))
}

func TestTopPrioritiesOrdersBySeverity(t *testing.T) {
	t.Parallel()

	issues := []audit.Issue{
		{Type: audit.IssueMissingCanonical, Severity: audit.SeverityMedium},
		{Type: audit.IssueShortMetaDescription, Severity: audit.SeverityLow},
		{Type: audit.IssueMissingH1, Severity: audit.SeverityHigh},
		{Type: audit.IssueMissingH1, Severity: audit.SeverityHigh},
		{Type: audit.IssueMissingAlt, Severity: audit.SeverityMedium},
	}
	require.Equal(t, []string{
		"Missing H1 heading",
		"Missing canonical tag",
		"Image without alt text",
	}, TopPriorities(issues, 3))
}

func TestSummarizeCountsAllIssues(t *testing.T) {
	t.Parallel()

	pages := []audit.CrawlPage{
		okPage("https://a.com/", 80,
			audit.Issue{Type: audit.IssueMissingH1, Severity: audit.SeverityHigh},
			audit.Issue{Type: audit.IssueMissingAlt, Severity: audit.SeverityMedium},
		),
		okPage("https://a.com/x", 90),
	}
	technical := []audit.Issue{{Type: audit.IssueMissingHTTPS, Severity: audit.SeverityHigh}}

	got := Summarize(pages, technical, 85)
	require.Equal(t,
		"Audited 2 pages with an average page score of 85.0/100. Found 2 high and 1 medium severity issues. "+
			"Top priorities: Site not served over HTTPS; Missing H1 heading; Image without alt text.",
		got,
	)
}
