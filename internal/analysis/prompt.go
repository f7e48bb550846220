package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/llm"
)

const (
	defaultMaxSummaryChars = 12000
	truncatedMarker        = "\n[crawl summary truncated]"
	systemPrompt           = "You are an SEO auditing assistant. Answer with valid JSON only."
)

// BuildPrompt fills the {url} placeholder of tmpl and appends a bounded
// textual summary of the crawl. Raw HTML is never included.
func BuildPrompt(tmpl string, rep *audit.Report, maxChars int) llm.Prompt {
	if maxChars <= 0 {
		maxChars = defaultMaxSummaryChars
	}
	instructions := strings.ReplaceAll(tmpl, "{url}", rep.URL)
	return llm.Prompt{
		System: systemPrompt,
		User:   instructions + "\n\nCRAWL DATA\n" + SummarizeCrawl(rep, maxChars),
	}
}

// SummarizeCrawl renders the report as compact text of at most maxChars
// characters.
func SummarizeCrawl(rep *audit.Report, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", rep.URL)
	fmt.Fprintf(&b, "Crawl strategy: %s\n", rep.Strategy)
	fmt.Fprintf(&b, "Overall score: %d/100, technical score: %d/100, average page score: %.1f/100\n",
		rep.OverallScore, rep.TechnicalScore, rep.AveragePageScore)
	fmt.Fprintf(&b, "Pages crawled: %d\n", len(rep.Pages))

	if len(rep.TechnicalIssues) > 0 {
		b.WriteString("\nSite-wide issues:\n")
		for _, issue := range rep.TechnicalIssues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Severity, issue.Title(), issue.Detail)
		}
	}

	for i, page := range rep.Pages {
		fmt.Fprintf(&b, "\nPage %d: %s\n", i+1, page.URL)
		if page.Failed() {
			fmt.Fprintf(&b, "  error: %s\n", page.Error)
			continue
		}
		fmt.Fprintf(&b, "  status: %d, score: %d/100\n", page.StatusCode, page.Score)
		if s := page.Signals; s != nil {
			fmt.Fprintf(&b, "  title: %q\n", s.Title)
			fmt.Fprintf(&b, "  meta description (%d chars): %q\n", utf8.RuneCountInString(s.Meta.Description), s.Meta.Description)
			fmt.Fprintf(&b, "  h1: %s\n", quoteList(s.Headings.H1))
			fmt.Fprintf(&b, "  h2 count: %d, h3 count: %d\n", len(s.Headings.H2), len(s.Headings.H3))
			fmt.Fprintf(&b, "  words: %d, images: %d, internal links: %d, external links: %d\n",
				s.WordCount, len(s.Images), len(s.InternalLinks), len(s.ExternalLinks))
			fmt.Fprintf(&b, "  canonical: %q, robots: %q, mobile friendly: %t, structured data blocks: %d\n",
				s.Meta.Canonical, s.Meta.Robots, s.MobileFriendly, len(s.StructuredData))
		}
		for _, issue := range page.Issues {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", issue.Severity, issue.Title(), issue.Detail)
		}
	}
	return truncateRunes(b.String(), maxChars)
}

func quoteList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}

func truncateRunes(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	keep := maxChars - utf8.RuneCountInString(truncatedMarker)
	if keep < 0 {
		keep = 0
	}
	r := []rune(s)
	return string(r[:keep]) + truncatedMarker
}
