package analysis

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionSummary
	sectionScore
	sectionFindings
	sectionIssues
	sectionRecommendations
)

var (
	headingRe = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\*\*|__)?\s*` +
		`(executive summary|summary|overview|overall score|seo score|score|key findings|findings|` +
		`issues found|issues|problems|recommendations|next steps|action items)` +
		`\s*(?:\*\*|__)?\s*:?\s*(?:\*\*|__)?\s*(.*)$`)
	listItemRe  = regexp.MustCompile(`^\s*(?:[-*•+]|\d{1,2}[.)])\s+(.+)$`)
	scoreRe     = regexp.MustCompile(`(?i)\b(\d{1,3})(?:\s*/\s*100|\s*%|\s+out of 100)?\b`)
	anyScoreRe  = regexp.MustCompile(`(?i)score[^0-9\n]{0,20}(\d{1,3})\s*(?:/\s*100|out of 100)?`)
	severityRe  = regexp.MustCompile(`(?i)\b(high|medium|low)\b`)
	issueSplit  = regexp.MustCompile(`^\s*(?:\*\*)?([^:*]{3,120}?)(?:\*\*)?\s*(?::|\s[-–]\s)\s*(.+)$`)
	markdownRe  = regexp.MustCompile("(\\*\\*|__|`)")
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

func classifyHeading(name string) sectionKind {
	switch strings.ToLower(name) {
	case "executive summary", "summary", "overview":
		return sectionSummary
	case "overall score", "seo score", "score":
		return sectionScore
	case "key findings", "findings":
		return sectionFindings
	case "issues found", "issues", "problems":
		return sectionIssues
	case "recommendations", "next steps", "action items":
		return sectionRecommendations
	default:
		return sectionNone
	}
}

// ExtractSections pulls recognizable named sections out of free text. It
// reports false when nothing was recognized.
func ExtractSections(text string) (audit.Findings, bool) {
	var (
		f       audit.Findings
		current = sectionNone
		summary []string
	)
	f.KeyFindings = []string{}
	f.Issues = []audit.FindingIssue{}

	for _, line := range strings.Split(text, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil && looksLikeHeading(line, m[2]) {
			current = classifyHeading(m[1])
			if rest := strings.TrimSpace(m[2]); rest != "" {
				addToSection(&f, &summary, current, rest)
			}
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			current = sectionNone
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		addToSection(&f, &summary, current, line)
	}

	f.Summary = strings.Join(summary, " ")
	if f.Score == nil {
		if m := anyScoreRe.FindStringSubmatch(text); m != nil {
			f.Score = parseScore(m[1])
		}
	}
	return f, !f.Empty()
}

// looksLikeHeading rejects prose that merely starts with a section word,
// such as "Issues with the site are...".
func looksLikeHeading(line, rest string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "**") || strings.HasPrefix(trimmed, "__") {
		return true
	}
	if strings.TrimSpace(rest) == "" {
		return true
	}
	return strings.Contains(line[:len(line)-len(rest)], ":")
}

func addToSection(f *audit.Findings, summary *[]string, kind sectionKind, line string) {
	item := strings.TrimSpace(line)
	if m := listItemRe.FindStringSubmatch(line); m != nil {
		item = strings.TrimSpace(m[1])
	}
	item = strings.TrimSpace(markdownRe.ReplaceAllString(item, ""))
	if item == "" {
		return
	}
	switch kind {
	case sectionSummary:
		*summary = append(*summary, item)
	case sectionScore:
		if f.Score == nil {
			if m := scoreRe.FindStringSubmatch(item); m != nil {
				f.Score = parseScore(m[1])
			}
		}
	case sectionFindings:
		f.KeyFindings = append(f.KeyFindings, item)
	case sectionIssues:
		issue := audit.FindingIssue{Title: item}
		if m := issueSplit.FindStringSubmatch(item); m != nil {
			issue.Title = strings.TrimSpace(m[1])
			issue.Description = strings.TrimSpace(m[2])
		}
		if m := severityRe.FindStringSubmatch(item); m != nil {
			issue.Severity = strings.ToLower(m[1])
		}
		f.Issues = append(f.Issues, issue)
	case sectionRecommendations:
		f.Recommendations = append(f.Recommendations, item)
	}
}

func parseScore(s string) *audit.Score {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 100 {
		return nil
	}
	score := audit.Score(n)
	return &score
}

// RenderHTML renders findings as an HTML fragment. All text is escaped.
func RenderHTML(f audit.Findings) string {
	var b strings.Builder
	b.WriteString(`<div class="ai-analysis">`)
	if f.Score != nil {
		b.WriteString(`<p class="ai-score">Score: ` + strconv.Itoa(int(*f.Score)) + `/100</p>`)
	}
	if s := strings.TrimSpace(f.Summary); s != "" {
		b.WriteString("<h3>Summary</h3><p>" + html.EscapeString(s) + "</p>")
	}
	writeList(&b, "Key findings", f.KeyFindings)
	if len(f.Issues) > 0 {
		b.WriteString("<h3>Issues</h3><ul>")
		for _, issue := range f.Issues {
			b.WriteString("<li><strong>" + html.EscapeString(issue.Title) + "</strong>")
			if issue.Severity != "" {
				b.WriteString(" (" + html.EscapeString(issue.Severity) + ")")
			}
			if issue.Description != "" {
				b.WriteString(": " + html.EscapeString(issue.Description))
			}
			if issue.Recommendation != "" {
				b.WriteString("<br><em>Fix:</em> " + html.EscapeString(issue.Recommendation))
			}
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}
	writeList(&b, "Recommendations", f.Recommendations)
	b.WriteString("</div>")
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("<h3>" + title + "</h3><ul>")
	for _, item := range items {
		b.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	b.WriteString("</ul>")
}

// CleanText strips code fences and markdown emphasis and collapses blank
// runs.
func CleanText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	s = markdownRe.ReplaceAllString(strings.Join(kept, "\n"), "")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// VerbatimHTML renders cleaned text as escaped paragraphs so the user never
// sees an empty result.
func VerbatimHTML(raw string) string {
	text := CleanText(raw)
	if text == "" {
		return `<div class="ai-analysis"><p>The analysis returned no content.</p></div>`
	}
	var b strings.Builder
	b.WriteString(`<div class="ai-analysis">`)
	for _, para := range strings.Split(text, "\n\n") {
		escaped := html.EscapeString(strings.TrimSpace(para))
		b.WriteString("<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>")
	}
	b.WriteString("</div>")
	return b.String()
}
