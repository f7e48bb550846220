package extractor

import "github.com/JakeFAU/site-auditor/internal/audit"

// Meta description length bounds, in characters.
const (
	MinDescriptionLength = 50
	MaxDescriptionLength = 160
)

type rule struct {
	severity       audit.Severity
	deduction      int
	recommendation string
}

var rules = map[audit.IssueType]rule{
	audit.IssueMissingH1: {
		severity:       audit.SeverityHigh,
		deduction:      10,
		recommendation: "Add a single <h1> that describes the page's main topic.",
	},
	audit.IssueMultipleH1: {
		severity:       audit.SeverityMedium,
		deduction:      3,
		recommendation: "Keep one <h1> per page and demote the others to <h2> or lower.",
	},
	audit.IssueMissingMetaDescription: {
		severity:       audit.SeverityHigh,
		deduction:      10,
		recommendation: "Write a unique meta description of 50-160 characters summarising the page.",
	},
	audit.IssueShortMetaDescription: {
		severity:       audit.SeverityLow,
		deduction:      2,
		recommendation: "Expand the meta description to at least 50 characters.",
	},
	audit.IssueLongMetaDescription: {
		severity:       audit.SeverityLow,
		deduction:      2,
		recommendation: "Shorten the meta description to 160 characters or fewer so it is not truncated.",
	},
	audit.IssueMissingAlt: {
		severity:       audit.SeverityMedium,
		deduction:      2,
		recommendation: "Describe the image in its alt attribute, or use alt=\"\" with role=\"presentation\" only for decorative images.",
	},
	audit.IssueNoText: {
		severity:       audit.SeverityMedium,
		deduction:      2,
		recommendation: "Give the element visible text or an aria-label so users and crawlers understand its purpose.",
	},
	audit.IssueMissingCanonical: {
		severity:       audit.SeverityMedium,
		deduction:      3,
		recommendation: "Add <link rel=\"canonical\"> pointing at the preferred URL of this page.",
	},
}

// Deduction returns the score penalty of a page-level issue type; unknown
// types deduct nothing.
func Deduction(t audit.IssueType) int {
	return rules[t].deduction
}

// PageScore returns clamp(100 - sum of deductions, 0, 100).
func PageScore(issues []audit.Issue) int {
	score := 100
	for _, issue := range issues {
		score -= Deduction(issue.Type)
	}
	return clamp(score, 0, 100)
}

func newIssue(t audit.IssueType, detail string, proof audit.Proof) audit.Issue {
	r := rules[t]
	return audit.Issue{
		Type:           t,
		Detail:         detail,
		Proof:          proof,
		Recommendation: r.recommendation,
		Severity:       r.severity,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
