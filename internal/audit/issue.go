package audit

// Severity grades an Issue.
type Severity string

// Supported severities.
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is one of high, medium or low.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// IssueType identifies the rule that produced an Issue.
type IssueType string

// Page-level issue types emitted by the extractor.
const (
	IssueMissingH1              IssueType = "missing_h1"
	IssueMultipleH1             IssueType = "multiple_h1"
	IssueMissingMetaDescription IssueType = "missing_meta_description"
	IssueShortMetaDescription   IssueType = "short_meta_description"
	IssueLongMetaDescription    IssueType = "long_meta_description"
	IssueMissingAlt             IssueType = "missing_alt"
	IssueNoText                 IssueType = "no_text"
	IssueMissingCanonical       IssueType = "missing_canonical"
)

// Site-level issue types emitted by the report compiler.
const (
	IssueMissingHTTPS      IssueType = "missing_https"
	IssuePageFetchErrors   IssueType = "page_fetch_errors"
	IssueNotMobileFriendly IssueType = "not_mobile_friendly"
	IssueNoStructuredData  IssueType = "no_structured_data"
	IssueFallbackCrawl     IssueType = "fallback_crawl"
)

var issueTitles = map[IssueType]string{
	IssueMissingH1:              "Missing H1 heading",
	IssueMultipleH1:             "Multiple H1 headings",
	IssueMissingMetaDescription: "Missing meta description",
	IssueShortMetaDescription:   "Meta description too short",
	IssueLongMetaDescription:    "Meta description too long",
	IssueMissingAlt:             "Image without alt text",
	IssueNoText:                 "Link or button without text",
	IssueMissingCanonical:       "Missing canonical tag",
	IssueMissingHTTPS:           "Site not served over HTTPS",
	IssuePageFetchErrors:        "Pages failed to load",
	IssueNotMobileFriendly:      "No mobile viewport",
	IssueNoStructuredData:       "No structured data",
	IssueFallbackCrawl:          "JavaScript content not analysed",
}

// Title returns a short human readable label for the issue type.
func (t IssueType) Title() string {
	if title, ok := issueTitles[t]; ok {
		return title
	}
	return string(t)
}

// Proof is the evidence attached to an Issue so a reviewer can verify it
// without re-crawling the page.
type Proof struct {
	// Locator names where the evidence was found (a selector or URL).
	Locator string `json:"locator,omitempty"`
	// Evidence holds the offending values: heading texts, image sources,
	// element markup, failed URLs.
	Evidence []string `json:"evidence,omitempty"`
	// Count is the number of offending occurrences when more than the
	// evidence list conveys.
	Count int `json:"count,omitempty"`
}

// Issue is a single rule-based finding against a page or the whole site.
// Issues are append-only and never mutated once created.
type Issue struct {
	Type           IssueType `json:"type"`
	Detail         string    `json:"detail"`
	Proof          Proof     `json:"proof"`
	Recommendation string    `json:"recommendation"`
	Severity       Severity  `json:"severity"`
}

// Title returns the label of the issue's type.
func (i Issue) Title() string {
	return i.Type.Title()
}
