package audit

import (
	"encoding/json"
	"time"
)

// Options captures per-audit knobs requested by the caller.
type Options struct {
	IncludeScreenshot bool `json:"includeScreenshot"`
	MultiPage         bool `json:"multiPage"`
	MaxPages          int  `json:"maxPages"`
}

// FailureInfo is the user-visible context of a failed audit.
type FailureInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Audit is one request to evaluate a target URL, tracked from creation to a
// terminal state.
type Audit struct {
	ID        string       `json:"id"`
	TargetURL string       `json:"url"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Score     *int         `json:"score,omitempty"`
	Report    *Report      `json:"report,omitempty"`
	Options   Options      `json:"options"`
	Error     *FailureInfo `json:"error,omitempty"`
}

// OpenGraph holds og:* meta properties.
type OpenGraph struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
	Type        string `json:"type"`
}

// TwitterCard holds twitter:* meta names.
type TwitterCard struct {
	Card        string `json:"card"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// MetaTags holds the page's meta tags. Absent tags are empty strings.
type MetaTags struct {
	Description string      `json:"description"`
	Keywords    string      `json:"keywords"`
	Canonical   string      `json:"canonical"`
	Robots      string      `json:"robots"`
	Viewport    string      `json:"viewport"`
	OpenGraph   OpenGraph   `json:"openGraph"`
	Twitter     TwitterCard `json:"twitter"`
}

// Headings holds heading texts in document order.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// Image is an <img> source with its alt text.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// PageSignals is the structured SEO record extracted from one page.
type PageSignals struct {
	Title          string            `json:"title"`
	Meta           MetaTags          `json:"meta"`
	Headings       Headings          `json:"headings"`
	Images         []Image           `json:"images"`
	InternalLinks  []string          `json:"internalLinks"`
	ExternalLinks  []string          `json:"externalLinks"`
	StructuredData []json.RawMessage `json:"structuredData"`
	MobileFriendly bool              `json:"mobileFriendly"`
	WordCount      int               `json:"wordCount"`
}

// CrawlPage is one visited page. Signals is nil when the page failed to load.
type CrawlPage struct {
	URL         string       `json:"url"`
	FinalURL    string       `json:"finalUrl,omitempty"`
	StatusCode  int          `json:"statusCode,omitempty"`
	HTML        string       `json:"html,omitempty"`
	Signals     *PageSignals `json:"signals,omitempty"`
	Issues      []Issue      `json:"issues"`
	Score       int          `json:"score"`
	Screenshot  string       `json:"screenshot,omitempty"`
	Error       string       `json:"error,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	SnapshotURI string       `json:"snapshotUri,omitempty"`
}

// Failed reports whether the page carries an unrecoverable load error.
func (p CrawlPage) Failed() bool {
	return p.Error != ""
}

// Report is the compiled result of an audit. The AI stage may attach
// AIAnalysis or AINotice but never rewrites the other fields.
type Report struct {
	URL              string            `json:"url"`
	OverallScore     int               `json:"overallScore"`
	TechnicalScore   int               `json:"technicalScore"`
	AveragePageScore float64           `json:"averagePageScore"`
	Summary          string            `json:"summary"`
	Pages            []CrawlPage       `json:"pages"`
	TechnicalIssues  []Issue           `json:"technicalIssues"`
	CrawlDate        time.Time         `json:"crawlDate"`
	Strategy         string            `json:"strategy"`
	AIAnalysis       *AIAnalysisResult `json:"aiAnalysis,omitempty"`
	AINotice         string            `json:"aiNotice,omitempty"`
}

// QueueItem wraps an audit ready to run in the background.
type QueueItem struct {
	AuditID   string
	TargetURL string
	Options   Options
	Submitted int64
}
