// Package extractor parses raw HTML into PageSignals and detects rule-based
// SEO issues. It is deterministic and performs no network access.
package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/links"
)

const maxEvidenceMarkup = 200

// Result is the output of Extract for one page.
type Result struct {
	Signals audit.PageSignals
	Issues  []audit.Issue
	Score   int
}

// Extract parses htmlSrc fetched from pageURL. Links are classified against
// start, the crawl's starting origin; a zero start falls back to the page's
// own origin.
func Extract(htmlSrc, pageURL string, start links.Origin) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	if start == (links.Origin{}) {
		if o, oerr := links.ParseOrigin(pageURL); oerr == nil {
			start = o
		}
	}

	signals := audit.PageSignals{
		Title:          collapse(doc.Find("title").First().Text()),
		Meta:           extractMeta(doc),
		Headings:       extractHeadings(doc),
		Images:         extractImages(doc),
		StructuredData: extractStructuredData(doc),
	}
	signals.InternalLinks, signals.ExternalLinks = extractLinks(doc, pageURL, start)
	signals.MobileFriendly = isMobileFriendly(signals.Meta.Viewport)

	issues := detectIssues(doc, signals)
	// Word counting strips script-like nodes, so it runs last.
	signals.WordCount = countWords(doc)

	return Result{
		Signals: signals,
		Issues:  issues,
		Score:   PageScore(issues),
	}, nil
}

func extractMeta(doc *goquery.Document) audit.MetaTags {
	var meta audit.MetaTags
	setOnce := func(dst *string, v string) {
		if *dst == "" {
			*dst = strings.TrimSpace(v)
		}
	}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(s.AttrOr("property", "")))
		}
		content := s.AttrOr("content", "")
		switch key {
		case "description":
			setOnce(&meta.Description, content)
		case "keywords":
			setOnce(&meta.Keywords, content)
		case "robots":
			setOnce(&meta.Robots, content)
		case "viewport":
			setOnce(&meta.Viewport, content)
		case "og:title":
			setOnce(&meta.OpenGraph.Title, content)
		case "og:description":
			setOnce(&meta.OpenGraph.Description, content)
		case "og:image":
			setOnce(&meta.OpenGraph.Image, content)
		case "og:url":
			setOnce(&meta.OpenGraph.URL, content)
		case "og:type":
			setOnce(&meta.OpenGraph.Type, content)
		case "twitter:card":
			setOnce(&meta.Twitter.Card, content)
		case "twitter:title":
			setOnce(&meta.Twitter.Title, content)
		case "twitter:description":
			setOnce(&meta.Twitter.Description, content)
		case "twitter:image":
			setOnce(&meta.Twitter.Image, content)
		}
	})
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
			if rel == "canonical" {
				meta.Canonical = strings.TrimSpace(s.AttrOr("href", ""))
				return false
			}
		}
		return true
	})
	return meta
}

func extractHeadings(doc *goquery.Document) audit.Headings {
	h := audit.Headings{H1: []string{}, H2: []string{}, H3: []string{}}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		switch goquery.NodeName(s) {
		case "h1":
			h.H1 = append(h.H1, text)
		case "h2":
			h.H2 = append(h.H2, text)
		case "h3":
			h.H3 = append(h.H3, text)
		}
	})
	return h
}

func extractImages(doc *goquery.Document) []audit.Image {
	images := []audit.Image{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		images = append(images, audit.Image{
			Src: strings.TrimSpace(s.AttrOr("src", "")),
			Alt: strings.TrimSpace(s.AttrOr("alt", "")),
		})
	})
	return images
}

func extractLinks(doc *goquery.Document, pageURL string, start links.Origin) ([]string, []string) {
	internal := newOrderedSet()
	external := newOrderedSet()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		resolved, kind := links.Resolve(s.AttrOr("href", ""), pageURL, start)
		switch kind {
		case links.Internal:
			internal.add(resolved)
		case links.External:
			external.add(resolved)
		}
	})
	return internal.items, external.items
}

func extractStructuredData(doc *goquery.Document) []json.RawMessage {
	blocks := []json.RawMessage{}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if typ != "application/ld+json" {
			return
		}
		body := strings.TrimSpace(s.Text())
		// Invalid blocks are dropped silently, not reported as issues.
		if body == "" || !json.Valid([]byte(body)) {
			return
		}
		blocks = append(blocks, json.RawMessage(body))
	})
	return blocks
}

func isMobileFriendly(viewport string) bool {
	compact := strings.ReplaceAll(strings.ToLower(viewport), " ", "")
	return strings.Contains(compact, "width=device-width")
}

func countWords(doc *goquery.Document) int {
	body := doc.Find("body")
	if body.Length() == 0 {
		return 0
	}
	body.Find("script, style, noscript, template").Remove()
	var b strings.Builder
	collectText(body, &b)
	return len(strings.Fields(b.String()))
}

// collectText joins text nodes with spaces so adjacent block elements do not
// merge into one word.
func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
			b.WriteByte(' ')
			return
		}
		collectText(c, b)
	})
}

func detectIssues(doc *goquery.Document, signals audit.PageSignals) []audit.Issue {
	issues := []audit.Issue{}

	switch n := len(signals.Headings.H1); {
	case n == 0:
		issues = append(issues, newIssue(audit.IssueMissingH1,
			"Page has no <h1> heading.",
			audit.Proof{Locator: "h1", Count: 0},
		))
	case n > 1:
		issues = append(issues, newIssue(audit.IssueMultipleH1,
			fmt.Sprintf("Page has %d <h1> headings.", n),
			audit.Proof{Locator: "h1", Evidence: append([]string(nil), signals.Headings.H1...), Count: n},
		))
	}

	desc := signals.Meta.Description
	descLen := utf8.RuneCountInString(desc)
	descProof := audit.Proof{Locator: `meta[name="description"]`, Evidence: []string{desc}, Count: descLen}
	switch {
	case desc == "":
		issues = append(issues, newIssue(audit.IssueMissingMetaDescription,
			"Meta description is missing or empty.",
			audit.Proof{Locator: `meta[name="description"]`},
		))
	case descLen < MinDescriptionLength:
		issues = append(issues, newIssue(audit.IssueShortMetaDescription,
			fmt.Sprintf("Meta description is %d characters; recommended minimum is %d.", descLen, MinDescriptionLength),
			descProof,
		))
	case descLen > MaxDescriptionLength:
		issues = append(issues, newIssue(audit.IssueLongMetaDescription,
			fmt.Sprintf("Meta description is %d characters; recommended maximum is %d.", descLen, MaxDescriptionLength),
			descProof,
		))
	}

	for _, img := range signals.Images {
		if img.Alt != "" {
			continue
		}
		src := img.Src
		if src == "" {
			src = "(no src)"
		}
		issues = append(issues, newIssue(audit.IssueMissingAlt,
			fmt.Sprintf("Image %s has no alt text.", src),
			audit.Proof{Locator: "img", Evidence: []string{src}},
		))
	}

	doc.Find("a, button").Each(func(_ int, s *goquery.Selection) {
		if hasVisibleText(s) {
			return
		}
		name := goquery.NodeName(s)
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			markup = "<" + name + ">"
		}
		issues = append(issues, newIssue(audit.IssueNoText,
			fmt.Sprintf("<%s> element has no visible text.", name),
			audit.Proof{Locator: name, Evidence: []string{truncate(markup, maxEvidenceMarkup)}},
		))
	})

	if signals.Meta.Canonical == "" {
		issues = append(issues, newIssue(audit.IssueMissingCanonical,
			"Page has no canonical link tag.",
			audit.Proof{Locator: `link[rel="canonical"]`},
		))
	}

	return issues
}

// hasVisibleText treats text content, an accessible label, a title, an image
// with alt text, or a button-typed input value as visible text.
func hasVisibleText(s *goquery.Selection) bool {
	if strings.TrimSpace(s.Text()) != "" {
		return true
	}
	for _, attr := range []string{"aria-label", "title"} {
		if strings.TrimSpace(s.AttrOr(attr, "")) != "" {
			return true
		}
	}
	found := false
	s.Find("img[alt], input[value]").EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if strings.TrimSpace(child.AttrOr("alt", "")) != "" || strings.TrimSpace(child.AttrOr("value", "")) != "" {
			found = true
			return false
		}
		return true
	})
	return found
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (o *orderedSet) add(v string) {
	if _, ok := o.seen[v]; ok {
		return
	}
	o.seen[v] = struct{}{}
	o.items = append(o.items, v)
}
