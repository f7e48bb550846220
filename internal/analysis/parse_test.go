package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

func TestParseStrict(t *testing.T) {
	t.Parallel()

	raw := `{"summary":"Good <b>site</b>","score":"72/100","keyFindings":["fast"],"issues":[{"title":"Thin content","severity":"medium"}]}`
	res := Parse(raw)
	require.Equal(t, audit.ParseStrict, res.Method)
	require.Empty(t, res.ParseError)
	require.EqualValues(t, 72, *res.Parsed.Score)
	require.Equal(t, []string{"fast"}, res.Parsed.KeyFindings)
	require.Contains(t, res.HTMLFallback, "Good &lt;b&gt;site&lt;/b&gt;")
	require.Equal(t, raw, res.RawText)
}

func TestParseAcceptsSnakeCase(t *testing.T) {
	t.Parallel()

	res := Parse(`{"executive_summary":"ok","overall_score":55,"key_findings":["a"]}`)
	require.Equal(t, audit.ParseStrict, res.Method)
	require.Equal(t, "ok", res.Parsed.Summary)
	require.EqualValues(t, 55, *res.Parsed.Score)
	require.Equal(t, []string{"a"}, res.Parsed.KeyFindings)
}

func TestParseRepaired(t *testing.T) {
	t.Parallel()

	res := Parse("```json\n{\"summary\": \"needs work\", \"keyFindings\": [\"no h1\",],\n```")
	require.Equal(t, audit.ParseRepaired, res.Method)
	require.Equal(t, "needs work", res.Parsed.Summary)
}

func TestParseRepairedKeepsTypographicQuotes(t *testing.T) {
	t.Parallel()

	res := Parse(`{"summary": "he said “hi” there", "score": 5,}`)
	require.Equal(t, audit.ParseRepaired, res.Method)
	require.NotNil(t, res.Parsed)
	require.Equal(t, `he said "hi" there`, res.Parsed.Summary)
	require.EqualValues(t, 5, *res.Parsed.Score)
}

func TestParseSections(t *testing.T) {
	t.Parallel()

	raw := `## Summary
The site is well structured but lacks metadata.

**Score:** 64/100

### Key Findings
- Missing meta descriptions on 3 pages
- Good heading hierarchy

### Issues
1. **Missing meta description** - high impact on click-through rate
2. Images without alt: medium severity

### Recommendations
* Write unique descriptions
`
	res := Parse(raw)
	require.Equal(t, audit.ParseSections, res.Method)
	require.Nil(t, res.Parsed)
	require.NotEmpty(t, res.ParseError)
	require.Contains(t, res.HTMLFallback, "The site is well structured")
	require.Contains(t, res.HTMLFallback, "Score: 64/100")
	require.Contains(t, res.HTMLFallback, "Write unique descriptions")
}

func TestParseVerbatim(t *testing.T) {
	t.Parallel()

	raw := "The model rambled <script>alert(1)</script>\n\n\n\nwith **no** structure."
	res := Parse(raw)
	require.Equal(t, audit.ParseVerbatim, res.Method)
	require.NotContains(t, res.HTMLFallback, "<script>")
	require.Contains(t, res.HTMLFallback, "&lt;script&gt;")
	require.Contains(t, res.HTMLFallback, "<p>with no structure.</p>")
}

func TestParseEmptyNeverBlank(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "{}", "```\n```"} {
		res := Parse(raw)
		require.NotEmpty(t, strings.TrimSpace(res.HTMLFallback), "raw=%q", raw)
	}
}

func TestExtractSectionsDetails(t *testing.T) {
	t.Parallel()

	f, ok := ExtractSections("Overall Score: 88\nIssues:\n- Slow pages: high severity\n- Duplicate titles - low")
	require.True(t, ok)
	require.EqualValues(t, 88, *f.Score)
	require.Len(t, f.Issues, 2)
	require.Equal(t, "Slow pages", f.Issues[0].Title)
	require.Equal(t, "high", f.Issues[0].Severity)
	require.Equal(t, "Duplicate titles", f.Issues[1].Title)
	require.Equal(t, "low", f.Issues[1].Severity)

	_, ok = ExtractSections("Issues with the site are many and varied.")
	require.False(t, ok)
}
