package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

var errEmptyFindings = errors.New("no recognizable fields")

// findingsWire accepts the documented camelCase keys plus the snake_case
// spellings models often produce.
type findingsWire struct {
	Summary             string               `json:"summary"`
	Score               *audit.Score         `json:"score"`
	OverallScore        *audit.Score         `json:"overall_score"`
	KeyFindings         []string             `json:"keyFindings"`
	KeyFindingsSnake    []string             `json:"key_findings"`
	Issues              []audit.FindingIssue `json:"issues"`
	Recommendations     []string             `json:"recommendations"`
	ExecutiveSummary    string               `json:"executive_summary"`
	ExecutiveSummaryAlt string               `json:"executiveSummary"`
}

func decodeFindings(text string) (*audit.Findings, error) {
	var w findingsWire
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, err
	}
	f := &audit.Findings{
		Summary:         firstNonEmpty(w.Summary, w.ExecutiveSummary, w.ExecutiveSummaryAlt),
		Score:           w.Score,
		KeyFindings:     w.KeyFindings,
		Issues:          w.Issues,
		Recommendations: w.Recommendations,
	}
	if f.Score == nil {
		f.Score = w.OverallScore
	}
	if len(f.KeyFindings) == 0 {
		f.KeyFindings = w.KeyFindingsSnake
	}
	if f.Empty() {
		return nil, errEmptyFindings
	}
	if f.KeyFindings == nil {
		f.KeyFindings = []string{}
	}
	if f.Issues == nil {
		f.Issues = []audit.FindingIssue{}
	}
	return f, nil
}

// Parse decodes model output, trying in order: strict JSON, repaired JSON,
// named sections pulled from prose, and finally the cleaned text itself.
// It never fails and always yields something displayable.
func Parse(raw string) *audit.AIAnalysisResult {
	res := &audit.AIAnalysisResult{RawText: raw}

	f, strictErr := decodeFindings(strings.TrimSpace(raw))
	if strictErr == nil {
		res.Parsed = f
		res.Method = audit.ParseStrict
		res.HTMLFallback = RenderHTML(*f)
		return res
	}

	f, repairErr := decodeFindings(Repair(raw))
	if repairErr == nil {
		res.Parsed = f
		res.Method = audit.ParseRepaired
		res.HTMLFallback = RenderHTML(*f)
		return res
	}

	res.ParseError = fmt.Sprintf("invalid JSON: %v; after repair: %v", strictErr, repairErr)
	if sections, ok := ExtractSections(raw); ok {
		res.Method = audit.ParseSections
		res.HTMLFallback = RenderHTML(sections)
		return res
	}

	res.Method = audit.ParseVerbatim
	res.HTMLFallback = VerbatimHTML(raw)
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
