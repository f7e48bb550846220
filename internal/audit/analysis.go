package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseMethod records which stage of the tolerant parser produced a result.
type ParseMethod string

// Parse methods in priority order.
const (
	ParseStrict   ParseMethod = "strict"
	ParseRepaired ParseMethod = "repaired"
	ParseSections ParseMethod = "sections"
	ParseVerbatim ParseMethod = "verbatim"
)

// AIAnalysisResult is the narrative analysis attached to a report. Parsed is
// set only when the model output could be decoded (directly or after repair);
// otherwise ParseError explains why and HTMLFallback carries a cleaned
// rendering of RawText.
type AIAnalysisResult struct {
	RawText      string      `json:"rawText"`
	Parsed       *Findings   `json:"parsed,omitempty"`
	ParseError   string      `json:"parseError,omitempty"`
	HTMLFallback string      `json:"htmlFallback"`
	Method       ParseMethod `json:"method"`
}

// Findings is the structured shape requested from the LLM.
type Findings struct {
	Summary         string         `json:"summary"`
	Score           *Score         `json:"score,omitempty"`
	KeyFindings     []string       `json:"keyFindings"`
	Issues          []FindingIssue `json:"issues"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Empty reports whether nothing useful was decoded.
func (f Findings) Empty() bool {
	return strings.TrimSpace(f.Summary) == "" && f.Score == nil &&
		len(f.KeyFindings) == 0 && len(f.Issues) == 0 && len(f.Recommendations) == 0
}

// FindingIssue is one issue block described by the LLM.
type FindingIssue struct {
	Title          string `json:"title"`
	Severity       string `json:"severity,omitempty"`
	Description    string `json:"description,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Score is a 0-100 value that decodes from a JSON number or a numeric string
// such as "72" or "72/100".
type Score int

// UnmarshalJSON accepts numbers and numeric strings.
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Score(math.Round(f))
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	str = strings.TrimSpace(str)
	if idx := strings.Index(str, "/"); idx >= 0 {
		str = strings.TrimSpace(str[:idx])
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("score %q: %w", str, err)
	}
	*s = Score(math.Round(f))
	return nil
}
