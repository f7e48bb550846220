// Package analysis enriches a compiled report with an LLM-written
// assessment and turns whatever the model returns into something
// displayable.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/llm"
)

// ErrTimeout means the model did not answer in time. The crawl-only report
// is still valid.
var ErrTimeout = errors.New("ai analysis timed out")

// Config tunes the stage.
type Config struct {
	Timeout          time.Duration
	MaxSummaryChars  int
	ChunkThreshold   int
	ChunkSize        int
	ChunkConcurrency int
}

// Stage runs the AI analysis for one report.
type Stage struct {
	gen       llm.Generator
	templates *TemplateSource
	cfg       Config
	logger    *zap.Logger
}

// NewStage builds a Stage.
func NewStage(gen llm.Generator, templates *TemplateSource, cfg Config, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if templates == nil {
		templates = NewTemplateSource("", logger)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = 24000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8000
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 3
	}
	return &Stage{gen: gen, templates: templates, cfg: cfg, logger: logger}
}

// Analyze asks the model for an assessment of rep. Malformed output is
// recovered, never returned as an error. Errors are ErrTimeout or a
// transport failure; either way rep remains usable without enrichment.
func (s *Stage) Analyze(ctx context.Context, rep *audit.Report) (*audit.AIAnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	prompt := BuildPrompt(s.templates.Template(ctx), rep, s.cfg.MaxSummaryChars)
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, s.cfg.Timeout, err)
		}
		return nil, fmt.Errorf("generate analysis: %w", err)
	}

	result := Parse(raw)
	if result.Parsed == nil && len(raw) > s.cfg.ChunkThreshold {
		result = s.cleanupLarge(ctx, raw, result)
	}
	s.logger.Debug("ai analysis parsed",
		zap.String("url", rep.URL),
		zap.String("method", string(result.Method)),
		zap.Int("raw_bytes", len(raw)),
	)
	return result, nil
}

// cleanupLarge runs chunked cleanup over an oversized response and keeps
// the cleaned parse only when it decodes better than the original.
func (s *Stage) cleanupLarge(ctx context.Context, raw string, original *audit.AIAnalysisResult) *audit.AIAnalysisResult {
	chunks := SplitChunks(raw, s.cfg.ChunkSize)
	cleaned, err := CleanupChunks(ctx, s.gen, chunks, s.cfg.ChunkConcurrency, s.logger)
	if err != nil {
		s.logger.Warn("chunked cleanup failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return original
	}
	better := Parse(cleaned)
	if methodRank(better.Method) >= methodRank(original.Method) {
		return original
	}
	better.RawText = raw
	return better
}

func methodRank(m audit.ParseMethod) int {
	switch m {
	case audit.ParseStrict:
		return 0
	case audit.ParseRepaired:
		return 1
	case audit.ParseSections:
		return 2
	default:
		return 3
	}
}

// Notice returns the user-facing note for a failed analysis.
func Notice(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "AI analysis timed out; showing crawl results only."
	}
	return "AI analysis is unavailable right now; showing crawl results only."
}
