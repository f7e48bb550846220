// Package orchestrator owns the audit lifecycle: it accepts submissions,
// runs the crawl strategy chain in the background, compiles and persists
// the report, and optionally enriches it with AI analysis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/analysis"
	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/crawl"
	"github.com/JakeFAU/site-auditor/internal/metrics"
	"github.com/JakeFAU/site-auditor/internal/report"
)

// ErrInvalidURL is returned by Submit when the target cannot be audited.
var ErrInvalidURL = errors.New("invalid audit url")

// Failure kinds recorded on audit.FailureInfo besides the crawl kinds.
const (
	KindPersistenceFailure = "persistence_failure"
	KindEnqueueFailure     = "enqueue_failure"
)

// Crawler produces the page set for one audit. *crawl.Chain implements it.
type Crawler interface {
	Run(ctx context.Context, req crawl.Request) (crawl.Result, error)
}

// Analyzer enriches a compiled report. *analysis.Stage implements it.
type Analyzer interface {
	Analyze(ctx context.Context, rep *audit.Report) (*audit.AIAnalysisResult, error)
}

// Config holds orchestration knobs.
type Config struct {
	DefaultMaxPages  int
	MaxPagesLimit    int
	MultiPageDefault bool
	Topic            string
	SnapshotPrefix   string
	PollInterval     time.Duration
}

// Deps are the collaborators of an Orchestrator. Analyzer, Blobs and
// Publisher are optional.
type Deps struct {
	Store     audit.Store
	Queue     audit.Queue
	Crawler   Crawler
	Analyzer  Analyzer
	Blobs     audit.BlobStore
	Publisher audit.Publisher
	Hasher    audit.Hasher
	Clock     audit.Clock
	IDs       audit.IDGenerator
}

// SubmitRequest is a caller's audit request. Nil fields take configured
// defaults.
type SubmitRequest struct {
	URL               string
	IncludeScreenshot bool
	MultiPage         *bool
	MaxPages          *int
}

// Orchestrator drives audits through queued, in-progress, processing and a
// terminal status. Statuses only move forward.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Queue == nil:
		return nil, errors.New("orchestrator: queue is required")
	case deps.Crawler == nil:
		return nil, errors.New("orchestrator: crawler is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("orchestrator: id generator is required")
	case deps.Blobs != nil && deps.Hasher == nil:
		return nil, errors.New("orchestrator: hasher is required for snapshots")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 15
	}
	if cfg.MaxPagesLimit <= 0 {
		cfg.MaxPagesLimit = 50
	}
	if cfg.DefaultMaxPages > cfg.MaxPagesLimit {
		cfg.DefaultMaxPages = cfg.MaxPagesLimit
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "snapshots"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
		waiters: make(map[string]chan struct{}),
	}, nil
}

// Submit validates req, persists a new audit and hands it to the queue. The
// returned audit is already in-progress; the crawl runs in the background.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (audit.Audit, error) {
	target, err := NormalizeTarget(req.URL)
	if err != nil {
		return audit.Audit{}, err
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		return audit.Audit{}, fmt.Errorf("generate audit id: %w", err)
	}
	now := o.deps.Clock.Now()
	a := audit.Audit{
		ID:        id,
		TargetURL: target,
		Status:    audit.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Options:   o.options(req),
	}
	if err := o.deps.Store.CreateAudit(ctx, a); err != nil {
		return audit.Audit{}, fmt.Errorf("create audit: %w", err)
	}
	o.publish(ctx, a)
	o.register(id)

	// in-progress is written before the item is visible to workers so a
	// fast worker never races this write.
	if err := o.transition(ctx, &a, audit.StatusInProgress); err != nil {
		o.release(id)
		return audit.Audit{}, err
	}
	item := audit.QueueItem{
		AuditID:   a.ID,
		TargetURL: a.TargetURL,
		Options:   a.Options,
		Submitted: now.Unix(),
	}
	if err := o.deps.Queue.Enqueue(ctx, item); err != nil {
		o.fail(ctx, &a, KindEnqueueFailure, err)
		o.release(id)
		return audit.Audit{}, fmt.Errorf("enqueue audit: %w", err)
	}
	o.logger.Info("audit submitted",
		zap.String("audit_id", a.ID),
		zap.String("url", a.TargetURL),
		zap.Int("max_pages", a.Options.MaxPages),
		zap.Bool("multi_page", a.Options.MultiPage),
	)
	return a, nil
}

// Run executes the pipeline for one queued audit. A returned error means
// the audit failed or could not be persisted; the record carries the
// details either way.
func (o *Orchestrator) Run(ctx context.Context, item audit.QueueItem) error {
	defer o.release(item.AuditID)

	a, err := o.deps.Store.GetAudit(ctx, item.AuditID)
	if err != nil {
		return fmt.Errorf("load audit %s: %w", item.AuditID, err)
	}
	if a.Status.Terminal() {
		o.logger.Debug("audit already finished", zap.String("audit_id", a.ID), zap.String("status", string(a.Status)))
		return nil
	}
	logger := o.logger.With(zap.String("audit_id", a.ID), zap.String("url", a.TargetURL))

	if err := o.transition(ctx, &a, audit.StatusProcessing); err != nil {
		return err
	}

	start := o.deps.Clock.Now()
	res, err := o.deps.Crawler.Run(ctx, crawl.Request{
		TargetURL:         a.TargetURL,
		MaxPages:          a.Options.MaxPages,
		MultiPage:         a.Options.MultiPage,
		IncludeScreenshot: a.Options.IncludeScreenshot,
	})
	for _, attempt := range res.Attempts {
		metrics.ObserveStrategyFailure(attempt.Strategy, attempt.Kind)
	}
	if err != nil {
		kind := crawl.KindOf(err)
		if kind == crawl.KindCanceled || errors.Is(err, context.Canceled) {
			// Interrupted, not failed: the record keeps its current status.
			logger.Warn("audit crawl interrupted", zap.Error(err))
			return fmt.Errorf("crawl audit %s interrupted: %w", a.ID, err)
		}
		if kind == "" {
			kind = crawl.KindTotalCrawlFailure
		}
		logger.Error("crawl failed", zap.String("kind", kind), zap.Error(err))
		o.fail(ctx, &a, kind, err)
		return fmt.Errorf("crawl audit %s: %w", a.ID, err)
	}
	if len(res.Attempts) > 0 {
		logger.Warn("audit crawled with fallback strategy",
			zap.String("strategy", res.Strategy),
			zap.Int("failed_attempts", len(res.Attempts)),
		)
	}
	for _, p := range res.Pages {
		outcome := "ok"
		if p.Failed() {
			outcome = "error"
		}
		metrics.ObservePage(p.URL, res.Strategy, outcome, len(p.HTML))
	}

	rep := report.Compile(report.Input{
		TargetURL: a.TargetURL,
		Pages:     res.Pages,
		Strategy:  res.Strategy,
		CrawlDate: o.deps.Clock.Now(),
	})
	o.archive(ctx, a.ID, rep)
	metrics.ObserveAuditDuration(o.deps.Clock.Now().Sub(start))

	score := rep.OverallScore
	a.Report = rep
	a.Score = &score
	if err := o.transition(ctx, &a, audit.StatusCompleted); err != nil {
		logger.Error("persist completed audit", zap.Error(err))
		o.fail(ctx, &a, KindPersistenceFailure, err)
		return err
	}
	metrics.ObserveAudit(string(audit.StatusCompleted))
	logger.Info("audit completed",
		zap.String("strategy", rep.Strategy),
		zap.Int("pages", len(rep.Pages)),
		zap.Int("score", rep.OverallScore),
	)

	o.enrich(ctx, a)
	return nil
}

// enrich runs the AI stage and rewrites the completed record. Failures only
// leave a notice; the audit stays completed.
func (o *Orchestrator) enrich(ctx context.Context, a audit.Audit) {
	if o.deps.Analyzer == nil || a.Report == nil {
		return
	}
	logger := o.logger.With(zap.String("audit_id", a.ID))

	enriched := *a.Report
	result, err := o.deps.Analyzer.Analyze(ctx, &enriched)
	switch {
	case errors.Is(err, analysis.ErrTimeout):
		logger.Warn("ai analysis timed out", zap.Error(err))
		metrics.ObserveAIAnalysis("timeout")
		enriched.AINotice = analysis.Notice(err)
	case err != nil:
		logger.Warn("ai analysis failed", zap.Error(err))
		metrics.ObserveAIAnalysis("error")
		enriched.AINotice = analysis.Notice(err)
	default:
		metrics.ObserveAIAnalysis(string(result.Method))
		enriched.AIAnalysis = result
	}

	a.Report = &enriched
	a.UpdatedAt = o.deps.Clock.Now()
	if err := o.deps.Store.UpdateAudit(context.WithoutCancel(ctx), a); err != nil {
		logger.Error("persist ai analysis", zap.Error(err))
	}
}

// Get returns the current audit record.
func (o *Orchestrator) Get(ctx context.Context, id string) (audit.Audit, error) {
	a, err := o.deps.Store.GetAudit(ctx, id)
	if err != nil {
		return audit.Audit{}, fmt.Errorf("get audit %s: %w", id, err)
	}
	return a, nil
}

// Delete removes an audit record.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.deps.Store.DeleteAudit(ctx, id); err != nil {
		return fmt.Errorf("delete audit %s: %w", id, err)
	}
	return nil
}

// Wait blocks until the pipeline for id has finished, AI enrichment
// included, and returns the final record. Audits submitted through another
// process are polled.
func (o *Orchestrator) Wait(ctx context.Context, id string) (audit.Audit, error) {
	o.mu.Lock()
	done, ok := o.waiters[id]
	o.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return audit.Audit{}, ctx.Err()
		}
		return o.Get(ctx, id)
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		a, err := o.Get(ctx, id)
		if err != nil {
			return audit.Audit{}, err
		}
		if a.Status.Terminal() {
			return a, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return audit.Audit{}, ctx.Err()
		}
	}
}

func (o *Orchestrator) options(req SubmitRequest) audit.Options {
	opts := audit.Options{
		IncludeScreenshot: req.IncludeScreenshot,
		MultiPage:         o.cfg.MultiPageDefault,
		MaxPages:          o.cfg.DefaultMaxPages,
	}
	if req.MultiPage != nil {
		opts.MultiPage = *req.MultiPage
	}
	if req.MaxPages != nil && *req.MaxPages > 0 {
		opts.MaxPages = min(*req.MaxPages, o.cfg.MaxPagesLimit)
	}
	return opts
}

// transition persists a with status to and publishes the change.
func (o *Orchestrator) transition(ctx context.Context, a *audit.Audit, to audit.Status) error {
	ctx = context.WithoutCancel(ctx)
	from := a.Status
	a.Status = to
	a.UpdatedAt = o.deps.Clock.Now()
	if err := o.deps.Store.UpdateAudit(ctx, *a); err != nil {
		a.Status = from
		return fmt.Errorf("persist audit %s as %s: %w", a.ID, to, err)
	}
	o.logger.Info("audit status changed",
		zap.String("audit_id", a.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	o.publish(ctx, *a)
	return nil
}

// fail records a terminal failure. The write is best effort: when it fails
// the audit keeps its last persisted status.
func (o *Orchestrator) fail(ctx context.Context, a *audit.Audit, kind string, cause error) {
	a.Error = &audit.FailureInfo{Kind: kind, Message: cause.Error()}
	a.Report = nil
	a.Score = nil
	if err := o.transition(ctx, a, audit.StatusFailed); err != nil {
		o.logger.Error("persist failed audit", zap.String("audit_id", a.ID), zap.Error(err))
		return
	}
	metrics.ObserveAudit(string(audit.StatusFailed))
}

// archive writes each page's HTML to the blob store and records the URI.
func (o *Orchestrator) archive(ctx context.Context, auditID string, rep *audit.Report) {
	if o.deps.Blobs == nil {
		return
	}
	for i := range rep.Pages {
		page := &rep.Pages[i]
		if page.HTML == "" {
			continue
		}
		digest, err := o.deps.Hasher.Hash([]byte(page.HTML))
		if err != nil {
			o.logger.Warn("hash snapshot", zap.String("url", page.URL), zap.Error(err))
			continue
		}
		uri, err := o.deps.Blobs.PutObject(ctx, SnapshotPath(o.cfg.SnapshotPrefix, auditID, digest), "text/html; charset=utf-8", strings.NewReader(page.HTML))
		if err != nil {
			o.logger.Warn("store snapshot", zap.String("url", page.URL), zap.Error(err))
			continue
		}
		page.SnapshotURI = uri
	}
}

func (o *Orchestrator) publish(ctx context.Context, a audit.Audit) {
	if o.deps.Publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"audit_id":  a.ID,
		"status":    a.Status,
		"url":       a.TargetURL,
		"timestamp": a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.Score != nil {
		payload["score"] = *a.Score
	}
	if a.Error != nil {
		payload["error_kind"] = a.Error.Kind
	}
	if _, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("publish audit event",
			zap.String("audit_id", a.ID),
			zap.String("status", string(a.Status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) register(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.waiters[id]; !ok {
		o.waiters[id] = make(chan struct{})
	}
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.waiters[id]; ok {
		close(ch)
		delete(o.waiters, id)
	}
}

// NormalizeTarget validates a caller-supplied URL. A missing scheme
// defaults to https.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// SnapshotPath builds the blob path for a page snapshot.
func SnapshotPath(prefix, auditID, digest string) string {
	return fmt.Sprintf("%s/%s/%s.html", strings.TrimSuffix(prefix, "/"), auditID, digest)
}
