// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the serve and audit commands.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/analysis"
	"github.com/JakeFAU/site-auditor/internal/api"
	"github.com/JakeFAU/site-auditor/internal/audit"
	"github.com/JakeFAU/site-auditor/internal/clock/system"
	"github.com/JakeFAU/site-auditor/internal/config"
	"github.com/JakeFAU/site-auditor/internal/crawl"
	"github.com/JakeFAU/site-auditor/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/site-auditor/internal/fetcher/colly"
	"github.com/JakeFAU/site-auditor/internal/fetcher/headless"
	"github.com/JakeFAU/site-auditor/internal/hash/sha256"
	"github.com/JakeFAU/site-auditor/internal/id/uuid"
	"github.com/JakeFAU/site-auditor/internal/llm"
	"github.com/JakeFAU/site-auditor/internal/orchestrator"
	"github.com/JakeFAU/site-auditor/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/site-auditor/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/site-auditor/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/site-auditor/internal/queue/memory"
	gcsstore "github.com/JakeFAU/site-auditor/internal/storage/gcs"
	localstore "github.com/JakeFAU/site-auditor/internal/storage/local"
	memorystore "github.com/JakeFAU/site-auditor/internal/storage/memory"
	"github.com/JakeFAU/site-auditor/internal/storage/postgres"
)

// App holds all the shared, long-lived services for the application.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *dispatcher.Dispatcher
	Server       *api.Server
	// Events is set when lifecycle events are recorded in memory.
	Events *memorypublisher.Publisher

	logger  *zap.Logger
	queue   *queuememory.Queue
	ready   map[string]api.Checker
	closers []func()
}

// Overrides replaces collaborators that New would otherwise build from
// config. Zero fields are ignored.
type Overrides struct {
	Browser   crawl.Browser
	Fetcher   crawl.Fetcher
	Generator llm.Generator
}

type pinger interface {
	Ping(ctx context.Context) error
}

// New builds every service described by cfg. It fails fast if a configured
// backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, ov Overrides) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger, ready: map[string]api.Checker{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	hasher := sha256.New()

	store, err := a.auditStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := a.blobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := a.analyzer(cfg, hasher, ov.Generator)
	if err != nil {
		return nil, err
	}

	a.queue = queuememory.NewQueue(cfg.Dispatcher.QueueDepth)
	a.closers = append(a.closers, a.queue.Close)

	deps := orchestrator.Deps{
		Store:     store,
		Queue:     a.queue,
		Crawler:   a.crawler(cfg, ov),
		Analyzer:  analyzer,
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    hasher,
		Clock:     system.New(),
		IDs:       uuid.NewUUIDGenerator(),
	}
	orch, err := orchestrator.New(deps, orchestrator.Config{
		DefaultMaxPages:  cfg.Crawler.DefaultMaxPages,
		MaxPagesLimit:    cfg.Crawler.MaxPagesLimit,
		MultiPageDefault: cfg.Crawler.MultiPageDefault,
		Topic:            cfg.PubSub.TopicName,
		SnapshotPrefix:   cfg.Snapshots.Prefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	a.Orchestrator = orch
	a.Dispatcher = dispatcher.NewPool(a.queue, orch, cfg.Dispatcher.Workers, logger)
	a.Server = api.NewServer(orch, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		Ready:          a.ready,
	}, logger)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("snapshots", cfg.Snapshots.Backend),
		zap.Bool("browser", cfg.Browser.Enabled || ov.Browser != nil),
		zap.Bool("ai", analyzer != nil),
		zap.Int("workers", cfg.Dispatcher.Workers),
	)
	return a, nil
}

// Start runs the worker pool until ctx is done or the queue closes.
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Run(ctx)
}

// Close gracefully shuts down all services, most recently opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) auditStore(ctx context.Context, cfg config.Config) (audit.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		a.logger.Info("connecting to PostgreSQL", zap.String("table", cfg.DB.Table))
		store, err := postgres.NewAuditStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init audit store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("init audit store: %w", err)
			}
		}
		a.ready["store"] = store.Ping
		return store, nil
	case "memory", "":
		store := memorystore.NewAuditStore()
		a.ready["store"] = store.Ping
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// blobStore returns nil when snapshots are disabled.
func (a *App) blobStore(ctx context.Context, cfg config.Config) (audit.BlobStore, error) {
	var blobs audit.BlobStore
	switch cfg.Snapshots.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		blobs = memorystore.NewBlobStore()
	case "local":
		store, err := localstore.New(localstore.Config{BaseDir: cfg.Snapshots.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		blobs = store
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close gcs client", zap.Error(cerr))
			}
		})
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Snapshots.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		blobs = store
	default:
		return nil, fmt.Errorf("unknown snapshots backend: %s", cfg.Snapshots.Backend)
	}
	if p, ok := blobs.(pinger); ok {
		a.ready["snapshots"] = p.Ping
	}
	return blobs, nil
}

// publisher returns nil when no topic is configured. A topic without a
// project records events in memory.
func (a *App) publisher(ctx context.Context, cfg config.Config) (audit.Publisher, error) {
	switch {
	case cfg.PubSub.TopicName == "":
		return nil, nil
	case cfg.PubSub.ProjectID == "":
		a.logger.Info("recording audit events in memory", zap.String("topic", cfg.PubSub.TopicName))
		a.Events = memorypublisher.New()
		return a.Events, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers, func() {
		pub.Close()
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("close pubsub client", zap.Error(cerr))
		}
	})
	a.logger.Info("publishing audit events", zap.String("topic", cfg.PubSub.TopicName))
	return pub, nil
}

// crawler orders the strategies: the browser first when enabled, then the
// plain HTTP fallback.
func (a *App) crawler(cfg config.Config, ov Overrides) *crawl.Chain {
	var strategies []crawl.Strategy
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Crawler.RequestsPerSecond,
		Burst: cfg.Crawler.RateBurst,
	})

	browser := ov.Browser
	if browser == nil && cfg.Browser.Enabled {
		browser = headless.New(headless.Config{
			ExecPath:          cfg.Browser.ExecPath,
			Headless:          cfg.Browser.Headless,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			ScreenshotQuality: cfg.Crawler.ScreenshotQuality,
		})
	}
	if browser != nil {
		strategies = append(strategies, crawl.NewPrimary(limiter.Browser(browser), a.logger))
	}

	fetcher := ov.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.Crawler.UserAgent,
			Timeout:     cfg.FallbackTimeout(),
			MaxBodySize: cfg.Fallback.MaxBodyBytes,
		})
	}
	strategies = append(strategies, crawl.NewFallback(limiter.Fetcher(fetcher), cfg.Fallback.MaxPages, a.logger))
	return crawl.NewChain(a.logger, strategies...)
}

// analyzer returns nil when AI analysis is disabled.
func (a *App) analyzer(cfg config.Config, hasher *sha256.Hasher, gen llm.Generator) (orchestrator.Analyzer, error) {
	if !cfg.AI.Enabled && gen == nil {
		return nil, nil
	}
	model := cfg.AI.Model
	if gen == nil {
		client, err := llm.New(llm.Config{
			APIKey:       cfg.AI.APIKey,
			BaseURL:      cfg.AI.BaseURL,
			Model:        cfg.AI.Model,
			Timeout:      cfg.AITimeout(),
			RateLimitRPM: cfg.AI.RateLimitRPM,
			MaxTokens:    cfg.AI.MaxTokens,
			Temperature:  cfg.AI.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		gen = client
		model = client.Model()
	}

	var cache llm.Cache
	switch cfg.AI.Cache {
	case "memory":
		cache = llm.NewMemoryCache()
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() {
			if cerr := rdb.Close(); cerr != nil {
				a.logger.Warn("close redis client", zap.Error(cerr))
			}
		})
		a.ready["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
		cache = llm.NewRedisCache(rdb, cfg.Redis.Prefix)
	}
	if cache != nil {
		gen = llm.NewCachedGenerator(gen, cache, hasher, cfg.CacheTTL(), model, a.logger)
	}

	return analysis.NewStage(gen, analysis.NewTemplateSource(cfg.AI.PromptSource, a.logger), analysis.Config{
		Timeout:          cfg.AITimeout(),
		MaxSummaryChars:  cfg.AI.MaxSummaryChars,
		ChunkThreshold:   cfg.AI.ChunkThreshold,
		ChunkSize:        cfg.AI.ChunkSize,
		ChunkConcurrency: cfg.AI.ChunkConcurrency,
	}, a.logger), nil
}
