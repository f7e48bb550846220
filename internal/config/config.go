// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	AI         AIConfig         `mapstructure:"ai"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownGraceSeconds  int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig governs page caps, per-page navigation and per-host
// politeness. A zero requests_per_second disables the host rate limit.
type CrawlerConfig struct {
	DefaultMaxPages   int     `mapstructure:"default_max_pages"`
	MaxPagesLimit     int     `mapstructure:"max_pages_limit"`
	MultiPageDefault  bool    `mapstructure:"multi_page_default"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	ScreenshotQuality int     `mapstructure:"screenshot_quality"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RateBurst         int     `mapstructure:"rate_burst"`
}

// BrowserConfig configures the headless Chrome driver.
type BrowserConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	ExecPath string `mapstructure:"exec_path"`
	Headless bool   `mapstructure:"headless"`
}

// FallbackConfig configures the plain HTTP crawler.
type FallbackConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
	MaxPages       int `mapstructure:"max_pages"`
}

// AIConfig configures the LLM analysis stage.
type AIConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	APIKey           string  `mapstructure:"api_key"`
	BaseURL          string  `mapstructure:"base_url"`
	Model            string  `mapstructure:"model"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature"`
	RateLimitRPM     int     `mapstructure:"rate_limit_rpm"`
	MaxSummaryChars  int     `mapstructure:"max_summary_chars"`
	ChunkThreshold   int     `mapstructure:"chunk_threshold"`
	ChunkSize        int     `mapstructure:"chunk_size"`
	ChunkConcurrency int     `mapstructure:"chunk_concurrency"`
	PromptSource     string  `mapstructure:"prompt_source"`
	Cache            string  `mapstructure:"cache"`
	CacheTTLSeconds  int     `mapstructure:"cache_ttl_seconds"`
}

// RedisConfig points at the shared LLM response cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// StorageConfig selects the audit record backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// SnapshotsConfig selects where page HTML snapshots are archived.
type SnapshotsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for lifecycle event notifications. A topic
// without a project keeps events in process memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DispatcherConfig sizes the background worker pool.
type DispatcherConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("ai.api_key", "SITEAUDIT_AI_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_grace_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.default_max_pages", 15)
	v.SetDefault("crawler.max_pages_limit", 50)
	v.SetDefault("crawler.multi_page_default", true)
	v.SetDefault("crawler.nav_timeout_seconds", 60)
	v.SetDefault("crawler.user_agent", "site-auditor/0.1 (+https://github.com/JakeFAU/site-auditor)")
	v.SetDefault("crawler.screenshot_quality", 90)
	v.SetDefault("crawler.requests_per_second", 2.0)
	v.SetDefault("crawler.rate_burst", 2)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("fallback.timeout_seconds", 20)
	v.SetDefault("fallback.max_body_bytes", 5<<20)
	v.SetDefault("fallback.max_pages", 3)
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.base_url", "https://api.anthropic.com")
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.timeout_seconds", 300)
	v.SetDefault("ai.max_tokens", 8192)
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.rate_limit_rpm", 50)
	v.SetDefault("ai.max_summary_chars", 12000)
	v.SetDefault("ai.chunk_threshold", 24000)
	v.SetDefault("ai.chunk_size", 8000)
	v.SetDefault("ai.chunk_concurrency", 3)
	v.SetDefault("ai.prompt_source", "")
	v.SetDefault("ai.cache", "memory")
	v.SetDefault("ai.cache_ttl_seconds", 86400)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "siteaudit:llm:")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "audits")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("snapshots.backend", "memory")
	v.SetDefault("snapshots.base_dir", "./snapshots")
	v.SetDefault("snapshots.gcs_bucket", "")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("dispatcher.workers", 2)
	v.SetDefault("dispatcher.queue_depth", 64)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.MaxPagesLimit <= 0 {
		return fmt.Errorf("crawler.max_pages_limit must be > 0")
	}
	if c.Crawler.DefaultMaxPages <= 0 || c.Crawler.DefaultMaxPages > c.Crawler.MaxPagesLimit {
		return fmt.Errorf("crawler.default_max_pages must be between 1 and crawler.max_pages_limit")
	}
	if c.Crawler.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	if c.Fallback.TimeoutSeconds <= 0 {
		return fmt.Errorf("fallback.timeout_seconds must be > 0")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key must be set when ai is enabled")
	}
	if c.AI.Enabled && c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	switch c.AI.Cache {
	case "", "none", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when ai.cache is redis")
		}
	default:
		return fmt.Errorf("ai.cache must be none, memory or redis")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres")
	}
	switch c.Snapshots.Backend {
	case "", "none", "memory":
	case "local":
		if c.Snapshots.BaseDir == "" {
			return fmt.Errorf("snapshots.base_dir must be set when snapshots.backend is local")
		}
	case "gcs":
		if c.Snapshots.GCSBucket == "" {
			return fmt.Errorf("snapshots.gcs_bucket must be set when snapshots.backend is gcs")
		}
	default:
		return fmt.Errorf("snapshots.backend must be none, memory, local or gcs")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be > 0")
	}
	if c.Dispatcher.QueueDepth <= 0 {
		return fmt.Errorf("dispatcher.queue_depth must be > 0")
	}
	return nil
}

// NavTimeout is the per-page browser navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawler.NavTimeoutSeconds) * time.Second
}

// FallbackTimeout is the plain HTTP request budget.
func (c Config) FallbackTimeout() time.Duration {
	return time.Duration(c.Fallback.TimeoutSeconds) * time.Second
}

// AITimeout is the LLM call budget.
func (c Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// CacheTTL is how long LLM responses are reused.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.AI.CacheTTLSeconds) * time.Second
}

// RequestTimeout bounds each API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownGrace bounds graceful HTTP shutdown.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Server.ShutdownGraceSeconds) * time.Second
}
