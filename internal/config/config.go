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
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines dashboard API authentication toggles. Widget chat routes
// are always unauthenticated.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig governs orchestrator and worker pool behavior.
type CrawlConfig struct {
	Workers         int `mapstructure:"workers"`
	PageConcurrency int `mapstructure:"page_concurrency"`
	QueueDepth      int `mapstructure:"queue_depth"`
	SitemapMaxDepth int `mapstructure:"sitemap_max_depth"`
	SitemapTimeout  int `mapstructure:"sitemap_timeout_seconds"`
}

// FetchConfig configures the probe HTTP fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// EmbeddingConfig selects the embedding model and retry budget.
type EmbeddingConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BackoffBaseMs int    `mapstructure:"backoff_base_ms"`
}

// GenerationConfig selects the chat completion model.
type GenerationConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// RetrievalConfig bounds grounding context size.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// StorageConfig selects the blob store backing uploaded context files.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"` // memory, local, gcs
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// stores (development and tests).
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// QueueConfig selects the crawl queue provider.
type QueueConfig struct {
	Provider     string `mapstructure:"provider"` // memory, pubsub
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// LoggingConfig selects the zap profile and minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEBRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("crawl.workers", 2)
	v.SetDefault("crawl.page_concurrency", 20)
	v.SetDefault("crawl.queue_depth", 64)
	v.SetDefault("crawl.sitemap_max_depth", 3)
	v.SetDefault("crawl.sitemap_timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "sitebrain-bot/1.0")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_body_bytes", 5*1024*1024)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.max_attempts", 3)
	v.SetDefault("embedding.backoff_base_ms", 1000)
	v.SetDefault("generation.model", "gemini-2.0-flash")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "contexts")
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.PageConcurrency <= 0 {
		return fmt.Errorf("crawl.page_concurrency must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Embedding.MaxAttempts <= 0 {
		return fmt.Errorf("embedding.max_attempts must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be one of memory, local, gcs")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local provider")
	}
	switch c.Queue.Provider {
	case "memory", "pubsub":
	default:
		return fmt.Errorf("queue.provider must be one of memory, pubsub")
	}
	if c.Queue.Provider == "pubsub" && (c.Queue.ProjectID == "" || c.Queue.Topic == "" || c.Queue.Subscription == "") {
		return fmt.Errorf("queue.project_id, queue.topic and queue.subscription must be set for the pubsub provider")
	}
	return nil
}

// SitemapTimeout converts the sitemap fetch budget into a duration.
func (c Config) SitemapTimeout() time.Duration {
	return time.Duration(c.Crawl.SitemapTimeout) * time.Second
}

// FetchTimeout converts the page fetch budget into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// EmbeddingBackoffBase converts the embedding backoff base into a duration.
func (c Config) EmbeddingBackoffBase() time.Duration {
	return time.Duration(c.Embedding.BackoffBaseMs) * time.Millisecond
}
