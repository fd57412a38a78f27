// Package config loads and validates cache warmer configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the state, content and archive selectors.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendFile     = "file"
	BackendSitemap  = "sitemap"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Warmer    WarmerConfig    `mapstructure:"warmer"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Content   ContentConfig   `mapstructure:"content"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

// WarmerConfig holds start defaults and stepper behavior.
type WarmerConfig struct {
	DefaultMaxItems  int           `mapstructure:"default_max_items"`
	DefaultDelayMs   int           `mapstructure:"default_delay_ms"`
	DefaultBatchSize int           `mapstructure:"default_batch_size"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	StrictConfig     bool          `mapstructure:"strict_config"`
	ExclusiveResume  bool          `mapstructure:"exclusive_resume"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	// BaseURL resolves relative item paths.
	BaseURL string `mapstructure:"base_url"`
}

// FetchConfig configures the warm request client.
type FetchConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	Headers        map[string]string `mapstructure:"headers"`
	RateLimitRPS   float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`
}

// ContentConfig selects where published items come from.
type ContentConfig struct {
	Source   string                `mapstructure:"source"`
	Kinds    []string              `mapstructure:"kinds"`
	Memory   MemoryContentConfig   `mapstructure:"memory"`
	Postgres PostgresContentConfig `mapstructure:"postgres"`
	Sitemap  SitemapContentConfig  `mapstructure:"sitemap"`
}

// MemoryContentConfig seeds the in-memory catalog. IDs follow list order.
type MemoryContentConfig struct {
	Kind string   `mapstructure:"kind"`
	URLs []string `mapstructure:"urls"`
}

// PostgresContentConfig names the content table.
type PostgresContentConfig struct {
	Table          string `mapstructure:"table"`
	PublishedState string `mapstructure:"published_state"`
}

// SitemapContentConfig points at a sitemap or sitemap index.
type SitemapContentConfig struct {
	URL     string        `mapstructure:"url"`
	Kind    string        `mapstructure:"kind"`
	Refresh time.Duration `mapstructure:"refresh"`
}

// StateConfig selects the RunStore backend.
type StateConfig struct {
	Backend  string              `mapstructure:"backend"`
	Redis    RedisStateConfig    `mapstructure:"redis"`
	Postgres PostgresStateConfig `mapstructure:"postgres"`
	File     FileStateConfig     `mapstructure:"file"`
}

// RedisStateConfig configures the Redis RunStore.
type RedisStateConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	Prefix     string `mapstructure:"prefix"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PostgresStateConfig configures the Postgres RunStore.
type PostgresStateConfig struct {
	Table       string `mapstructure:"table"`
	EnsureTable bool   `mapstructure:"ensure_table"`
}

// FileStateConfig configures the JSON file RunStore.
type FileStateConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig tunes tick execution.
type SchedulerConfig struct {
	// TickTimeout bounds one tick; 0 disables the bound.
	TickTimeout time.Duration `mapstructure:"tick_timeout"`
}

// NotifyConfig wires completion listeners.
type NotifyConfig struct {
	Log     bool          `mapstructure:"log"`
	Timeout time.Duration `mapstructure:"timeout"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig selects where completion reports are written.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// StorageConfig controls access to shared infrastructure.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig configures the shared pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// TracingConfig controls OpenTelemetry spans around ticks.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WARMER")
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
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("warmer.default_max_items", 0)
	v.SetDefault("warmer.default_delay_ms", 0)
	v.SetDefault("warmer.default_batch_size", 100)
	v.SetDefault("warmer.max_batch_size", 1000)
	v.SetDefault("warmer.strict_config", false)
	v.SetDefault("warmer.exclusive_resume", false)
	v.SetDefault("warmer.retry_delay", "5s")
	v.SetDefault("warmer.base_url", "")
	v.SetDefault("fetch.user_agent", "cachewarmer/1.0 (+populate-cache)")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.rate_limit_rps", 0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("content.source", BackendMemory)
	v.SetDefault("content.kinds", []string{"post", "page"})
	v.SetDefault("content.memory.kind", "page")
	v.SetDefault("content.memory.urls", []string{})
	v.SetDefault("content.postgres.table", "content_items")
	v.SetDefault("content.postgres.published_state", "published")
	v.SetDefault("content.sitemap.url", "")
	v.SetDefault("content.sitemap.kind", "page")
	v.SetDefault("content.sitemap.refresh", "5m")
	v.SetDefault("state.backend", BackendMemory)
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.prefix", "cachewarmer")
	v.SetDefault("state.redis.max_retries", 10)
	v.SetDefault("state.postgres.table", "warm_runs")
	v.SetDefault("state.postgres.ensure_table", true)
	v.SetDefault("state.file.path", "data/warm-run.json")
	v.SetDefault("scheduler.tick_timeout", "30m")
	v.SetDefault("notify.log", true)
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.pubsub.enabled", false)
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic_id", "")
	v.SetDefault("notify.archive.backend", "")
	v.SetDefault("notify.archive.prefix", "completions")
	v.SetDefault("notify.archive.local_dir", "data/reports")
	v.SetDefault("notify.archive.gcs_bucket", "")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime", "30m")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "cachewarmer")
	v.SetDefault("tracing.project_id", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Auth.Enabled && c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret must be set when auth is enabled")
	}
	if c.Warmer.DefaultBatchSize <= 0 {
		return fmt.Errorf("warmer.default_batch_size must be > 0")
	}
	if c.Warmer.MaxBatchSize < 0 {
		return fmt.Errorf("warmer.max_batch_size must be >= 0")
	}
	if c.Warmer.DefaultMaxItems < 0 || c.Warmer.DefaultDelayMs < 0 {
		return fmt.Errorf("warmer defaults must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if len(c.Content.Kinds) == 0 {
		return fmt.Errorf("content.kinds must not be empty")
	}
	if err := oneOf("content.source", c.Content.Source, BackendMemory, BackendPostgres, BackendSitemap); err != nil {
		return err
	}
	if c.Content.Source == BackendSitemap && c.Content.Sitemap.URL == "" {
		return fmt.Errorf("content.sitemap.url must be set when content.source is sitemap")
	}
	if c.Content.Source == BackendPostgres && c.Warmer.BaseURL == "" {
		return fmt.Errorf("warmer.base_url must be set when content.source is postgres")
	}
	if err := oneOf("state.backend", c.State.Backend, BackendMemory, BackendRedis, BackendPostgres, BackendFile); err != nil {
		return err
	}
	if c.State.Backend == BackendRedis && c.State.Redis.Addr == "" {
		return fmt.Errorf("state.redis.addr must be set when state.backend is redis")
	}
	if c.State.Backend == BackendFile && c.State.File.Path == "" {
		return fmt.Errorf("state.file.path must be set when state.backend is file")
	}
	if c.NeedsPostgres() && c.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn must be set when a postgres backend is selected")
	}
	if c.Notify.PubSub.Enabled && (c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "") {
		return fmt.Errorf("notify.pubsub.project_id and topic_id must be set when pubsub is enabled")
	}
	if c.Notify.Archive.Backend != "" {
		if err := oneOf("notify.archive.backend", c.Notify.Archive.Backend, BackendMemory, BackendLocal, BackendGCS); err != nil {
			return err
		}
	}
	if c.Notify.Archive.Backend == BackendLocal && c.Notify.Archive.LocalDir == "" {
		return fmt.Errorf("notify.archive.local_dir must be set when archive backend is local")
	}
	if c.Notify.Archive.Backend == BackendGCS && c.Notify.Archive.GCSBucket == "" {
		return fmt.Errorf("notify.archive.gcs_bucket must be set when archive backend is gcs")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}

// NeedsPostgres reports whether any selected backend uses the shared pool.
func (c Config) NeedsPostgres() bool {
	return c.State.Backend == BackendPostgres || c.Content.Source == BackendPostgres
}

func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
