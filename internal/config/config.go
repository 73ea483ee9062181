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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Crawl    RetryConfig    `mapstructure:"crawl"`
	Worker   RetryConfig    `mapstructure:"worker"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	Backend string       `mapstructure:"backend"`
	Depth   int          `mapstructure:"depth"`
	Prefix  string       `mapstructure:"prefix"`
	Redis   RedisConfig  `mapstructure:"redis"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
}

// RedisConfig points at a Redis server holding list-backed queues.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PubSubConfig holds the Pub/Sub project; topics and subscriptions are
// derived from the queue prefix and queue name.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ApplySchema     bool          `mapstructure:"apply_schema"`
}

// StorageConfig selects where diagnostic screenshots go.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem blob store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GitHubConfig configures the API extractor.
type GitHubConfig struct {
	Token     string  `mapstructure:"token"`
	BaseURL   string  `mapstructure:"base_url"`
	UserAgent string  `mapstructure:"user_agent"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
}

// BrowserConfig configures the authenticated browser session.
type BrowserConfig struct {
	Headless         bool   `mapstructure:"headless"`
	ChromePath       string `mapstructure:"chrome_path"`
	UserAgent        string `mapstructure:"user_agent"`
	LoginURL         string `mapstructure:"login_url"`
	Email            string `mapstructure:"email"`
	Password         string `mapstructure:"password"`
	LoginMaxAttempts int    `mapstructure:"login_max_attempts"`
	KeepOpen         bool   `mapstructure:"keep_open"`
	TypeMinDelayMs   int    `mapstructure:"type_min_delay_ms"`
	TypeMaxDelayMs   int    `mapstructure:"type_max_delay_ms"`
	NavTimeoutSec    int    `mapstructure:"nav_timeout_seconds"`
}

// RetryConfig configures one retry chain.
type RetryConfig struct {
	MaxAttempts   int `mapstructure:"max_attempts"`
	MinDelayMs    int `mapstructure:"min_delay_ms"`
	MaxDelayMs    int `mapstructure:"max_delay_ms"`
	StepMs        int `mapstructure:"step_ms"`
	CallTimeoutMs int `mapstructure:"call_timeout_ms"`
}

// WorkersConfig sizes each worker pool. The LinkedIn pool is always one.
type WorkersConfig struct {
	GitHub    int `mapstructure:"github"`
	Portfolio int `mapstructure:"portfolio"`
}

// LLMConfig selects the bio writer.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float32 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROFILECRAWLER")
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
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.prefix", "profilecrawler")
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.pubsub.project_id", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.apply_schema", true)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.local.base_dir", "screenshots")
	v.SetDefault("github.token", "")
	v.SetDefault("github.base_url", "https://api.github.com/")
	v.SetDefault("github.user_agent", "profile-crawler/1.0")
	v.SetDefault("github.rps", 1.0)
	v.SetDefault("github.burst", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.email", "")
	v.SetDefault("browser.password", "")
	v.SetDefault("browser.keep_open", false)
	v.SetDefault("browser.login_url", "https://www.linkedin.com/login")
	v.SetDefault("browser.login_max_attempts", 1)
	v.SetDefault("browser.type_min_delay_ms", 100)
	v.SetDefault("browser.type_max_delay_ms", 300)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("crawl.max_attempts", 1)
	v.SetDefault("crawl.min_delay_ms", 800)
	v.SetDefault("crawl.max_delay_ms", 2000)
	v.SetDefault("crawl.step_ms", 1000)
	v.SetDefault("crawl.call_timeout_ms", 120000)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.min_delay_ms", 2000)
	v.SetDefault("worker.max_delay_ms", 5000)
	v.SetDefault("worker.step_ms", 1000)
	v.SetDefault("worker.call_timeout_ms", 30000)
	v.SetDefault("workers.github", 4)
	v.SetDefault("workers.portfolio", 2)
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Depth <= 0 {
			return fmt.Errorf("queue.depth must be > 0 for the memory backend")
		}
	case "redis":
		if c.Queue.Redis.Addr == "" {
			return fmt.Errorf("queue.redis.addr is required for the redis backend")
		}
	case "pubsub":
		if c.Queue.PubSub.ProjectID == "" {
			return fmt.Errorf("queue.pubsub.project_id is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Browser.LoginMaxAttempts <= 0 {
		return fmt.Errorf("browser.login_max_attempts must be > 0")
	}
	if c.Browser.TypeMaxDelayMs < c.Browser.TypeMinDelayMs {
		return fmt.Errorf("browser.type_max_delay_ms must be >= browser.type_min_delay_ms")
	}
	if err := c.Crawl.validate("crawl"); err != nil {
		return err
	}
	if err := c.Worker.validate("worker"); err != nil {
		return err
	}
	if c.Workers.GitHub <= 0 || c.Workers.Portfolio <= 0 {
		return fmt.Errorf("workers.github and workers.portfolio must be > 0")
	}
	switch c.LLM.Provider {
	case "none", "":
	case "anthropic", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	return nil
}

func (r RetryConfig) validate(section string) error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%s.max_attempts must be > 0", section)
	}
	if r.MinDelayMs < 0 || r.MaxDelayMs < r.MinDelayMs {
		return fmt.Errorf("%s delay bounds must satisfy 0 <= min <= max", section)
	}
	return nil
}

// MinDelay returns the lower delay bound.
func (r RetryConfig) MinDelay() time.Duration {
	return time.Duration(r.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the upper delay bound.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Step returns the per-attempt shift of the delay window.
func (r RetryConfig) Step() time.Duration {
	return time.Duration(r.StepMs) * time.Millisecond
}

// CallTimeout returns the per-attempt timeout.
func (r RetryConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutMs) * time.Millisecond
}

// NavTimeout returns the browser navigation timeout.
func (b BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(b.NavTimeoutSec) * time.Second
}

// LLMTimeout returns the bio generation timeout.
func (l LLMConfig) LLMTimeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}
