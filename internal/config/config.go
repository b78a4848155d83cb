// ABOUTME: Configuration loading and parsing for plugin-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultIdempotencyTTL  = 60 * time.Second
	DefaultFreshnessWindow = 300 * time.Second
	DefaultAcquireTimeout  = 5 * time.Second
	DefaultGlobalLimit     = 64
	DefaultPerPluginLimit  = 8
	DefaultQueueSize       = 128
	DefaultMaxCacheEntries = 4096
)

// Config represents the complete plugin-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds request-signature configuration
type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`

	FreshnessWindow time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	FreshnessWindowRaw string `yaml:"freshness_window"`
}

// ConcurrencyConfig bounds how many handler executions run at once.
// PerPlugin maps plugin names to their limits; the "default" entry applies
// to any plugin without an explicit limit.
type ConcurrencyConfig struct {
	Global    int            `yaml:"global"`
	PerPlugin map[string]int `yaml:"per_plugin"`
	QueueSize int            `yaml:"queue_size"`

	AcquireTimeout time.Duration `yaml:"-"`

	AcquireTimeoutRaw string `yaml:"acquire_timeout"`
}

// IdempotencyConfig controls the retry-deduplication cache
type IdempotencyConfig struct {
	MaxEntries int `yaml:"max_entries"`

	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// UpstreamConfig holds the external collaborators reachable over HTTP
type UpstreamConfig struct {
	SessionStore SessionStoreConfig `yaml:"session_store"`
	Dialogue     DialogueConfig     `yaml:"dialogue"`
}

// SessionStoreConfig holds the remote conversation-session store settings.
// Bearer tokens for this store are minted from TokenSecret as short-lived
// HS256 service tokens.
type SessionStoreConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenSecret string `yaml:"token_secret"`
}

// DialogueConfig holds the language-model API settings
type DialogueConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// RateLimitConfig holds the per-user token bucket settings.
// A zero PerUserRPS disables rate limiting.
type RateLimitConfig struct {
	PerUserRPS float64 `yaml:"per_user_rps"`
	Burst      int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in documented defaults for unset fields
func (c *Config) applyDefaults() {
	if c.Auth.FreshnessWindow == 0 {
		c.Auth.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = DefaultIdempotencyTTL
	}
	if c.Idempotency.MaxEntries == 0 {
		c.Idempotency.MaxEntries = DefaultMaxCacheEntries
	}
	if c.Concurrency.Global == 0 {
		c.Concurrency.Global = DefaultGlobalLimit
	}
	if c.Concurrency.PerPlugin == nil {
		c.Concurrency.PerPlugin = map[string]int{}
	}
	if _, ok := c.Concurrency.PerPlugin["default"]; !ok {
		c.Concurrency.PerPlugin["default"] = DefaultPerPluginLimit
	}
	if c.Concurrency.QueueSize == 0 {
		c.Concurrency.QueueSize = DefaultQueueSize
	}
	if c.Concurrency.AcquireTimeout == 0 {
		c.Concurrency.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret is required")
	}
	if c.Concurrency.Global < 1 {
		return fmt.Errorf("concurrency.global must be at least 1")
	}
	for name, limit := range c.Concurrency.PerPlugin {
		if limit < 1 {
			return fmt.Errorf("concurrency.per_plugin[%s] must be at least 1", name)
		}
	}
	if c.Upstream.SessionStore.BaseURL == "" {
		return fmt.Errorf("upstream.session_store.base_url is required")
	}
	if c.Upstream.SessionStore.TokenSecret == "" {
		return fmt.Errorf("upstream.session_store.token_secret is required")
	}
	if c.Upstream.Dialogue.BaseURL == "" {
		return fmt.Errorf("upstream.dialogue.base_url is required")
	}
	return nil
}

// PluginLimit returns the concurrency limit for the named plugin,
// falling back to the "default" entry.
func (c *ConcurrencyConfig) PluginLimit(name string) int {
	if limit, ok := c.PerPlugin[name]; ok {
		return limit
	}
	return c.PerPlugin["default"]
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.FreshnessWindowRaw != "" {
		cfg.Auth.FreshnessWindow, err = time.ParseDuration(cfg.Auth.FreshnessWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing freshness_window %q: %w", cfg.Auth.FreshnessWindowRaw, err)
		}
	}

	if cfg.Idempotency.TTLRaw != "" {
		cfg.Idempotency.TTL, err = time.ParseDuration(cfg.Idempotency.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency.ttl %q: %w", cfg.Idempotency.TTLRaw, err)
		}
	}

	if cfg.Concurrency.AcquireTimeoutRaw != "" {
		cfg.Concurrency.AcquireTimeout, err = time.ParseDuration(cfg.Concurrency.AcquireTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing acquire_timeout %q: %w", cfg.Concurrency.AcquireTimeoutRaw, err)
		}
	}

	return nil
}
