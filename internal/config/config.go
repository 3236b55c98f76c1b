package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Ares Gateway - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	Admission  AdmissionConfig  `yaml:"admission"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Policy     PolicyConfig     `yaml:"policy"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Store      StoreConfig      `yaml:"store"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	Interface       string `yaml:"interface"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// SecurityConfig carries the shared HMAC secret used to authenticate
// inbound SecurityEventV1 webhooks.
type SecurityConfig struct {
	SharedSecret string `yaml:"shared_secret"`
}

// AdmissionConfig holds the replay-window and idempotency settings the
// admission chain enforces ahead of correlation.
type AdmissionConfig struct {
	ReplayWindowSeconds int `yaml:"replay_window_seconds"`
	IdempotencyTTLHours int `yaml:"idempotency_ttl_hours"`
}

// RateLimitConfig controls the per-host fixed-window limit, optionally
// backed by Redis instead of the in-process limiter.
type RateLimitConfig struct {
	PerMinute int    `yaml:"per_minute"`
	RedisAddr string `yaml:"redis_addr"`
}

// PolicyConfig holds the host policy engine's thresholds.
type PolicyConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
	SeverityFloor   int `yaml:"severity_floor"`
}

// AlertsConfig holds the alert deduper and durable sink settings.
type AlertsConfig struct {
	DedupSeconds int    `yaml:"alert_dedup_seconds"`
	SinkPath     string `yaml:"sink_path"`
}

// StoreConfig selects and configures the persistence backend.
//
// UsePersistent is a *bool, not a bool: a plain bool can't tell "never
// configured" apart from "explicitly set to false" once YAML/env
// overrides are layered on top of each other, and a false zero value
// would otherwise get silently flipped back to true by applyDefaults.
type StoreConfig struct {
	UsePersistent *bool  `yaml:"use_persistent_store"`
	Path          string `yaml:"persistent_store_path"`
}

// WebhookConfig controls the optional outbound alert fan-out.
type WebhookConfig struct {
	WorkerCount int `yaml:"worker_count"`
}

// AuditConfig controls the hash-chained audit log.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading config.yaml (or
// CONFIG_PATH) once per process and applying environment overrides.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever LoadConfig populated from YAML.
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("ARES_ENV", c.Server.Env)
	c.Server.Interface = getEnv("ARES_INTERFACE", c.Server.Interface)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	// Security
	c.Security.SharedSecret = getEnv("ARES_SHARED_SECRET", c.Security.SharedSecret)

	// Admission
	if v := getEnvInt("ARES_REPLAY_WINDOW_SECONDS", 0); v > 0 {
		c.Admission.ReplayWindowSeconds = v
	}
	if v := getEnvInt("ARES_IDEMPOTENCY_TTL_HOURS", 0); v > 0 {
		c.Admission.IdempotencyTTLHours = v
	}

	// Rate limit
	if v := getEnvInt("ARES_RATE_LIMIT_PER_MINUTE", 0); v > 0 {
		c.RateLimit.PerMinute = v
	}
	c.RateLimit.RedisAddr = getEnv("ARES_REDIS_ADDR", c.RateLimit.RedisAddr)

	// Policy
	if v := getEnvInt("ARES_COOLDOWN_SECONDS", 0); v > 0 {
		c.Policy.CooldownSeconds = v
	}
	if v := getEnvInt("ARES_SEVERITY_FLOOR", -1); v >= 0 {
		c.Policy.SeverityFloor = v
	}

	// Alerts
	if v := getEnvInt("ARES_ALERT_DEDUP_SECONDS", 0); v > 0 {
		c.Alerts.DedupSeconds = v
	}
	c.Alerts.SinkPath = getEnv("ARES_ALERT_SINK_PATH", c.Alerts.SinkPath)

	// Store
	if v := getEnvBoolPtr("ARES_USE_PERSISTENT_STORE"); v != nil {
		c.Store.UsePersistent = v
	}
	c.Store.Path = getEnv("ARES_PERSISTENT_STORE_PATH", c.Store.Path)

	// Webhook
	if v := getEnvInt("ARES_WEBHOOK_WORKERS", 0); v > 0 {
		c.Webhook.WorkerCount = v
	}

	// Audit
	c.Audit.Path = getEnv("ARES_AUDIT_PATH", c.Audit.Path)

	// Metrics
	c.Metrics.Addr = getEnv("ARES_METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.Enabled = getEnvBool("ARES_METRICS_ENABLED", c.Metrics.Enabled)
}

// applyDefaults sets sensible defaults for zero-valued config fields,
// matching the literal defaults named in the schema.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Admission.ReplayWindowSeconds == 0 {
		c.Admission.ReplayWindowSeconds = 120
	}
	if c.Admission.IdempotencyTTLHours == 0 {
		c.Admission.IdempotencyTTLHours = 7 * 24
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 300
	}
	if c.Policy.CooldownSeconds == 0 {
		c.Policy.CooldownSeconds = 120
	}
	// SeverityFloor's natural default is 0, nothing to apply.
	if c.Alerts.DedupSeconds == 0 {
		c.Alerts.DedupSeconds = 300
	}
	if c.Alerts.SinkPath == "" {
		c.Alerts.SinkPath = "data/alerts.jsonl"
	}
	if c.Store.UsePersistent == nil {
		usePersistent := true
		c.Store.UsePersistent = &usePersistent
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/ares.db"
	}
	if c.Webhook.WorkerCount == 0 {
		c.Webhook.WorkerCount = 4
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "data/audit.jsonl"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

// getEnvBoolPtr returns nil when key is unset, distinguishing "not
// configured" from an explicit "false" override.
func getEnvBoolPtr(key string) *bool {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b := val == "true" || val == "1"
	return &b
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
