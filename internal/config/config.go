// Package config loads the Producer's configuration from YAML with
// environment-variable overrides and sane defaults, following the same
// load → override → default pipeline as the rest of the pack.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Agnox Producer - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Auth       AuthConfig       `yaml:"auth"`
	Worker     WorkerConfig     `yaml:"worker"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Ingest     IngestConfig     `yaml:"ingest"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Reports    ReportConfig     `yaml:"reports"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	InjectEnv  []string         `yaml:"inject_env_vars"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// DatabaseConfig for the Tenant-Scoped Store (Supabase/Postgres-backed).
type DatabaseConfig struct {
	Supabase SupabaseConfig `yaml:"supabase"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// RedisConfig backs the Ingest cache, Rate Limiter, and live-log cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig for the AMQP-backed Task Queue Adapter.
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"` // false => in-memory fallback queue
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	MaxPrio  int    `yaml:"max_priority"`
	Prefetch int    `yaml:"prefetch"`
}

// AuthConfig for JWT-based user Principals (C1 Identity Gate).
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTTTLSec   int    `yaml:"jwt_ttl_sec"`
}

// WorkerConfig for the shared-secret worker callback authentication (C6).
type WorkerConfig struct {
	CallbackSecret     string `yaml:"callback_secret"`
	CallbackTransition bool   `yaml:"callback_transition"` // spec.md §9: off by default, slated for removal
}

// SecretsConfig for AES-256-GCM envelope encryption of ProjectEnvVar secrets.
type SecretsConfig struct {
	EnvVarKeyHex string `yaml:"env_var_key_hex"` // 32 bytes hex-encoded
}

// IngestConfig tunes the external-CI Ingest Session Manager (C8).
type IngestConfig struct {
	SessionTTLHours   int `yaml:"session_ttl_hours"`
	FallbackTTLHours  int `yaml:"fallback_ttl_hours"`
	LiveLogTTLHours   int `yaml:"live_log_ttl_hours"`
	ArchiveTTLDays    int `yaml:"archive_ttl_days"`
}

// RateLimitConfig for per-org fixed-window tiers (C11).
type RateLimitConfig struct {
	GeneralPerMinute        int `yaml:"general_per_minute"`
	IngestLifecyclePerMinute int `yaml:"ingest_lifecycle_per_minute"`
	IngestEventPerMinute    int `yaml:"ingest_event_per_minute"`
}

// ReportConfig for the Report Token Service (C10).
type ReportConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	Dir        string `yaml:"dir"`
}

// DefaultsConfig feeds GET /config/defaults, the dashboard bootstrap endpoint.
type DefaultsConfig struct {
	Image           string            `yaml:"image"`
	BaseURLsByEnv   map[string]string `yaml:"base_urls_by_env"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("AGNOX_ENV", c.Server.Env)
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
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.Database.Supabase.URL = getEnv("SUPABASE_URL", c.Database.Supabase.URL)
	c.Database.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Database.Supabase.ServiceKey)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	c.Queue.Enabled = getEnvBool("QUEUE_ENABLED", c.Queue.Enabled)
	c.Queue.URL = getEnv("QUEUE_URL", c.Queue.URL)
	c.Queue.Name = getEnv("QUEUE_NAME", c.Queue.Name)
	if v := getEnvInt("QUEUE_MAX_PRIORITY", 0); v > 0 {
		c.Queue.MaxPrio = v
	}
	if v := getEnvInt("QUEUE_PREFETCH", 0); v > 0 {
		c.Queue.Prefetch = v
	}

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	if v := getEnvInt("JWT_TTL_SEC", 0); v > 0 {
		c.Auth.JWTTTLSec = v
	}

	c.Worker.CallbackSecret = getEnv("WORKER_CALLBACK_SECRET", c.Worker.CallbackSecret)
	c.Worker.CallbackTransition = getEnvBool("WORKER_CALLBACK_TRANSITION", c.Worker.CallbackTransition)

	c.Secrets.EnvVarKeyHex = getEnv("ENV_VAR_AES_KEY_HEX", c.Secrets.EnvVarKeyHex)

	if v := getEnvInt("INGEST_SESSION_TTL_HOURS", 0); v > 0 {
		c.Ingest.SessionTTLHours = v
	}
	if v := getEnvInt("INGEST_FALLBACK_TTL_HOURS", 0); v > 0 {
		c.Ingest.FallbackTTLHours = v
	}
	if v := getEnvInt("INGEST_LIVE_LOG_TTL_HOURS", 0); v > 0 {
		c.Ingest.LiveLogTTLHours = v
	}
	if v := getEnvInt("INGEST_ARCHIVE_TTL_DAYS", 0); v > 0 {
		c.Ingest.ArchiveTTLDays = v
	}

	if v := getEnvInt("RATE_LIMIT_GENERAL_PER_MINUTE", 0); v > 0 {
		c.RateLimit.GeneralPerMinute = v
	}
	if v := getEnvInt("RATE_LIMIT_INGEST_LIFECYCLE_PER_MINUTE", 0); v > 0 {
		c.RateLimit.IngestLifecyclePerMinute = v
	}
	if v := getEnvInt("RATE_LIMIT_INGEST_EVENT_PER_MINUTE", 0); v > 0 {
		c.RateLimit.IngestEventPerMinute = v
	}

	c.Reports.HMACSecret = getEnv("REPORT_TOKEN_SECRET", c.Reports.HMACSecret)
	if v := getEnvInt("REPORT_TOKEN_TTL_SEC", 0); v > 0 {
		c.Reports.TTLSeconds = v
	}
	c.Reports.Dir = getEnv("REPORTS_DIR", c.Reports.Dir)

	c.Defaults.Image = getEnv("DEFAULT_IMAGE", c.Defaults.Image)

	if injected := getEnv("INJECT_ENV_VARS", ""); injected != "" {
		c.InjectEnv = splitCSV(injected)
	}

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
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
	if len(c.Server.CORSAllowOrigins) == 0 {
		if c.IsProduction() {
			c.Server.CORSAllowOrigins = []string{}
		} else {
			c.Server.CORSAllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "test_queue"
	}
	if c.Queue.MaxPrio == 0 {
		c.Queue.MaxPrio = 10
	}
	if c.Queue.Prefetch == 0 {
		c.Queue.Prefetch = 1
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "agnox-dev-jwt-secret-change-in-production"
	}
	if c.Auth.JWTTTLSec == 0 {
		c.Auth.JWTTTLSec = 24 * 3600
	}
	if c.Worker.CallbackSecret == "" {
		c.Worker.CallbackSecret = "agnox-dev-worker-secret-change-in-production"
	}
	if c.Ingest.SessionTTLHours == 0 {
		c.Ingest.SessionTTLHours = 24
	}
	if c.Ingest.FallbackTTLHours == 0 {
		c.Ingest.FallbackTTLHours = 4
	}
	if c.Ingest.LiveLogTTLHours == 0 {
		c.Ingest.LiveLogTTLHours = 4
	}
	if c.Ingest.ArchiveTTLDays == 0 {
		c.Ingest.ArchiveTTLDays = 7
	}
	if c.RateLimit.GeneralPerMinute == 0 {
		c.RateLimit.GeneralPerMinute = 100
	}
	if c.RateLimit.IngestLifecyclePerMinute == 0 {
		c.RateLimit.IngestLifecyclePerMinute = 100
	}
	if c.RateLimit.IngestEventPerMinute == 0 {
		c.RateLimit.IngestEventPerMinute = 500
	}
	if c.Reports.HMACSecret == "" {
		c.Reports.HMACSecret = "agnox-dev-report-secret-change-in-production"
	}
	if c.Reports.TTLSeconds == 0 {
		c.Reports.TTLSeconds = 300
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "./reports"
	}
	if c.Defaults.Image == "" {
		c.Defaults.Image = "agnox/runner:latest"
	}
	if c.Defaults.BaseURLsByEnv == nil {
		c.Defaults.BaseURLsByEnv = map[string]string{
			"dev":     "http://localhost:3000",
			"staging": "https://staging.example.com",
			"prod":    "https://app.example.com",
		}
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

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
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

func (c *Config) GetSupabaseURL() string {
	return c.Database.Supabase.URL
}

func (c *Config) GetSupabaseKey() string {
	return c.Database.Supabase.ServiceKey
}
