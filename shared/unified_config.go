package shared

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults for the dorm mail proxy
const (
	DefaultUpstreamURL     = "https://ccweb.ncnu.edu.tw/dormmail/Default.asp"
	DefaultCacheTTL        = 300 * time.Second
	DefaultCacheMaxSize    = 1000
	DefaultCleanupEvery    = 10 * time.Minute
	DefaultUpstreamTimeout = 30 * time.Second
)

// Backend names accepted in configuration
const (
	FetchBackendHTTP  = "http"
	FetchBackendColly = "colly"

	TokenizerRegex   = "regex"
	TokenizerGoquery = "goquery"

	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
)

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Upstream UpstreamConfig `json:"upstream"`
	Cache    CacheConfig    `json:"cache"`
	Redis    RedisConfig    `json:"redis"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
}

// UpstreamConfig describes how the legacy dorm mail page is fetched and parsed
type UpstreamConfig struct {
	URL                string        `json:"url"`
	UserAgent          string        `json:"user_agent"`
	HTTPRequestTimeout time.Duration `json:"http_timeout"`
	MinimumDelay       time.Duration `json:"minimum_delay"`
	FetchBackend       string        `json:"fetch_backend"`
	Tokenizer          string        `json:"tokenizer"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	Backend       string        `json:"backend"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	MaxSize       int           `json:"max_size"`
	CleanupPeriod time.Duration `json:"cleanup_period"`
}

// RedisConfig holds the redis cache store connection
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `json:"-"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	ServiceName string `json:"service_name"`
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Upstream: UpstreamConfig{
			URL:                DefaultUpstreamURL,
			UserAgent:          DefaultUpstreamUserAgent,
			HTTPRequestTimeout: DefaultUpstreamTimeout,
			FetchBackend:       FetchBackendHTTP,
			Tokenizer:          TokenizerRegex,
		},
		Cache: CacheConfig{
			Backend:       CacheBackendMemory,
			DefaultTTL:    DefaultCacheTTL,
			MaxSize:       DefaultCacheMaxSize,
			CleanupPeriod: DefaultCleanupEvery,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "dormmail-backend",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Upstream.URL == "" {
		c.Upstream.URL = defaults.Upstream.URL
		logger.Debug("Applied default Upstream.URL")
	}

	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = defaults.Upstream.UserAgent
		logger.Debug("Applied default Upstream.UserAgent")
	}

	if c.Upstream.HTTPRequestTimeout <= 0 {
		c.Upstream.HTTPRequestTimeout = defaults.Upstream.HTTPRequestTimeout
		logger.Debug("Applied default Upstream.HTTPRequestTimeout")
	}

	if c.Upstream.MinimumDelay < 0 {
		c.Upstream.MinimumDelay = 0
		logger.Debug("Disabled negative Upstream.MinimumDelay")
	}

	switch c.Upstream.FetchBackend {
	case FetchBackendHTTP, FetchBackendColly:
	default:
		logger.Warnf("Unknown fetch backend %q, using %q", c.Upstream.FetchBackend, FetchBackendHTTP)
		c.Upstream.FetchBackend = FetchBackendHTTP
	}

	switch c.Upstream.Tokenizer {
	case TokenizerRegex, TokenizerGoquery:
	default:
		logger.Warnf("Unknown tokenizer %q, using %q", c.Upstream.Tokenizer, TokenizerRegex)
		c.Upstream.Tokenizer = TokenizerRegex
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendPostgres:
	default:
		logger.Warnf("Unknown cache backend %q, using %q", c.Cache.Backend, CacheBackendMemory)
		c.Cache.Backend = CacheBackendMemory
	}

	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
		logger.Debug("Applied default Cache.DefaultTTL")
	}

	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = defaults.Cache.MaxSize
		logger.Debug("Applied default Cache.MaxSize")
	}

	if c.Cache.CleanupPeriod <= 0 {
		c.Cache.CleanupPeriod = defaults.Cache.CleanupPeriod
		logger.Debug("Applied default Cache.CleanupPeriod")
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = defaults.Redis.Addr
		logger.Debug("Applied default Redis.Addr")
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
		logger.Debug("Applied default Database.MaxOpenConns")
	}

	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
		logger.Debug("Applied default Database.MaxIdleConns")
	}

	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
		logger.Debug("Applied default Database.ConnMaxLifetime")
	}

	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
		logger.Debug("Applied default Database.PingTimeout")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		logger.Debug("Applied default Logging.Level")
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
		logger.Debug("Applied default Logging.Format")
	}

	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
		logger.Debug("Applied default Logging.ServiceName")
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ConfigureLogging applies the logging section to the global logrus logger
func (c *UnifiedConfiguration) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		logrus.Warnf("Invalid log level %q, using info", c.Logging.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
