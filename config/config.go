package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort string
	App        *shared.UnifiedConfiguration
}

// GetCacheTTL returns the response TTL that also drives Cache-Control max-age
func (c *Config) GetCacheTTL() time.Duration {
	if c.App == nil || c.App.Cache.DefaultTTL <= 0 {
		return shared.DefaultCacheTTL
	}
	return c.App.Cache.DefaultTTL
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return FromEnvironment()
}

// FromEnvironment builds the configuration from process environment only
func FromEnvironment() *Config {
	app := shared.NewDefaultUnifiedConfiguration()

	app.Upstream.URL = getEnv("UPSTREAM_URL", app.Upstream.URL)
	app.Upstream.UserAgent = getEnv("UPSTREAM_USER_AGENT", app.Upstream.UserAgent)
	app.Upstream.HTTPRequestTimeout = getSeconds("UPSTREAM_TIMEOUT_SECONDS", app.Upstream.HTTPRequestTimeout)
	app.Upstream.MinimumDelay = getDuration("UPSTREAM_MIN_DELAY_MS", time.Millisecond, app.Upstream.MinimumDelay)
	app.Upstream.FetchBackend = strings.ToLower(getEnv("FETCH_BACKEND", app.Upstream.FetchBackend))
	app.Upstream.Tokenizer = strings.ToLower(getEnv("TOKENIZER", app.Upstream.Tokenizer))

	app.Cache.Backend = strings.ToLower(getEnv("CACHE_BACKEND", app.Cache.Backend))
	app.Cache.DefaultTTL = getSeconds("CACHE_TTL_SECONDS", app.Cache.DefaultTTL)
	app.Cache.MaxSize = getInt("CACHE_MAX_SIZE", app.Cache.MaxSize)
	app.Cache.CleanupPeriod = getDuration("CACHE_CLEANUP_MINUTES", time.Minute, app.Cache.CleanupPeriod)

	app.Redis.Addr = getEnv("REDIS_ADDR", app.Redis.Addr)
	app.Redis.Password = getEnv("REDIS_PASSWORD", app.Redis.Password)
	app.Redis.DB = getInt("REDIS_DB", app.Redis.DB)

	app.Database.URL = getEnv("DATABASE_URL", app.Database.URL)

	app.Logging.Level = getEnv("LOG_LEVEL", app.Logging.Level)
	app.Logging.Format = getEnv("LOG_FORMAT", app.Logging.Format)

	app.ValidateAndApplyDefaults()

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		App:        app,
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getSeconds(key string, fallback time.Duration) time.Duration {
	return getDuration(key, time.Second, fallback)
}

// getDuration reads a non-negative integer count of unit
func getDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(value) * unit
}
