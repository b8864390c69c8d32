package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/HanTheDev/phish-guard/internal/llm"
	"github.com/HanTheDev/phish-guard/internal/ratelimit"
)

const (
	CacheAuto     = "auto"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
	CacheMemory   = "memory"
	CacheNone     = "none"

	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

type Config struct {
	AppEnv     string
	ServerPort string

	DatabaseURL      string
	RedisURL         string
	CacheBackend     string
	RateLimitBackend string

	RateLimit    int64
	DevRateLimit int64
	AllowDevMode bool

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LLMTimeout    time.Duration

	AdminAPIKey string
	JWTSecret   string

	LogLevel     string
	LogJSON      bool
	OTLPEndpoint string
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		CacheBackend:     strings.ToLower(getEnv("CACHE_BACKEND", CacheAuto)),
		RateLimitBackend: strings.ToLower(getEnv("RATE_LIMIT_BACKEND", LimiterMemory)),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", llm.DefaultModel),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if cfg.RateLimit, err = getInt("RATE_LIMIT", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.DevRateLimit, err = getInt("DEV_RATE_LIMIT", 50); err != nil {
		errs = append(errs, err)
	}
	if cfg.AllowDevMode, err = getBool("ALLOW_DEV_MODE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.LogJSON, err = getBool("LOG_JSON", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", llm.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// DevMode reports whether loopback clients get the relaxed quota. Production
// always disables it.
func (c *Config) DevMode() bool {
	return c.AllowDevMode && !c.IsProduction()
}

func (c *Config) RateLimitPolicy() ratelimit.Policy {
	return ratelimit.Policy{
		Limit:    c.RateLimit,
		DevLimit: c.DevRateLimit,
		Window:   ratelimit.DefaultWindow,
		DevMode:  c.DevMode(),
	}
}

func (c *Config) LLM() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		APIKey:  c.OpenAIKey,
		BaseURL: c.OpenAIBaseURL,
		Model:   c.OpenAIModel,
		Timeout: c.LLMTimeout,
	}
}

func (c *Config) AdminEnabled() bool {
	return c.AdminAPIKey != ""
}

func (c *Config) Validate() error {
	var errs []error

	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit))
	}
	if c.DevRateLimit < 0 {
		errs = append(errs, fmt.Errorf("DEV_RATE_LIMIT must not be negative, got %d", c.DevRateLimit))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout))
	}

	switch c.CacheBackend {
	case CacheAuto, CacheMemory, CacheNone:
	case CachePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("CACHE_BACKEND=postgres requires DATABASE_URL"))
		}
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("CACHE_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}

	switch c.RateLimitBackend {
	case LimiterMemory:
	case LimiterRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}

	if c.AdminAPIKey != "" && c.JWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_API_KEY requires JWT_SECRET"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
