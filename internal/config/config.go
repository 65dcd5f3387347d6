package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"tutorchat/internal/secrets"
)

// ErrMissingAPIKey is returned by Load when no Gemini credential is configured.
var ErrMissingAPIKey = errors.New("API key is not set: define API_KEY (or GEMINI_API_KEY) in the secrets file, .env or the environment")

// APIKeyNames are the secret keys tried, in order, for the Gemini credential.
var APIKeyNames = []string{"API_KEY", "GEMINI_API_KEY"}

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	GeminiRequestTimeout time.Duration
	GeminiMaxRetries     int

	// Sessions
	SessionBackend string
	RedisURL       string
	SessionTTL     time.Duration
	CookieSecure   bool

	// Logging
	Debug bool
}

// Load reads configuration from the environment (after loading .env) and
// resolves the API key through the secrets file first.
func Load() (*Config, error) {
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	provider := secrets.Chain{
		secrets.NewFileProvider(getEnvOrDefault("SECRETS_FILE", "secrets.toml")),
		secrets.NewEnvProvider(envFile),
	}
	return LoadFrom(provider)
}

// LoadFrom builds a Config using p for secrets. Plain settings are read
// from the process environment, which p may already have populated from .env.
func LoadFrom(p secrets.Provider) (*Config, error) {
	if fp, ok := p.(interface{ Err() error }); ok {
		if err := fp.Err(); err != nil {
			return nil, err
		}
	}

	apiKey, _ := secrets.Lookup(p, APIKeyNames...)

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:         apiKey,
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GeminiRequestTimeout: getEnvAsDurationOrDefault("GEMINI_REQUEST_TIMEOUT", 60*time.Second),
		GeminiMaxRetries:     getEnvAsIntOrDefault("GEMINI_MAX_RETRIES", 2),
		SessionBackend:       getEnvOrDefault("SESSION_BACKEND", "memory"),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 24*time.Hour),
		CookieSecure:         getEnvAsBoolOrDefault("COOKIE_SECURE", false),
		Debug:                getEnvAsBoolOrDefault("LOG_DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on settings the server cannot run without.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return ErrMissingAPIKey
	}
	switch c.SessionBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("SESSION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q (want memory or redis)", c.SessionBackend)
	}
	if c.GeminiConcurrentReqs < 1 {
		return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be at least 1, got %d", c.GeminiConcurrentReqs)
	}
	if c.GeminiMaxRetries < 0 {
		return fmt.Errorf("GEMINI_MAX_RETRIES must not be negative, got %d", c.GeminiMaxRetries)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
