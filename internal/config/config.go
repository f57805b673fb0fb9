package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseURL string
	LogLevel    string

	LLMProvider     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string

	NatsURL   string
	NatsToken string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	CatalogPath       string
	AdapterTimeout    time.Duration
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	LLMRatePerMinute  int
	QANextLimit       int
	Timezone          string
	HTTPRatePerSecond int
}

// Load reads the environment. A .env file in the working directory is
// applied first; variables already set take precedence over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        envInt("SHIFTBOOK_PORT", 8760),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		LLMProvider:     strings.ToLower(envStr("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SHIFTBOOK_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:    envStr("GEMINI_API_KEY", ""),
		GeminiModel:     envStr("GEMINI_MODEL", "gemini-2.5-flash"),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		MinioEndpoint:  envStr("MINIO_ENDPOINT", ""),
		MinioAccessKey: envStr("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: envStr("MINIO_SECRET_KEY", ""),
		MinioBucket:    envStr("MINIO_BUCKET", "bulletins"),
		MinioUseSSL:    envBool("MINIO_USE_SSL", false),

		CatalogPath:       envStr("CATALOG_PATH", ""),
		AdapterTimeout:    envDuration("ADAPTER_TIMEOUT", 90*time.Second),
		RetryMaxAttempts:  envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:    envDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		LLMRatePerMinute:  envInt("LLM_RATE_PER_MINUTE", 30),
		QANextLimit:       envInt("QA_NEXT_SERVICE_LIMIT", 5),
		Timezone:          envStr("TIMEZONE", "Europe/Paris"),
		HTTPRatePerSecond: envInt("HTTP_RATE_PER_SECOND", 5),
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
