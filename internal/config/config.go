package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string

	// TenantHeader overrides host-based tenant resolution when present.
	TenantHeader string

	TokenTTL      time.Duration
	ResetTokenTTL time.Duration

	PhotoHostURL    string
	PhotoHostKey    string
	PhotoHostSecret string

	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int

	EmailFrom       string
	FrontendBaseURL string
	QueuePrefix     string

	// SMTP settings are only read by the worker process. An empty SMTPAddr
	// means outgoing mail is logged and dropped.
	SMTPAddr string
	SMTPUser string
	SMTPPass string

	MetricsNamespace string
	MetricsBuckets   string
	LogFormat        string
	LogLevel         string

	TracingEnabled  bool
	TracingEndpoint string
	TracingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		TenantHeader:       valueOrDefault(k.String("TENANT_HEADER"), "X-Tenant-Slug"),
		TokenTTL:           parseDuration(k.String("TOKEN_TTL"), "8h"),
		ResetTokenTTL:      parseDuration(k.String("RESET_TOKEN_TTL"), "1h"),
		PhotoHostURL:       k.String("PHOTO_HOST_URL"),
		PhotoHostKey:       k.String("PHOTO_HOST_KEY"),
		PhotoHostSecret:    k.String("PHOTO_HOST_SECRET"),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "30s"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitPerMinute: intOrDefault(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		RateLimitBurst:     intOrDefault(k.String("RATE_LIMIT_BURST"), 30),
		EmailFrom:          valueOrDefault(k.String("EMAIL_FROM"), "no-reply@villagemarket.local"),
		FrontendBaseURL:    valueOrDefault(k.String("FRONTEND_BASE_URL"), "http://localhost:3000"),
		QueuePrefix:        valueOrDefault(k.String("QUEUE_PREFIX"), "vilmart"),
		SMTPAddr:           k.String("SMTP_ADDR"),
		SMTPUser:           k.String("SMTP_USER"),
		SMTPPass:           k.String("SMTP_PASS"),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "vilmart"),
		MetricsBuckets:     k.String("METRICS_BUCKETS_MS"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		TracingEnabled:     parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:    k.String("TRACING_ENDPOINT"),
		TracingRatio:       floatOrDefault(k.String("TRACING_RATIO"), 1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parseDuration(value, fallback string) time.Duration {
	raw := strings.TrimSpace(value)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func intOrDefault(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func floatOrDefault(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

// MustLoad is Load for entrypoints that cannot start without config.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests loads config with the given variables applied, restoring the
// previous environment before returning.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key, value := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var failed []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(failed, "; "))
	}
	return nil
}
