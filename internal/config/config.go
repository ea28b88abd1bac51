package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Page origin the gate proxies allowed navigation to.
	WebOrigin string
	// Origins allowed to call the action API with credentials.
	AllowedOrigins []string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Gate
	GateBudget time.Duration
	// Profile cache for the gate's single read per request.
	ProfileCacheTTL time.Duration

	// Session controller
	DebounceWindow time.Duration
	InitRetries    int

	// Registration
	PendingEmailTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	// Secret of the GoTrue-issued access tokens; enables the gate's
	// local expiry pre-check.
	GoTrueJWTSecret string

	// Cross-context sync broker. Empty falls back to in-process only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SecureCookies bool

	// Dev mode
	DevAuth bool // DEV_AUTH=true swaps Supabase for the in-memory identity stub
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WebOrigin:      getEnv("WEB_ORIGIN", "http://localhost:3000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		GateBudget:      getEnvDuration("GATE_BUDGET", 3*time.Second),
		ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL", 15*time.Second),

		DebounceWindow: getEnvDuration("DEBOUNCE_WINDOW", 300*time.Millisecond),
		InitRetries:    getEnvInt("INIT_RETRIES", 3),

		PendingEmailTTL: getEnvDuration("PENDING_EMAIL_TTL", 24*time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		GoTrueJWTSecret:    getEnv("GOTRUE_JWT_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SecureCookies: getEnv("SECURE_COOKIES", "true") == "true",

		DevAuth: getEnv("DEV_AUTH", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
