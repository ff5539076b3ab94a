package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  string
	KafkaTopic    string
	JWTSigningKey string

	// DefaultConsentExpiryDays seeds new policies created via the settings
	// endpoint; 0 means grants do not expire unless a policy says otherwise.
	DefaultConsentExpiryDays int

	PolicyCacheTTL time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:           getEnv("SANCTUM_ADDR", ":8080"),
		Environment:    getEnv("SANCTUM_ENV", "development"),
		LogLevel:       getEnv("SANCTUM_LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("SANCTUM_DATABASE_URL"),
		RedisURL:       os.Getenv("SANCTUM_REDIS_URL"),
		KafkaBrokers:   os.Getenv("SANCTUM_KAFKA_BROKERS"),
		KafkaTopic:     os.Getenv("SANCTUM_KAFKA_TOPIC"),
		PolicyCacheTTL: 5 * time.Minute,
	}

	cfg.JWTSigningKey = os.Getenv("SANCTUM_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Development fallback; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	if v := os.Getenv("SANCTUM_DEFAULT_CONSENT_EXPIRY_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.DefaultConsentExpiryDays = days
		}
	}
	if v := os.Getenv("SANCTUM_POLICY_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.PolicyCacheTTL = ttl
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
