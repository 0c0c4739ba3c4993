package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Service authentication (API key shared with collaborator services)
	ServiceAPIKey string

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Webhook configuration (notification collaborator)
	WebhookCallbackURL string
	WebhookSecret      string

	// Capacity engine configuration
	GracePeriodDays  int
	SweepIntervalMin int
	LockBackend      string // "local" or "redis"
	LockTimeoutSec   int
	RateLimitPerSec  int
	RateLimitBurst   int
	ServiceName      string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:               getEnv("PORT", "8080"),
		Mode:               getEnv("GIN_MODE", "debug"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ServiceAPIKey:      getEnv("SERVICE_API_KEY", "dev-api-key"),
		BrevoAPIKey:        getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:     getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:      getEnv("BREVO_FROM_NAME", "Fleet Service"),
		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		GracePeriodDays:    getEnvInt("GRACE_PERIOD_DAYS", 7),
		SweepIntervalMin:   getEnvInt("SWEEP_INTERVAL_MINUTES", 15),
		LockBackend:        getEnv("LOCK_BACKEND", "local"),
		LockTimeoutSec:     getEnvInt("LOCK_TIMEOUT_SECONDS", 10),
		RateLimitPerSec:    getEnvInt("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),
		ServiceName:        getEnv("SERVICE_NAME", "Fleet Capacity Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
