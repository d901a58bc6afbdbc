package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	DatabasePath   string
	JWTSecret      string
	TokenTTL       time.Duration
	AuditSchedule  string // standard cron expression for the ledger audit
	StatInterval   time.Duration
	AllowedOrigins []string
}

// Load loads configuration from the environment (and an optional .env file)
// or sets defaults.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	statInterval, err := time.ParseDuration(getEnv("STAT_INTERVAL", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STAT_INTERVAL: %w", err)
	}

	auditSchedule := getEnv("AUDIT_SCHEDULE", "0 3 * * *")
	if _, err := cron.ParseStandard(auditSchedule); err != nil {
		return nil, fmt.Errorf("invalid AUDIT_SCHEDULE %q: %w", auditSchedule, err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}

	return &Config{
		ServerPort:     port,
		DatabasePath:   getEnv("DATABASE_PATH", "./semspend.db"),
		JWTSecret:      secret,
		TokenTTL:       ttl,
		AuditSchedule:  auditSchedule,
		StatInterval:   statInterval,
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
