package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the relay, sourced from
// environment variables (optionally via a .env file loaded in main).
type Config struct {
	Port      string
	JWTSecret []byte

	// Postgres connection string. If empty, built from the DB_* parts.
	DatabaseURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	LogLevel string
	LogFile  string

	// Bound on Identity Verifier calls during connection admission.
	VerifyTimeout time.Duration
	// Bound on Persistence Store calls issued per inbound event.
	StoreTimeout time.Duration

	ShutdownGrace time.Duration
}

// Load reads configuration from the environment. JWT_SECRET is the only
// required variable; everything else has a development default.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8787"),
		JWTSecret:     []byte(secret),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "relay.log"),
		VerifyTimeout: getDuration("VERIFY_TIMEOUT_SECONDS", 5*time.Second),
		StoreTimeout:  getDuration("STORE_TIMEOUT_SECONDS", 5*time.Second),
		ShutdownGrace: getDuration("SHUTDOWN_GRACE_SECONDS", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
			getEnv("DB_NAME", "ripple"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
