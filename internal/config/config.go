package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	DeliveryTimeout time.Duration
	RatePerSecond   int
	SweepInterval   time.Duration
	RetryWindow     time.Duration
	RetentionWindow time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		Port:            port,
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		DeliveryTimeout: getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		RatePerSecond:   getEnvInt("DELIVERY_RATE_PER_SECOND", 0),
		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", time.Hour),
		RetryWindow:     getEnvDuration("RETRY_WINDOW", time.Hour),
		RetentionWindow: getEnvDuration("RETENTION_WINDOW", 30*24*time.Hour),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
