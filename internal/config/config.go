// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable for the server process.
type Config struct {
	Port string

	// Database. Driver is "sqlite3" or "postgres"; DSN is the file path
	// for SQLite or a connection string for Postgres.
	DBDriver string
	DBDSN    string

	// Directory for per-job transcript files. Empty disables transcripts.
	TranscriptDir string

	// WebSocket idle lifecycle.
	ConnTTL       time.Duration
	SweepInterval time.Duration

	// Job execution.
	MaxConcurrentJobs int64
	EventRingSize     int

	// Pipeline provider. An empty endpoint selects the scripted dev
	// pipeline.
	OpenAIEndpoint string
	OpenAIAPIKey   string
	OpenAIModel    string

	// Telegram relay. Empty token disables the relay.
	TelegramToken string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DBDriver:       getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:          getEnv("DB_DSN", "data/crew.db"),
		TranscriptDir:  getEnv("TRANSCRIPT_DIR", "data/transcripts"),
		OpenAIEndpoint: getEnv("OPENAI_ENDPOINT", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
	}

	var err error
	if cfg.ConnTTL, err = getEnvDuration("WS_CONN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getEnvDuration("WS_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentJobs, err = getEnvInt64("MAX_CONCURRENT_JOBS", 8); err != nil {
		return nil, err
	}
	ringSize, err := getEnvInt64("EVENT_RING_SIZE", 512)
	if err != nil {
		return nil, err
	}
	cfg.EventRingSize = int(ringSize)

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration parses a duration variable. Plain integers are treated
// as seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
