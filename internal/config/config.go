// Package config loads application settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP server
	Port      string
	StaticDir string

	// Digest pipeline
	SourcesConfigPath  string // optional YAML override for the source table
	FetchTimeout       time.Duration
	FeedTimeout        time.Duration
	TranslateTimeout   time.Duration
	AggregateTimeout   time.Duration // bound on one whole aggregation run
	RetryAttempts      int
	RetryDelay         time.Duration
	CacheDir           string
	CacheRetentionDays int

	// Translation
	OpenAIAPIKey         string
	MaxTranslateRequests int // daily budget for outbound translation calls

	// Sessions / TTS / weather
	SessionTTL     time.Duration
	AudioDir       string
	TTSTimeout     time.Duration
	WeatherTimeout time.Duration

	Debug bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "6888"),
		StaticDir:            getEnvOrDefault("STATIC_DIR", "static"),
		SourcesConfigPath:    os.Getenv("SOURCES_CONFIG"),
		FetchTimeout:         getEnvDurationOrDefault("FETCH_TIMEOUT", 20*time.Second),
		FeedTimeout:          getEnvDurationOrDefault("FEED_TIMEOUT", 10*time.Second),
		TranslateTimeout:     getEnvDurationOrDefault("TRANSLATE_TIMEOUT", 8*time.Second),
		AggregateTimeout:     getEnvDurationOrDefault("AGGREGATE_TIMEOUT", 90*time.Second),
		RetryAttempts:        getEnvIntOrDefault("RETRY_ATTEMPTS", 2),
		RetryDelay:           getEnvDurationOrDefault("RETRY_DELAY", 2*time.Second),
		CacheDir:             getEnvOrDefault("CACHE_DIR", "cache"),
		CacheRetentionDays:   getEnvIntOrDefault("CACHE_RETENTION_DAYS", 3),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		MaxTranslateRequests: getEnvIntOrDefault("MAX_TRANSLATE_REQUESTS", 200),
		SessionTTL:           getEnvDurationOrDefault("SESSION_TTL", 24*time.Hour),
		AudioDir:             getEnvOrDefault("AUDIO_DIR", "static/audio"),
		TTSTimeout:           getEnvDurationOrDefault("TTS_TIMEOUT", 60*time.Second),
		WeatherTimeout:       getEnvDurationOrDefault("WEATHER_TIMEOUT", 10*time.Second),
	}

	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.CacheRetentionDays < 1 {
		return fmt.Errorf("CACHE_RETENTION_DAYS must be at least 1")
	}
	return nil
}
