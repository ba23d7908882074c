/**
 * Worker configuration
 *
 * All configuration comes from environment variables with sensible
 * defaults for local development.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the detection worker
type Config struct {
	// Queue
	RedisURL    string
	QueueDriver string // "asynq" or "redis"
	QueueName   string

	// Persistence
	DatabaseURL    string
	PriorStorePath string
	PriorCap       int

	// OCR
	Language          string
	MinWordConfidence float64

	// Model services
	LayoutModelURL string
	EntityModelURL string

	// Patterns
	PatternsPath string

	// Processing
	WorkerConcurrency int
	ExtractorTimeout  time.Duration
	ProcessingTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueDriver:       getEnvOrDefault("QUEUE_DRIVER", "asynq"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "name_detection"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		PriorStorePath:    getEnvOrDefault("PRIOR_STORE_PATH", "data/name_priors.json"),
		PriorCap:          getEnvAsIntOrDefault("PRIOR_CAP", 50),
		Language:          getEnvOrDefault("OCR_LANGUAGE", "eng"),
		MinWordConfidence: float64(getEnvAsIntOrDefault("OCR_MIN_WORD_CONFIDENCE", 30)),
		LayoutModelURL:    getEnvOrDefault("LAYOUT_MODEL_URL", "http://localhost:8601"),
		EntityModelURL:    getEnvOrDefault("ENTITY_MODEL_URL", "http://localhost:8602"),
		PatternsPath:      getEnvOrDefault("PATTERNS_PATH", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 5),
		ExtractorTimeout:  time.Duration(getEnvAsIntOrDefault("EXTRACTOR_TIMEOUT_SECONDS", 10)) * time.Second,
		ProcessingTimeout: time.Duration(getEnvAsIntOrDefault("PROCESSING_TIMEOUT_SECONDS", 120)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.QueueDriver != "asynq" && c.QueueDriver != "redis" {
		return fmt.Errorf("QUEUE_DRIVER must be \"asynq\" or \"redis\", got %q", c.QueueDriver)
	}
	if c.PriorStorePath == "" {
		return fmt.Errorf("PRIOR_STORE_PATH is required")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.ExtractorTimeout <= 0 {
		return fmt.Errorf("EXTRACTOR_TIMEOUT_SECONDS must be positive")
	}
	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT_SECONDS must be positive")
	}
	if c.PriorCap < 1 {
		return fmt.Errorf("PRIOR_CAP must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
