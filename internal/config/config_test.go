package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.QueueDriver != "asynq" {
		t.Errorf("QueueDriver = %q", cfg.QueueDriver)
	}
	if cfg.WorkerConcurrency != 5 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.ExtractorTimeout != 10*time.Second {
		t.Errorf("ExtractorTimeout = %v", cfg.ExtractorTimeout)
	}
	if cfg.PriorCap != 50 {
		t.Errorf("PriorCap = %d", cfg.PriorCap)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "redis")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("EXTRACTOR_TIMEOUT_SECONDS", "3")
	t.Setenv("PRIOR_STORE_PATH", "/var/lib/worker/priors.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueDriver != "redis" {
		t.Errorf("QueueDriver = %q", cfg.QueueDriver)
	}
	if cfg.WorkerConcurrency != 12 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.ExtractorTimeout != 3*time.Second {
		t.Errorf("ExtractorTimeout = %v", cfg.ExtractorTimeout)
	}
	if cfg.PriorStorePath != "/var/lib/worker/priors.json" {
		t.Errorf("PriorStorePath = %q", cfg.PriorStorePath)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown queue driver", func(c *Config) { c.QueueDriver = "kafka" }},
		{"zero concurrency", func(c *Config) { c.WorkerConcurrency = 0 }},
		{"empty redis url", func(c *Config) { c.RedisURL = "" }},
		{"empty prior store path", func(c *Config) { c.PriorStorePath = "" }},
		{"zero prior cap", func(c *Config) { c.PriorCap = 0 }},
		{"negative timeout", func(c *Config) { c.ExtractorTimeout = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerConcurrency != 5 {
		t.Errorf("WorkerConcurrency = %d, want default 5", cfg.WorkerConcurrency)
	}
}
