package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty file should succeed, got error: %v", err)
	}

	if cfg.Server.Address != ":8000" {
		t.Errorf("Expected default server address :8000, got %s", cfg.Server.Address)
	}
	if cfg.Pipeline.QueueSize != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.MaxConcurrent != 10 {
		t.Errorf("Expected default max concurrent 10, got %d", cfg.Pipeline.MaxConcurrent)
	}
	if cfg.Reconnection.Strategy != "exponential_backoff" {
		t.Errorf("Expected default strategy exponential_backoff, got %s", cfg.Reconnection.Strategy)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Expected default store type memory, got %s", cfg.Store.Type)
	}
}

func TestLoad_FromFile(t *testing.T) {
	content := `
server:
  address: ":9000"
pipeline:
  queue_size: 50
  max_concurrent: 3
reconnection:
  strategy: fixed_interval
  initial_delay: 2s
heartbeat:
  interval: 10s
`
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load should succeed, got error: %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Errorf("Expected server address :9000, got %s", cfg.Server.Address)
	}
	if cfg.Pipeline.QueueSize != 50 {
		t.Errorf("Expected queue size 50, got %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.MaxConcurrent != 3 {
		t.Errorf("Expected max concurrent 3, got %d", cfg.Pipeline.MaxConcurrent)
	}
	if cfg.Reconnection.Strategy != "fixed_interval" {
		t.Errorf("Expected strategy fixed_interval, got %s", cfg.Reconnection.Strategy)
	}
	if cfg.Reconnection.InitialDelay != 2*time.Second {
		t.Errorf("Expected initial delay 2s, got %v", cfg.Reconnection.InitialDelay)
	}
	if cfg.Heartbeat.Interval != 10*time.Second {
		t.Errorf("Expected heartbeat interval 10s, got %v", cfg.Heartbeat.Interval)
	}

	// Untouched sections keep their defaults.
	if cfg.Offline.QueueLimit != 100 {
		t.Errorf("Expected default offline queue limit 100, got %d", cfg.Offline.QueueLimit)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load with nonexistent file should fail")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STATUSPULSE_SERVER_ADDRESS", ":7777")
	t.Setenv("STATUSPULSE_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should succeed, got error: %v", err)
	}

	if cfg.Server.Address != ":7777" {
		t.Errorf("Expected env-overridden address :7777, got %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env-overridden log level debug, got %s", cfg.Logging.Level)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"zero queue size", func(c *Config) { c.Pipeline.QueueSize = 0 }},
		{"zero max concurrent", func(c *Config) { c.Pipeline.MaxConcurrent = 0 }},
		{"bad strategy", func(c *Config) { c.Reconnection.Strategy = "random" }},
		{"bad store type", func(c *Config) { c.Store.Type = "etcd" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true; c.Auth.JWTSecret = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}
