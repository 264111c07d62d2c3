package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/steward/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "45s")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvDuration() = %v, want 45s", got)
	}
	if got := getEnvDuration("TEST_DURATION_NOT_SET", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}

	os.Setenv("TEST_DURATION_BAD", "not-a-duration")
	defer os.Unsetenv("TEST_DURATION_BAD")
	if got := getEnvDuration("TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() with invalid value = %v, want default", got)
	}
}

// TestLoadConfig tests loading configuration from environment
func TestLoadConfig(t *testing.T) {
	os.Setenv("STEWARD_POSTGRES_URL", "postgres://localhost/steward_test")
	os.Setenv("STEWARD_PORT", "8181")
	os.Setenv("STEWARD_CACHE_TTL", "2m")
	os.Setenv("STEWARD_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("STEWARD_POSTGRES_URL")
		os.Unsetenv("STEWARD_PORT")
		os.Unsetenv("STEWARD_CACHE_TTL")
		os.Unsetenv("STEWARD_LOG_LEVEL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.Port != "8181" {
		t.Errorf("Server.Port = %v, want 8181", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/steward_test" {
		t.Errorf("Database.URL = %v", cfg.Database.URL)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("Cache.TTL = %v, want 2m", cfg.Cache.TTL)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("Redis.URL = %v, want empty", cfg.Redis.URL)
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost/steward", MaxOpenConns: 25, MaxIdleConns: 5},
			Cache:    CacheConfig{TTL: time.Minute, MaxEntries: 100},
			Audit:    AuditConfig{Retention: 24 * time.Hour},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing postgres URL", func(c *Config) { c.Database.URL = "" }},
		{"port collision", func(c *Config) { c.Server.HealthPort = "8080" }},
		{"zero cache TTL", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"idle exceeds open conns", func(c *Config) { c.Database.MaxIdleConns = 50 }},
		{"zero audit retention", func(c *Config) { c.Audit.Retention = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestParseLogLevel tests log level parsing
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"INFO", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"bogus", observability.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestLoadJanitorConfig tests YAML janitor configuration loading
func TestLoadJanitorConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steward-janitor.yaml")
	content := `version: v1
audit:
  enabled: true
  schedule: "0 2 * * *"
  retention: "720h"
orphans:
  enabled: false
  schedule: "*/15 * * * *"
tokens:
  enabled: true
  schedule: "0 5 * * *"
  grace: "24h"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadJanitorConfig(path)
	if err != nil {
		t.Fatalf("LoadJanitorConfig() failed: %v", err)
	}
	if cfg.Audit.Schedule != "0 2 * * *" {
		t.Errorf("Audit.Schedule = %v", cfg.Audit.Schedule)
	}
	if cfg.AuditRetention() != 720*time.Hour {
		t.Errorf("AuditRetention() = %v, want 720h", cfg.AuditRetention())
	}
	if cfg.Orphans.Enabled {
		t.Error("Expected orphan sweep disabled")
	}
	if cfg.TokenGrace() != 24*time.Hour {
		t.Errorf("TokenGrace() = %v, want 24h", cfg.TokenGrace())
	}
}

// TestLoadJanitorConfigFromDir tests directory search and defaults
func TestLoadJanitorConfigFromDir(t *testing.T) {
	cfg, err := LoadJanitorConfigFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadJanitorConfigFromDir() failed: %v", err)
	}
	def := DefaultJanitorConfig()
	if cfg.Audit.Schedule != def.Audit.Schedule {
		t.Errorf("Expected default schedule, got %v", cfg.Audit.Schedule)
	}
	if !cfg.Audit.Enabled || !cfg.Orphans.Enabled || !cfg.Tokens.Enabled {
		t.Error("Expected all default jobs enabled")
	}
}

// TestLoadJanitorConfigInvalidRetention tests validation of duration fields
func TestLoadJanitorConfigInvalidRetention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := "audit:\n  enabled: true\n  retention: \"ninety days\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadJanitorConfig(path); err == nil {
		t.Error("Expected error for unparseable retention")
	}
}
