package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// JanitorConfig configures the background maintenance jobs. It is read
// from a YAML file so schedules can be tuned without a redeploy.
type JanitorConfig struct {
	Version string    `yaml:"version"`
	Audit   AuditJob  `yaml:"audit"`
	Orphans OrphanJob `yaml:"orphans"`
	Tokens  TokenJob  `yaml:"tokens"`
}

// AuditJob configures audit log pruning
type AuditJob struct {
	Enabled   bool   `yaml:"enabled"`
	Schedule  string `yaml:"schedule"`
	Retention string `yaml:"retention"`
}

// OrphanJob configures the orphaned permission row sweep
type OrphanJob struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// TokenJob configures expired API token cleanup
type TokenJob struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	// Grace keeps expired tokens around for audit correlation
	Grace string `yaml:"grace"`
}

// DefaultJanitorConfig returns the default maintenance schedule
func DefaultJanitorConfig() *JanitorConfig {
	return &JanitorConfig{
		Version: "v1",
		Audit: AuditJob{
			Enabled:   true,
			Schedule:  "0 3 * * *",
			Retention: "2160h",
		},
		Orphans: OrphanJob{
			Enabled:  true,
			Schedule: "*/30 * * * *",
		},
		Tokens: TokenJob{
			Enabled:  true,
			Schedule: "0 4 * * *",
			Grace:    "168h",
		},
	}
}

// LoadJanitorConfig loads janitor configuration from a file
func LoadJanitorConfig(path string) (*JanitorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultJanitorConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse janitor config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadJanitorConfigFromDir searches for a janitor config file in directory
func LoadJanitorConfigFromDir(dir string) (*JanitorConfig, error) {
	configNames := []string{"steward-janitor.yaml", "steward-janitor.yml", ".steward-janitor.yaml"}

	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadJanitorConfig(path)
		}
	}

	return DefaultJanitorConfig(), nil
}

// Validate checks the duration fields parse
func (c *JanitorConfig) Validate() error {
	if c.Audit.Enabled {
		if _, err := time.ParseDuration(c.Audit.Retention); err != nil {
			return fmt.Errorf("invalid audit retention %q: %w", c.Audit.Retention, err)
		}
	}
	if c.Tokens.Enabled && c.Tokens.Grace != "" {
		if _, err := time.ParseDuration(c.Tokens.Grace); err != nil {
			return fmt.Errorf("invalid token grace %q: %w", c.Tokens.Grace, err)
		}
	}
	return nil
}

// AuditRetention returns the parsed audit retention duration
func (c *JanitorConfig) AuditRetention() time.Duration {
	d, err := time.ParseDuration(c.Audit.Retention)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return d
}

// TokenGrace returns the parsed token cleanup grace duration
func (c *JanitorConfig) TokenGrace() time.Duration {
	if c.Tokens.Grace == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Tokens.Grace)
	if err != nil {
		return 0
	}
	return d
}
