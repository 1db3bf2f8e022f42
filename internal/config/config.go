// Package config loads the cleanroom CLI configuration file and its
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/vexxhost/migratekit-cleanroom/internal/database"
	"github.com/vexxhost/migratekit-cleanroom/internal/session"
	"github.com/vexxhost/migratekit-cleanroom/internal/status"
)

// DefaultFileName is looked up in the home directory when no path is given.
const DefaultFileName = ".cleanroom.yaml"

// Config is the whole configuration file
type Config struct {
	Server       ServerConfig            `yaml:"server"`
	Retry        RetryConfig             `yaml:"retry"`
	Readiness    ReadinessConfig         `yaml:"readiness"`
	Ledger       *database.MariaDBConfig `yaml:"ledger,omitempty"`
	StatusServer StatusServerConfig      `yaml:"status_server"`
	Endpoints    session.Endpoints       `yaml:"endpoints,omitempty"`
}

// ServerConfig points at the backup server REST API
type ServerConfig struct {
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	Insecure bool          `yaml:"insecure"`
}

// RetryConfig enables the retrying requester. Off by default.
type RetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	RetryMutations bool          `yaml:"retry_mutations"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
}

// ReadinessConfig selects how multi-bit not-ready categories are decoded
type ReadinessConfig struct {
	Decode string `yaml:"decode"`
}

// StatusServerConfig configures `cleanroom serve`
type StatusServerConfig struct {
	Listen          string   `yaml:"listen"`
	RefreshSchedule string   `yaml:"refresh_schedule"`
	Groups          []string `yaml:"groups"`
	Concurrency     int      `yaml:"concurrency"`
}

// Default returns a configuration with every optional field filled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Timeout: 60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    4 * time.Second,
		},
		Readiness: ReadinessConfig{Decode: status.DecodeBitmask.String()},
		StatusServer: StatusServerConfig{
			Listen:          ":8090",
			RefreshSchedule: "@every 60s",
			Concurrency:     4,
		},
	}
}

// DefaultPath is ~/.cleanroom.yaml, or the bare file name when HOME is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads path over the defaults and applies environment overrides. An
// empty path selects DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		log.WithField("path", path).Debug("Loaded configuration file")
	case os.IsNotExist(err) && !explicit:
		log.WithField("path", path).Debug("No configuration file, using defaults")
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes cfg as YAML, readable by the owner only since it holds the token.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.URL = GetEnvOrDefault("CLEANROOM_URL", c.Server.URL)
	c.Server.Token = GetEnvOrDefault("CLEANROOM_TOKEN", c.Server.Token)
	c.Server.Insecure = GetEnvAsBool("CLEANROOM_INSECURE", c.Server.Insecure)
	if secs := GetEnvAsInt("CLEANROOM_TIMEOUT_SECONDS", 0); secs > 0 {
		c.Server.Timeout = time.Duration(secs) * time.Second
	}

	c.Retry.Enabled = GetEnvAsBool("CLEANROOM_RETRY", c.Retry.Enabled)
	c.Retry.MaxAttempts = GetEnvAsInt("CLEANROOM_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Readiness.Decode = GetEnvOrDefault("CLEANROOM_READINESS_DECODE", c.Readiness.Decode)
	c.StatusServer.Listen = GetEnvOrDefault("CLEANROOM_STATUS_LISTEN", c.StatusServer.Listen)

	if host := os.Getenv("CLEANROOM_LEDGER_HOST"); host != "" {
		if c.Ledger == nil {
			c.Ledger = &database.MariaDBConfig{Port: 3306}
		}
		c.Ledger.Host = host
	}
	if c.Ledger != nil {
		c.Ledger.Port = GetEnvAsInt("CLEANROOM_LEDGER_PORT", c.Ledger.Port)
		c.Ledger.Database = GetEnvOrDefault("CLEANROOM_LEDGER_DATABASE", c.Ledger.Database)
		c.Ledger.Username = GetEnvOrDefault("CLEANROOM_LEDGER_USERNAME", c.Ledger.Username)
		c.Ledger.Password = GetEnvOrDefault("CLEANROOM_LEDGER_PASSWORD", c.Ledger.Password)
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required (or set CLEANROOM_URL)")
	}
	if _, err := c.DecodeStrategy(); err != nil {
		return err
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Ledger != nil {
		if err := c.Ledger.Validate(); err != nil {
			return fmt.Errorf("invalid ledger config: %w", err)
		}
	}
	return nil
}

func (c *Config) DecodeStrategy() (status.DecodeStrategy, error) {
	return status.ParseDecodeStrategy(c.Readiness.Decode)
}

func (c *Config) SessionOptions() session.Options {
	return session.Options{
		BaseURL:  c.Server.URL,
		Token:    c.Server.Token,
		Timeout:  c.Server.Timeout,
		Insecure: c.Server.Insecure,
	}
}

func (c *Config) RetryPolicy() session.RetryPolicy {
	return session.RetryPolicy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		MaxDelay:       c.Retry.MaxDelay,
		RetryMutations: c.Retry.RetryMutations,
		RateLimit:      c.Retry.RateLimit,
		Burst:          c.Retry.Burst,
	}
}

// Environment variable helpers

// GetEnvOrDefault gets environment variable with default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets environment variable as integer
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsBool gets environment variable as boolean
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}
