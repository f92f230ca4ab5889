// ABOUTME: Configuration loading and parsing for the agentpool service
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/agentpool/internal/auth"
)

// Defaults applied when a field is left empty.
const (
	DefaultReloadDebounce  = 250 * time.Millisecond
	DefaultAttemptWindow   = 5 * time.Minute
	DefaultAttemptCapacity = 10000
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config represents the complete agentpool configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Agents   AgentsConfig   `yaml:"agents"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty JWTSecret leaves
// the admin endpoints open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AgentsConfig holds the agent definitions source and reload behavior
type AgentsConfig struct {
	// File is the TOML agent definitions file. Relative paths are resolved
	// against the directory of the config file.
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`

	// AttemptCapacity bounds how many agents have failed logins tracked at once.
	AttemptCapacity int `yaml:"attempt_capacity"`

	ReloadDebounce time.Duration `yaml:"-"`
	AttemptWindow  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReloadDebounceRaw string `yaml:"reload_debounce"`
	AttemptWindowRaw  string `yaml:"attempt_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.Agents.File != "" && !filepath.IsAbs(cfg.Agents.File) {
		cfg.Agents.File = filepath.Join(filepath.Dir(path), cfg.Agents.File)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Agents.ReloadDebounce == 0 {
		cfg.Agents.ReloadDebounce = DefaultReloadDebounce
	}
	if cfg.Agents.AttemptWindow == 0 {
		cfg.Agents.AttemptWindow = DefaultAttemptWindow
	}
	if cfg.Agents.AttemptCapacity == 0 {
		cfg.Agents.AttemptCapacity = DefaultAttemptCapacity
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Agents.File == "" {
		return fmt.Errorf("agents.file is required")
	}

	if c.Auth.JWTSecret != "" {
		if err := auth.ValidateSecret(c.Auth.JWTSecret); err != nil {
			return fmt.Errorf("auth.jwt_secret: %w", err)
		}
	}

	if c.Agents.ReloadDebounce < 0 {
		return fmt.Errorf("agents.reload_debounce must not be negative")
	}
	if c.Agents.AttemptWindow < 0 {
		return fmt.Errorf("agents.attempt_window must not be negative")
	}
	if c.Agents.AttemptCapacity < 0 {
		return fmt.Errorf("agents.attempt_capacity must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.ReloadDebounceRaw != "" {
		cfg.Agents.ReloadDebounce, err = time.ParseDuration(cfg.Agents.ReloadDebounceRaw)
		if err != nil {
			return fmt.Errorf("parsing reload_debounce %q: %w", cfg.Agents.ReloadDebounceRaw, err)
		}
	}

	if cfg.Agents.AttemptWindowRaw != "" {
		cfg.Agents.AttemptWindow, err = time.ParseDuration(cfg.Agents.AttemptWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing attempt_window %q: %w", cfg.Agents.AttemptWindowRaw, err)
		}
	}

	return nil
}
