// Package config provides YAML configuration loading and validation for the
// log viewer, plus the process-wide log directory setting.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for the log viewer.
type Config struct {
	// ListenAddr is the HTTP listen address. Defaults to ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// Enabled turns the viewer on or off. Defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// BasePath prefixes every viewer route (e.g. "/log-viewer"). It is
	// normalised to start with "/" and never end with one.
	BasePath string `yaml:"base_path"`

	// DefaultDirectory is the log directory in effect at startup. It can be
	// changed at runtime through the API.
	DefaultDirectory string `yaml:"default_directory"`

	// PollInterval is the per-session re-stat cadence. Defaults to 1s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Extensions lists the file suffixes shown in the file list. Defaults to
	// ".log" and ".txt".
	Extensions []string `yaml:"extensions"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// LogFile, when set, sends the service's own logs to a rotating file
	// instead of stderr.
	LogFile LogFileConfig `yaml:"log_file"`

	// Activity selects where session history is recorded.
	Activity ActivityConfig `yaml:"activity"`

	// AuditLog is the path of the hash-chained audit trail. Optional.
	AuditLog string `yaml:"audit_log"`

	Auth  AuthConfig  `yaml:"auth"`
	Watch WatchConfig `yaml:"watch"`
}

// LogFileConfig configures the rotating log writer.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ActivityConfig selects the session activity store.
type ActivityConfig struct {
	// Driver is one of "sqlite", "postgres", or "none". Defaults to "sqlite".
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection string for postgres.
	// Defaults to "logviewer.db" for sqlite.
	DSN string `yaml:"dsn"`
}

// AuthConfig enables bearer-token protection of the API.
type AuthConfig struct {
	// JWTPublicKeyPath is a PEM-encoded RSA public key. When empty the API is
	// unauthenticated.
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`
	Issuer           string `yaml:"issuer"`
	Audience         string `yaml:"audience"`
}

// WatchConfig tunes change detection.
type WatchConfig struct {
	// Notify enables filesystem notifications as early wake-ups between
	// polls. Defaults to true.
	Notify *bool `yaml:"notify"`
}

// IsEnabled reports whether the viewer should be served.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// NotifyEnabled reports whether filesystem notifications are used.
func (c *Config) NotifyEnabled() bool {
	return c.Watch.Notify == nil || *c.Watch.Notify
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validDrivers is the set of accepted activity store drivers.
var validDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"none":     true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	cfg.BasePath = NormalizeBasePath(cfg.BasePath)
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".log", ".txt"}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFile.MaxSizeMB == 0 {
		cfg.LogFile.MaxSizeMB = 100
	}
	if cfg.Activity.Driver == "" {
		cfg.Activity.Driver = "sqlite"
	}
	if cfg.Activity.Driver == "sqlite" && cfg.Activity.DSN == "" {
		cfg.Activity.DSN = "logviewer.db"
	}
}

// NormalizeBasePath adds a leading slash and strips trailing ones. An empty
// value yields "/log-viewer".
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/log-viewer"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// validate checks that enumerated fields contain only valid values and that
// dependent fields are present.
func validate(cfg *Config) error {
	var errs []error

	if cfg.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval %s must be positive", cfg.PollInterval))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if !validDrivers[cfg.Activity.Driver] {
		errs = append(errs, fmt.Errorf("activity.driver %q must be one of: sqlite, postgres, none", cfg.Activity.Driver))
	}
	if cfg.Activity.Driver == "postgres" && cfg.Activity.DSN == "" {
		errs = append(errs, errors.New("activity.dsn is required for the postgres driver"))
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("extensions[%d]: %q must start with a dot", i, ext))
		}
	}
	if cfg.LogFile.MaxSizeMB < 0 || cfg.LogFile.MaxBackups < 0 || cfg.LogFile.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log_file rotation limits must not be negative"))
	}
	if cfg.Auth.JWTPublicKeyPath == "" && (cfg.Auth.Issuer != "" || cfg.Auth.Audience != "") {
		errs = append(errs, errors.New("auth.jwt_public_key_path is required when issuer or audience is set"))
	}

	return errors.Join(errs...)
}
