// Copyright 2026 The skillsd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/skillsd/skillsd/internal/permissions"
	"github.com/skillsd/skillsd/internal/secrets"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// DefaultListen is the address the daemon binds when none is configured.
// Loopback only; exposing the API beyond localhost is the operator's call.
const DefaultListen = "127.0.0.1:7077"

// Config represents the complete skillsd configuration.
type Config struct {
	Daemon      DaemonConfig               `yaml:"daemon"`
	Log         LogConfig                  `yaml:"log"`
	Idle        IdleConfig                 `yaml:"idle"`
	Tracing     TracingConfig              `yaml:"tracing"`
	History     HistoryConfig              `yaml:"history"`
	RateLimit   RateLimitConfig            `yaml:"rate_limit,omitempty"`
	Permissions permissions.Policy         `yaml:"permissions,omitempty"`
	Plugins     []PluginConfig             `yaml:"plugins,omitempty"`
	Connectors  map[string]ConnectorConfig `yaml:"connectors,omitempty"`
}

// DaemonConfig configures the daemon process itself.
type DaemonConfig struct {
	// Listen is the host:port the HTTP API binds to.
	// Environment: SKILLSD_LISTEN
	// Default: 127.0.0.1:7077
	Listen string `yaml:"listen"`

	// PIDFile is the single-instance lock file. Empty derives
	// <data_dir>/skillsd.pid.
	// Environment: SKILLSD_PID_FILE
	PIDFile string `yaml:"pid_file,omitempty"`

	// DataDir holds daemon state: the history database, plugin state and
	// the default log and PID files.
	// Environment: SKILLSD_DATA_DIR
	// Default: ~/.local/share/skillsd (respects XDG_DATA_HOME)
	DataDir string `yaml:"data_dir,omitempty"`

	// LogFile is where a detached daemon writes its log. Empty derives
	// <data_dir>/skillsd.log.
	// Environment: SKILLSD_LOG_FILE
	LogFile string `yaml:"log_file,omitempty"`

	// ShutdownTimeout bounds graceful shutdown: HTTP drain plus plugin
	// shutdown.
	// Environment: SKILLSD_SHUTDOWN_TIMEOUT
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: SKILLSD_LOG_LEVEL, LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// IdleConfig configures automatic shutdown after sustained inactivity.
type IdleConfig struct {
	// Enabled controls whether the daemon exits when idle.
	// Environment: SKILLSD_IDLE_ENABLED
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Timeout is the inactivity window after which the daemon shuts
	// itself down.
	// Environment: SKILLSD_IDLE_TIMEOUT
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`

	// CheckInterval is how often the idle monitor re-checks activity.
	// Environment: SKILLSD_IDLE_CHECK_INTERVAL
	// Default: 10s
	CheckInterval time.Duration `yaml:"check_interval,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled activates tracing.
	// Environment: SKILLSD_TRACING_ENABLED
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this daemon in traces.
	// Default: skillsd
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is the application version reported with spans.
	ServiceVersion string `yaml:"service_version,omitempty"`

	// SampleRate is the fraction of traces recorded (0.0 - 1.0). Zero
	// selects the default; use Enabled to turn tracing off entirely.
	// Default: 1.0
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// Endpoint is the OTLP gRPC receiver (host:port). Empty means no
	// export.
	// Environment: SKILLSD_TRACING_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `yaml:"insecure,omitempty"`

	// Headers are extra gRPC metadata sent to the exporter endpoint.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// HistoryConfig configures the operation audit trail.
type HistoryConfig struct {
	// Enabled controls whether executed operations are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database location. Empty derives
	// <data_dir>/history.db.
	// Environment: SKILLSD_HISTORY_PATH
	Path string `yaml:"path,omitempty"`

	// Retention is how long records are kept before pruning.
	// Environment: SKILLSD_HISTORY_RETENTION
	// Default: 168h (7 days)
	Retention time.Duration `yaml:"retention,omitempty"`
}

// RateLimitConfig describes a token bucket. It is used for both the
// inbound API limit and per-connector outbound limits.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate. Zero disables the
	// limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	// Burst is the bucket size. Zero lets the limiter pick one.
	Burst int `yaml:"burst,omitempty"`
}

// PluginConfig declares one plugin to load at startup.
type PluginConfig struct {
	// Name selects the bundled plugin ("jira", "confluence").
	Name string `yaml:"name"`

	// Connector names the connectors entry supplying transport settings.
	// Empty uses the entry matching the plugin name.
	Connector string `yaml:"connector,omitempty"`

	// Disabled keeps the plugin configured without loading it.
	Disabled bool `yaml:"disabled,omitempty"`
}

// ConnectorName returns the connectors map key this plugin reads its
// transport settings from.
func (p *PluginConfig) ConnectorName() string {
	if p.Connector != "" {
		return p.Connector
	}
	return p.Name
}

// ConnectorConfig supplies the transport settings for one connector.
type ConnectorConfig struct {
	// BaseURL is the service root (e.g. https://your-domain.atlassian.net).
	BaseURL string `yaml:"base_url"`

	// Auth configures request authentication.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// Timeout bounds a single outbound request. Zero selects the
	// transport default.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Headers are applied to every outbound request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// RateLimit caps the outbound request rate to the service.
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`

	// Breaker tunes the connector's circuit breaker. Zero values select
	// the breaker defaults.
	Breaker BreakerConfig `yaml:"breaker,omitempty"`
}

// AuthConfig configures connector authentication. Credential fields
// accept secret references ("env:NAME", "keychain:key", "store:key",
// "${NAME}") which ResolveSecrets replaces before the transport is built.
type AuthConfig struct {
	// Type is the authentication type: "bearer", "basic" or "api_key".
	// Empty means unauthenticated.
	Type string `yaml:"type,omitempty"`

	// Token is the bearer token (type: bearer).
	Token string `yaml:"token,omitempty"`

	// Username for basic auth (type: basic). For Jira this is the
	// Atlassian account email.
	Username string `yaml:"username,omitempty"`

	// Password for basic auth (type: basic). For Jira this is the API
	// token paired with the email.
	Password string `yaml:"password,omitempty"`

	// HeaderName is the header used for api_key auth (e.g. "X-API-Key").
	HeaderName string `yaml:"header_name,omitempty"`

	// HeaderValue is the api_key value.
	HeaderValue string `yaml:"header_value,omitempty"`
}

// BreakerConfig tunes a connector circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold,omitempty"`

	// ResetTimeout is how long the circuit stays open before admitting a
	// probe.
	// Default: 60s
	ResetTimeout time.Duration `yaml:"reset_timeout,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Listen:          DefaultListen,
			DataDir:         defaultDataDir(),
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
		Idle: IdleConfig{
			Enabled:       true,
			Timeout:       5 * time.Minute,
			CheckInterval: 10 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:     false, // Opt-in
			ServiceName: "skillsd",
			SampleRate:  1.0, // Sample all by default
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 7 * 24 * time.Hour,
		},
	}
}

// Load loads configuration from a YAML file and the environment.
// Environment variables take precedence over file-based configuration.
// If configPath is empty, only defaults and environment variables are
// used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Fill zero values so minimal configs work without every field.
	cfg.applyDefaults()

	// Override with environment variables
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithSecrets loads configuration and resolves all secret references
// in connector credentials. It returns the config and any warnings about
// plaintext credentials.
func LoadWithSecrets(ctx context.Context, configPath string, resolver *secrets.Registry) (*Config, []string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	warnings, err := cfg.ResolveSecrets(ctx, resolver)
	if err != nil {
		return nil, nil, err
	}

	return cfg, warnings, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills in zero values with sensible defaults. This allows
// minimal configs (e.g. just a connector) to work without specifying
// every field explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Daemon.Listen == "" {
		c.Daemon.Listen = defaults.Daemon.Listen
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = defaults.Daemon.DataDir
	}
	if c.Daemon.ShutdownTimeout == 0 {
		c.Daemon.ShutdownTimeout = defaults.Daemon.ShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Idle.Timeout == 0 {
		c.Idle.Timeout = defaults.Idle.Timeout
	}
	if c.Idle.CheckInterval == 0 {
		c.Idle.CheckInterval = defaults.Idle.CheckInterval
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = defaults.Tracing.SampleRate
	}

	if c.History.Retention == 0 {
		c.History.Retention = defaults.History.Retention
	}
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Daemon configuration
	if val := os.Getenv("SKILLSD_LISTEN"); val != "" {
		c.Daemon.Listen = val
	}
	if val := os.Getenv("SKILLSD_PID_FILE"); val != "" {
		c.Daemon.PIDFile = val
	}
	if val := os.Getenv("SKILLSD_DATA_DIR"); val != "" {
		c.Daemon.DataDir = val
	}
	if val := os.Getenv("SKILLSD_LOG_FILE"); val != "" {
		c.Daemon.LogFile = val
	}
	if val := os.Getenv("SKILLSD_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Daemon.ShutdownTimeout = duration
		}
	}

	// Log configuration
	if val := os.Getenv("SKILLSD_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	// Idle monitor configuration
	if val := os.Getenv("SKILLSD_IDLE_ENABLED"); val != "" {
		c.Idle.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SKILLSD_IDLE_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Idle.Timeout = duration
		}
	}
	if val := os.Getenv("SKILLSD_IDLE_CHECK_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Idle.CheckInterval = duration
		}
	}

	// Tracing configuration
	if val := os.Getenv("SKILLSD_TRACING_ENABLED"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SKILLSD_TRACING_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	if val := os.Getenv("SKILLSD_TRACING_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.Tracing.SampleRate = rate
		}
	}

	// History configuration
	if val := os.Getenv("SKILLSD_HISTORY_PATH"); val != "" {
		c.History.Path = val
	}
	if val := os.Getenv("SKILLSD_HISTORY_RETENTION"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.History.Retention = duration
		}
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	// Validate daemon configuration
	if c.Daemon.Listen == "" {
		errs = append(errs, "daemon.listen is required")
	} else if _, _, err := net.SplitHostPort(c.Daemon.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("daemon.listen must be host:port, got %q", c.Daemon.Listen))
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("daemon.shutdown_timeout must be positive, got %v", c.Daemon.ShutdownTimeout))
	}

	// Validate log configuration
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	// Validate idle monitor configuration
	if c.Idle.Enabled {
		if c.Idle.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("idle.timeout must be positive, got %v", c.Idle.Timeout))
		}
		if c.Idle.CheckInterval <= 0 {
			errs = append(errs, fmt.Sprintf("idle.check_interval must be positive, got %v", c.Idle.CheckInterval))
		}
	}

	// Validate tracing configuration
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate))
	}

	// Validate history configuration
	if c.History.Retention < 0 {
		errs = append(errs, fmt.Sprintf("history.retention must be non-negative, got %v", c.History.Retention))
	}

	// Validate inbound rate limit
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.requests_per_second must be non-negative, got %v", c.RateLimit.RequestsPerSecond))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.burst must be non-negative, got %d", c.RateLimit.Burst))
	}

	// Permission patterns must compile. An invalid pattern would fall
	// back to exact matching and could let a supposedly blocked
	// operation through.
	for _, pattern := range c.Permissions.Allowed {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("permissions.allowed pattern %q is not a valid glob", pattern))
		}
	}
	for _, pattern := range c.Permissions.Blocked {
		if !doublestar.ValidatePattern(strings.TrimPrefix(pattern, "!")) {
			errs = append(errs, fmt.Sprintf("permissions.blocked pattern %q is not a valid glob", pattern))
		}
	}

	// Validate plugin entries and their connector references
	seen := make(map[string]bool)
	for i, p := range c.Plugins {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("plugins[%d]: name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("plugins[%d]: duplicate plugin name %q", i, p.Name))
		}
		seen[p.Name] = true

		if p.Disabled {
			continue
		}
		if _, exists := c.Connectors[p.ConnectorName()]; !exists {
			errs = append(errs, fmt.Sprintf("plugins[%d] (%s): no connectors entry named %q", i, p.Name, p.ConnectorName()))
		}
	}

	// Validate each connector configuration
	for name, cc := range c.Connectors {
		if cc.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("connectors.%s: base_url is required", name))
		} else if u, err := url.Parse(cc.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("connectors.%s: base_url must be an absolute http(s) URL, got %q", name, cc.BaseURL))
		}

		switch cc.Auth.Type {
		case "", "bearer", "basic", "api_key":
		default:
			errs = append(errs, fmt.Sprintf("connectors.%s: auth.type must be one of [bearer, basic, api_key], got %q", name, cc.Auth.Type))
		}

		if cc.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("connectors.%s: timeout must be non-negative, got %v", name, cc.Timeout))
		}
		if cc.RateLimit.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Sprintf("connectors.%s: rate_limit.requests_per_second must be non-negative, got %v", name, cc.RateLimit.RequestsPerSecond))
		}
		if cc.Breaker.FailureThreshold < 0 {
			errs = append(errs, fmt.Sprintf("connectors.%s: breaker.failure_threshold must be non-negative, got %d", name, cc.Breaker.FailureThreshold))
		}
		if cc.Breaker.ResetTimeout < 0 {
			errs = append(errs, fmt.Sprintf("connectors.%s: breaker.reset_timeout must be non-negative, got %v", name, cc.Breaker.ResetTimeout))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// ResolveSecrets resolves secret references in connector credentials in
// place. It returns one warning per plaintext credential so operators can
// migrate to keychain or env references; warnings never fail the load.
func (c *Config) ResolveSecrets(ctx context.Context, resolver *secrets.Registry) ([]string, error) {
	var warnings []string

	for name, cc := range c.Connectors {
		resolve := func(field string, value *string, credential bool) error {
			if *value == "" {
				return nil
			}
			if !secrets.IsReference(*value) {
				// Plain usernames are expected; plain credentials get a
				// warning.
				if credential {
					warnings = append(warnings, fmt.Sprintf(
						"connectors.%s: %s is stored as plaintext; prefer a keychain:, store: or env: reference", name, field))
				}
				return nil
			}

			resolved, err := resolver.Resolve(ctx, *value)
			if err != nil {
				return fmt.Errorf("connectors.%s: %s: %w", name, field, err)
			}
			*value = resolved
			return nil
		}

		if err := resolve("auth.token", &cc.Auth.Token, true); err != nil {
			return nil, err
		}
		if err := resolve("auth.username", &cc.Auth.Username, false); err != nil {
			return nil, err
		}
		if err := resolve("auth.password", &cc.Auth.Password, true); err != nil {
			return nil, err
		}
		if err := resolve("auth.header_value", &cc.Auth.HeaderValue, true); err != nil {
			return nil, err
		}

		c.Connectors[name] = cc
	}

	return warnings, nil
}

// PIDFilePath returns the single-instance lock file location, deriving
// <data_dir>/skillsd.pid when none is configured.
func (c *DaemonConfig) PIDFilePath() string {
	if c.PIDFile != "" {
		return c.PIDFile
	}
	return filepath.Join(c.DataDir, "skillsd.pid")
}

// LogFilePath returns where a detached daemon writes its log, deriving
// <data_dir>/skillsd.log when none is configured.
func (c *DaemonConfig) LogFilePath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "skillsd.log")
}

// HistoryPath returns the operation history database location, deriving
// <data_dir>/history.db when none is configured.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Daemon.DataDir, "history.db")
}

// PluginStatePath returns the plugin state file location.
func (c *Config) PluginStatePath() string {
	return filepath.Join(c.Daemon.DataDir, "plugin-state.json")
}

// defaultDataDir returns the default data directory.
func defaultDataDir() string {
	// Use XDG_DATA_HOME if available
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "skillsd")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/skillsd-data"
	}

	return filepath.Join(homeDir, ".local", "share", "skillsd")
}
