// Package config provides configuration loading and management for the
// Pixels backend supervisor.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pixels-app/pixels-supervisor/internal/backend"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
	"github.com/pixels-app/pixels-supervisor/internal/supervisor"
	"github.com/pixels-app/pixels-supervisor/internal/telemetry"
)

// EnvPrefix is the environment variable prefix for supervisor settings
const EnvPrefix = "PIXELS_SUPERVISOR"

// Duration wraps time.Duration for YAML parsing ("1s", "500ms", "2m").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure.
type Config struct {
	// Backend describes how to launch and reach the supervised process
	Backend BackendConfig `yaml:"backend"`

	// Supervisor holds the restart/health tunables
	Supervisor SupervisorConfig `yaml:"supervisor,omitempty"`

	// Lifecycle holds the intent-debouncing tunables
	Lifecycle LifecycleConfig `yaml:"lifecycle,omitempty"`

	// Server configures the host-facing HTTP surface
	Server ServerConfig `yaml:"server,omitempty"`

	// Telemetry configures metrics export
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// BackendConfig describes the supervised backend process.
type BackendConfig struct {
	// Command is the backend executable
	Command string `yaml:"command"`

	// Args are passed to the executable
	Args []string `yaml:"args,omitempty"`

	// HealthURL is the backend health endpoint
	HealthURL string `yaml:"healthUrl"`

	// ProbeTimeout bounds a single health probe
	ProbeTimeout Duration `yaml:"probeTimeout,omitempty"`

	// StopTimeout bounds graceful termination before forced kill
	StopTimeout Duration `yaml:"stopTimeout,omitempty"`
}

// SupervisorConfig holds restart and health-check tunables.
type SupervisorConfig struct {
	// BaseDelay is the first restart delay after a failure
	BaseDelay Duration `yaml:"baseDelay,omitempty"`

	// MaxDelay caps the restart delay
	MaxDelay Duration `yaml:"maxDelay,omitempty"`

	// MaxRetries bounds consecutive failures before giving up
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// StartTimeout bounds how long a start attempt may stay in Starting
	StartTimeout Duration `yaml:"startTimeout,omitempty"`

	// HealthCheckInterval is the steady-state probe interval
	HealthCheckInterval Duration `yaml:"healthCheckInterval,omitempty"`
}

// LifecycleConfig holds intent-debouncing tunables.
type LifecycleConfig struct {
	// BackgroundGracePeriod is how long the app may stay backgrounded
	// before the backend is stopped
	BackgroundGracePeriod Duration `yaml:"backgroundGracePeriod,omitempty"`
}

// ServerConfig configures the host-facing HTTP surface.
type ServerConfig struct {
	// Address to listen on, defaults to ":8081"
	Address string `yaml:"address,omitempty"`
}

// DefaultServerAddress is where the host-facing HTTP surface listens when not
// configured.
const DefaultServerAddress = ":8081"

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	if c.Backend.Command == "" {
		return fmt.Errorf("backend.command is required")
	}
	if c.Backend.HealthURL == "" {
		return fmt.Errorf("backend.healthUrl is required")
	}
	u, err := url.Parse(c.Backend.HealthURL)
	if err != nil {
		return fmt.Errorf("backend.healthUrl is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.healthUrl must be http or https, got %q", u.Scheme)
	}
	if c.Supervisor.MaxRetries < 0 {
		return fmt.Errorf("supervisor.maxRetries must not be negative")
	}
	for name, d := range map[string]Duration{
		"backend.probeTimeout":            c.Backend.ProbeTimeout,
		"backend.stopTimeout":             c.Backend.StopTimeout,
		"supervisor.baseDelay":            c.Supervisor.BaseDelay,
		"supervisor.maxDelay":             c.Supervisor.MaxDelay,
		"supervisor.startTimeout":         c.Supervisor.StartTimeout,
		"supervisor.healthCheckInterval":  c.Supervisor.HealthCheckInterval,
		"lifecycle.backgroundGracePeriod": c.Lifecycle.BackgroundGracePeriod,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Supervisor.MaxDelay > 0 && c.Supervisor.BaseDelay > c.Supervisor.MaxDelay {
		return fmt.Errorf("supervisor.baseDelay must not exceed supervisor.maxDelay")
	}
	return nil
}

// ProcessConfig maps the backend section onto the process controller config.
func (c *Config) ProcessConfig() backend.ProcessConfig {
	return backend.ProcessConfig{
		Command:      c.Backend.Command,
		Args:         c.Backend.Args,
		HealthURL:    c.Backend.HealthURL,
		ProbeTimeout: c.Backend.ProbeTimeout.Std(),
		StopTimeout:  c.Backend.StopTimeout.Std(),
	}
}

// SupervisorSettings maps the supervisor section onto the supervisor config.
// Zero values fall back to the supervisor package defaults.
func (c *Config) SupervisorSettings() supervisor.Config {
	return supervisor.Config{
		BaseDelay:           c.Supervisor.BaseDelay.Std(),
		MaxDelay:            c.Supervisor.MaxDelay.Std(),
		MaxRetries:          c.Supervisor.MaxRetries,
		StartTimeout:        c.Supervisor.StartTimeout.Std(),
		HealthCheckInterval: c.Supervisor.HealthCheckInterval.Std(),
	}
}

// GracePeriod returns the background grace period, falling back to the
// lifecycle package default.
func (c *Config) GracePeriod() time.Duration {
	if c.Lifecycle.BackgroundGracePeriod == 0 {
		return lifecycle.DefaultBackgroundGracePeriod
	}
	return c.Lifecycle.BackgroundGracePeriod.Std()
}

// ServerAddress returns the configured listen address or the default.
func (c *Config) ServerAddress() string {
	if c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// Option defines the interface for configuration loader options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Load reads, parses and validates a configuration.
func Load(opts ...Option) (*Config, error) {
	lc := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(lc); err != nil {
			return nil, err
		}
	}
	if lc.path == "" {
		return nil, fmt.Errorf("no configuration source provided")
	}

	data, err := os.ReadFile(lc.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
