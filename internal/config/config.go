// Package config loads the cleaner's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/artifactory"
	"github.com/fentz26/artifactory-cleaner/internal/discovery"
	"github.com/fentz26/artifactory-cleaner/internal/logging"
	"github.com/fentz26/artifactory-cleaner/internal/objectstore"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvEndpoint = "ARTIFACTORY_CLEANER_ENDPOINT"
	EnvAPIKey   = "ARTIFACTORY_CLEANER_API_KEY"
)

// Config holds the cleaner configuration.
type Config struct {
	// Endpoint is the Artifactory base URL, e.g. https://host/artifactory.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates requests.
	APIKey string `yaml:"api-key"`

	HTTP          HTTPConfig         `yaml:"http"`
	Discovery     discovery.Config   `yaml:"discovery"`
	Log           logging.Config     `yaml:"log"`
	Ledger        LedgerConfig       `yaml:"ledger"`
	ArchiveMirror objectstore.Config `yaml:"archive_mirror"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// HTTPConfig tunes the Artifactory client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond paces requests to the server; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LedgerConfig locates the audit ledger database.
type LedgerConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// MetricsConfig controls the metrics textfile written after each run.
type MetricsConfig struct {
	// Textfile is a path for the node exporter textfile collector. Empty
	// disables it.
	Textfile string `yaml:"textfile"`
}

// Dir returns the cleaner's home directory, ~/.artifactory-cleaner.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".artifactory-cleaner"
	}
	return filepath.Join(home, ".artifactory-cleaner")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:           60 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Discovery: *discovery.DefaultConfig(),
		Log:       logging.DefaultConfig(),
		Ledger: LedgerConfig{
			Path: filepath.Join(Dir(), "ledger.db"),
		},
	}
}

// Load reads the configuration at path. A missing file yields defaults.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides the endpoint and API key from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		c.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
}

// Validate checks that the configuration is usable. The endpoint is not
// required here since it may still come from a flag; see RequireEndpoint.
func (c *Config) Validate() error {
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must not be negative")
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if !c.Ledger.Disabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required unless ledger.disabled is set")
	}
	return c.ArchiveMirror.Validate()
}

// RequireEndpoint fails when no endpoint was configured.
func (c *Config) RequireEndpoint() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("no Artifactory endpoint configured: set endpoint in %s, %s, or pass --endpoint", DefaultPath(), EnvEndpoint)
	}
	return nil
}

// ClientConfig returns the settings for the Artifactory client.
func (c *Config) ClientConfig() artifactory.ClientConfig {
	return artifactory.ClientConfig{
		Endpoint:          c.Endpoint,
		APIKey:            c.APIKey,
		Timeout:           c.HTTP.Timeout,
		RequestsPerSecond: c.HTTP.RequestsPerSecond,
		Burst:             c.HTTP.Burst,
	}
}

// Save writes cfg to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
