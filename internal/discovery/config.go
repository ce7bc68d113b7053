// Package discovery finds artifacts on the remote service: it issues
// date-ranged searches and resolves every hit with a bounded pool of workers.
package discovery

import (
	"fmt"
	"time"
)

// Config defines the discovery configuration.
type Config struct {
	// Concurrency is the maximum number of resolutions in flight.
	Concurrency int `yaml:"concurrency"`
	// MaxAttempts bounds the attempts per remote call.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryDelay is the fixed wait after a transient connection failure.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// ChunkDays is the width of each search window when iterating a range.
	ChunkDays int `yaml:"chunk_days"`
}

// DefaultConfig returns the default discovery configuration.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 4,
		MaxAttempts: 10,
		RetryDelay:  10 * time.Second,
		ChunkDays:   30,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("discovery.concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("discovery.max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("discovery.retry_delay must not be negative, got %s", c.RetryDelay)
	}
	if c.ChunkDays < 1 {
		return fmt.Errorf("discovery.chunk_days must be at least 1, got %d", c.ChunkDays)
	}
	return nil
}

// ChunkSize returns ChunkDays as a duration.
func (c *Config) ChunkSize() time.Duration {
	return time.Duration(c.ChunkDays) * 24 * time.Hour
}
