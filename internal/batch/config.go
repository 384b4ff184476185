package batch

import (
	"fmt"
	"runtime"
)

// DefaultIncludePatterns matches the uploads the processor accepts.
var DefaultIncludePatterns = []string{"*.zip", "*.jpg", "*.jpeg", "*.png", "*.bmp", "*.webp"}

// Config holds all configuration for batch processing.
type Config struct {
	// Workers bounds how many files are in flight at once. The processor's
	// own concurrency limit still applies underneath.
	Workers int

	// Additional submits every file as a supplementary batch.
	Additional bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// StopOnError cancels the remaining files after the first failure.
	StopOnError bool
}

// DefaultConfig returns a config with defaults applied.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		IncludePatterns: append([]string(nil), DefaultIncludePatterns...),
	}
}

// Validate checks the config for obvious mistakes.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}
