package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/lotlens/internal/batch"
	"github.com/MeKo-Tech/lotlens/internal/browse"
	"github.com/MeKo-Tech/lotlens/internal/processor"
	"github.com/MeKo-Tech/lotlens/internal/thumbnail"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	proc := processor.DefaultConfig()
	thumb := thumbnail.DefaultOptions()
	batchDefaults := batch.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxUploadMB:       100,
			TimeoutSec:        330,
			ShutdownTimeout:   10,
			RateLimitEnabled:  false,
			RequestsPerMinute: 30,
			RequestsPerHour:   600,
			MaxRequestsPerDay: 5000,
			MaxDataPerDayMB:   2048,
		},
		Processor: ProcessorConfig{
			Command:       proc.Command,
			Args:          slices.Clone(proc.Args),
			TimeoutSec:    int(proc.Timeout / time.Second),
			MaxConcurrent: proc.MaxConcurrent,
			WorkDir:       ".",
		},
		Storage: StorageConfig{
			StagingDir: "input",
			PublicDir:  "public",
		},
		Browse: BrowseConfig{
			MaxInitial:       browse.DefaultMaxInitial,
			MaxBatch:         browse.DefaultMaxBatch,
			SessionCacheSize: 256,
		},
		Thumbnail: ThumbnailConfig{
			MaxWidth:  thumb.MaxWidth,
			MaxHeight: thumb.MaxHeight,
		},
		Batch: BatchConfig{
			Workers:         batchDefaults.Workers,
			IncludePatterns: batchDefaults.IncludePatterns,
			ExcludePatterns: []string{},
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RequestsPerMinute <= 0 || c.Server.RequestsPerHour <= 0 {
			return fmt.Errorf("invalid rate limit: %d/min, %d/hour (must be positive)",
				c.Server.RequestsPerMinute, c.Server.RequestsPerHour)
		}
	}

	if strings.TrimSpace(c.Processor.Command) == "" {
		return fmt.Errorf("processor command must not be empty")
	}
	if c.Processor.TimeoutSec < 0 {
		return fmt.Errorf("invalid processor timeout: %d (must not be negative)", c.Processor.TimeoutSec)
	}
	if c.Processor.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid processor max concurrent: %d (must be positive)", c.Processor.MaxConcurrent)
	}

	if c.Storage.StagingDir == "" {
		return fmt.Errorf("storage staging dir must not be empty")
	}
	if c.Storage.PublicDir == "" {
		return fmt.Errorf("storage public dir must not be empty")
	}

	if c.Browse.MaxInitial <= 0 || c.Browse.MaxBatch <= 0 {
		return fmt.Errorf("invalid browse limits: initial=%d batch=%d (must be positive)",
			c.Browse.MaxInitial, c.Browse.MaxBatch)
	}
	if c.Browse.SessionCacheSize <= 0 {
		return fmt.Errorf("invalid session cache size: %d (must be positive)", c.Browse.SessionCacheSize)
	}

	if c.Thumbnail.MaxWidth <= 0 || c.Thumbnail.MaxHeight <= 0 {
		return fmt.Errorf("invalid thumbnail size: %dx%d (must be positive)", c.Thumbnail.MaxWidth, c.Thumbnail.MaxHeight)
	}

	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch workers: %d (must be non-negative)", c.Batch.Workers)
	}

	return nil
}

// ToProcessorConfig converts the processor section into a runner configuration.
func (c *Config) ToProcessorConfig() processor.Config {
	return processor.Config{
		Command:       c.Processor.Command,
		Args:          slices.Clone(c.Processor.Args),
		Dir:           c.Processor.WorkDir,
		Timeout:       time.Duration(c.Processor.TimeoutSec) * time.Second,
		MaxConcurrent: c.Processor.MaxConcurrent,
	}
}

// ToBatchConfig converts the batch section. Per-run switches such as
// recursion are left to the caller.
func (c *Config) ToBatchConfig() batch.Config {
	return batch.Config{
		Workers:         c.Batch.Workers,
		IncludePatterns: slices.Clone(c.Batch.IncludePatterns),
		ExcludePatterns: slices.Clone(c.Batch.ExcludePatterns),
	}
}

// ToThumbnailOptions converts the thumbnail section.
func (c *Config) ToThumbnailOptions() thumbnail.Options {
	return thumbnail.Options{MaxWidth: c.Thumbnail.MaxWidth, MaxHeight: c.Thumbnail.MaxHeight}
}

// RequestTimeout is the per-request HTTP deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSec) * time.Second
}

// MaxUploadBytes is the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
