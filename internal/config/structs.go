//nolint:lll
package config

// Config represents the complete configuration for the lotlens service.
// It covers the serve and process commands and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// External processor invocation
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor" json:"processor"`

	// Staging and published asset locations
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Result browsing sessions
	Browse BrowseConfig `mapstructure:"browse" yaml:"browse" json:"browse"`

	// Preview rendering
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail" yaml:"thumbnail" json:"thumbnail"`

	// Batch command settings
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitEnabled  bool   `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int    `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int    `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64  `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// ProcessorConfig describes how the external processing program is launched.
type ProcessorConfig struct {
	Command       string   `mapstructure:"command" yaml:"command" json:"command"`
	Args          []string `mapstructure:"args" yaml:"args" json:"args"`
	TimeoutSec    int      `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxConcurrent int      `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`
	WorkDir       string   `mapstructure:"work_dir" yaml:"work_dir" json:"work_dir"`
}

// StorageConfig contains filesystem locations.
type StorageConfig struct {
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir" json:"staging_dir"`
	PublicDir  string `mapstructure:"public_dir" yaml:"public_dir" json:"public_dir"`
}

// BrowseConfig bounds the browsing carousels.
type BrowseConfig struct {
	MaxInitial       int `mapstructure:"max_initial" yaml:"max_initial" json:"max_initial"`
	MaxBatch         int `mapstructure:"max_batch" yaml:"max_batch" json:"max_batch"`
	SessionCacheSize int `mapstructure:"session_cache_size" yaml:"session_cache_size" json:"session_cache_size"`
}

// ThumbnailConfig contains preview size limits.
type ThumbnailConfig struct {
	MaxWidth  int `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	MaxHeight int `mapstructure:"max_height" yaml:"max_height" json:"max_height"`
}

// BatchConfig contains settings for the batch command.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	IncludePatterns []string `mapstructure:"include" yaml:"include" json:"include"`
	ExcludePatterns []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}
