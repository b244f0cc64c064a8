package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittowire/pkg/adapter/wire"
)

// Config represents the complete DittoWire configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - Buffer pool sizing
//   - Executor concurrency
//   - Protocol adapter configurations
//   - Demo handler selection and handler-specific options
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOWIRE_*)
//  2. Configuration file (YAML, TOML or JSON)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// BufferPool sizes the shared pool used for connection reads and writes
	BufferPool BufferPoolConfig `mapstructure:"buffer_pool" yaml:"buffer_pool"`

	// Executor bounds concurrent handler execution
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`

	// Handlers selects the routes registered at startup
	Handlers HandlersConfig `mapstructure:"handlers" yaml:"handlers"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns metrics collection and the HTTP endpoint on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// BufferPoolConfig sizes the shared buffer pool.
//
// Every read cycle borrows one buffer of BufferSize bytes, and so does every
// response that fits in one. At most MaxPoolSize buffers are ever created;
// past that, one-off buffers are allocated and dropped after use.
type BufferPoolConfig struct {
	BufferSize  int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"required,gt=0"`
	MinPoolSize int `mapstructure:"min_pool_size" yaml:"min_pool_size" validate:"min=0,ltefield=MaxPoolSize"`
	MaxPoolSize int `mapstructure:"max_pool_size" yaml:"max_pool_size" validate:"required,gt=0"`
}

// ExecutorConfig bounds handler concurrency.
type ExecutorConfig struct {
	// MaxConcurrentTasks is the number of handlers that may run at once.
	// Further requests wait for a permit; submission itself never blocks.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks" validate:"required,gt=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Wire contains the binary request/response protocol configuration.
	// Uses the wire.WireConfig type directly to avoid duplication.
	Wire wire.WireConfig `mapstructure:"wire" yaml:"wire"`
}

// HandlersConfig selects the demo routes.
type HandlersConfig struct {
	Hello HelloHandlerConfig `mapstructure:"hello" yaml:"hello"`
	Delay DelayHandlerConfig `mapstructure:"delay" yaml:"delay"`
	KV    KVHandlerConfig    `mapstructure:"kv" yaml:"kv"`
}

// HelloHandlerConfig configures /hello.
type HelloHandlerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DelayHandlerConfig configures /delay.
type DelayHandlerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxDelay clamps the Delay header
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"min=0"`
}

// KVHandlerConfig configures /kv.
//
// Options are decoded by the handler itself (db_path, block_cache_size_mb,
// index_cache_size_mb), mirroring how store-specific sections are kept as
// free-form maps.
type KVHandlerConfig struct {
	Enabled bool           `mapstructure:"enabled" yaml:"enabled"`
	Options map[string]any `mapstructure:"options" yaml:"options"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOWIRE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTOWIRE_ prefix and underscores
	// Example: DITTOWIRE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about, so bind
	// the scalar keys explicitly to make env-only configuration work.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/dittowire/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the settings that can be supplied through the environment
// without appearing in the configuration file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"buffer_pool.buffer_size",
	"buffer_pool.min_pool_size",
	"buffer_pool.max_pool_size",
	"executor.max_concurrent_tasks",
	"adapters.wire.enabled",
	"adapters.wire.bind_address",
	"adapters.wire.port",
	"adapters.wire.max_connections",
	"adapters.wire.max_frame_size",
	"adapters.wire.shutdown_timeout",
	"handlers.delay.max_delay",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittowire")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittowire")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
