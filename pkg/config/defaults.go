package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittowire/internal/handlers"
	"github.com/marmos91/dittowire/pkg/adapter/wire"
	"github.com/marmos91/dittowire/pkg/protocol"
)

// DefaultWirePort is the port the wire adapter listens on when none is configured.
const DefaultWirePort = 9998

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Handler-specific option maps are interpreted by the handlers themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyBufferPoolDefaults(&cfg.BufferPool)
	applyExecutorDefaults(&cfg.Executor)
	applyAdaptersDefaults(&cfg.Adapters)
	applyHandlersDefaults(&cfg.Handlers)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyBufferPoolDefaults sizes the pool for small demo frames.
//
// 4KB holds the 8-byte prefix plus typical request sections, so most reads
// and responses never fall back to one-off buffers.
func applyBufferPoolDefaults(cfg *BufferPoolConfig) {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4096
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 1024
	}
	if cfg.MinPoolSize == 0 && cfg.MaxPoolSize >= 16 {
		cfg.MinPoolSize = 16
	}
}

// applyExecutorDefaults sets executor defaults.
func applyExecutorDefaults(cfg *ExecutorConfig) {
	if cfg.MaxConcurrentTasks == 0 {
		cfg.MaxConcurrentTasks = 1000
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the wire adapter by default if it looks unconfigured (port 0).
	// This ensures that a freshly loaded config (with no config file) will have
	// at least one adapter enabled and pass validation.
	// Users can explicitly set enabled: false in their config to disable it.
	if !cfg.Wire.Enabled && cfg.Wire.Port == 0 {
		cfg.Wire.Enabled = true
	}

	applyWireDefaults(&cfg.Wire)
}

// applyWireDefaults sets wire adapter defaults.
func applyWireDefaults(cfg *wire.WireConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultWirePort
	}

	// MaxConnections defaults to 0 (unlimited)

	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if cfg.Timeouts.Read == 0 {
		cfg.Timeouts.Read = 30 * time.Second
	}
	if cfg.Timeouts.Write == 0 {
		cfg.Timeouts.Write = 30 * time.Second
	}
	if cfg.Timeouts.Idle == 0 {
		cfg.Timeouts.Idle = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}

	// Rate limits default to 0 (admission limiting disabled)
}

// applyHandlersDefaults enables the demo routes when none is selected.
func applyHandlersDefaults(cfg *HandlersConfig) {
	if !cfg.Hello.Enabled && !cfg.Delay.Enabled && !cfg.KV.Enabled {
		cfg.Hello.Enabled = true
		cfg.Delay.Enabled = true
	}

	if cfg.Delay.MaxDelay == 0 {
		cfg.Delay.MaxDelay = handlers.DefaultMaxDelay
	}

	if cfg.KV.Options == nil {
		cfg.KV.Options = make(map[string]any)
	}
	// Empty db_path keeps the store in memory
	if _, ok := cfg.KV.Options["db_path"]; !ok {
		cfg.KV.Options["db_path"] = ""
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Wire: wire.WireConfig{
				Enabled: true, // wire adapter enabled by default
			},
		},
		Handlers: HandlersConfig{
			Hello: HelloHandlerConfig{Enabled: true},
			Delay: DelayHandlerConfig{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
