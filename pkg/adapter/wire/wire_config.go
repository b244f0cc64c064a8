package wire

import (
	"fmt"
	"time"

	"github.com/marmos91/dittowire/pkg/protocol"
)

// WireConfig holds configuration parameters for the wire protocol server.
//
// These values control server behavior including connection limits, frame
// limits, timeouts and admission rate limiting. All timeout values are
// optional - zero means no timeout.
//
// Default values (applied by New if zero):
//   - MaxConnections: 0 (unlimited)
//   - MaxFrameSize: 1MB
//   - Timeouts.Read: 30s
//   - Timeouts.Write: 30s
//   - Timeouts.Idle: 5m
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m (0 disables)
//
// Port 0 asks the OS for an ephemeral port; Port() reports the bound port
// once Ready() is closed.
type WireConfig struct {
	// Enabled controls whether the wire adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the local address to listen on. Empty means all
	// interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits the number of concurrent client connections.
	// When reached, the accept loop pauses until a connection closes;
	// pending clients wait in the kernel backlog.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxFrameSize bounds headerLength+bodyLength of a request. Frames that
	// declare more are rejected before any payload allocation and the
	// connection is closed.
	MaxFrameSize int `mapstructure:"max_frame_size" yaml:"max_frame_size" validate:"min=0"`

	// Timeouts groups per-connection I/O deadlines.
	Timeouts WireTimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// RateLimit configures connection admission.
	RateLimit WireRateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to finish their current request during graceful shutdown.
	// After this timeout, remaining connections are forcibly closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which connection and buffer pool
	// statistics are logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// WireTimeoutsConfig groups connection deadlines.
type WireTimeoutsConfig struct {
	// Read bounds the time to receive the rest of a frame once its first
	// byte has arrived. Slow-loris peers are cut off by this deadline.
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write bounds the time to write one response.
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Idle bounds the time a connection may wait for the first byte of its
	// next request.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" validate:"min=0"`
}

// WireRateLimitConfig configures token buckets applied to newly accepted
// connections. Zero rates disable the corresponding bucket.
type WireRateLimitConfig struct {
	ConnectionsPerSecond uint `mapstructure:"connections_per_second" yaml:"connections_per_second"`
	Burst                uint `mapstructure:"burst" yaml:"burst"`
	PerClientPerSecond   uint `mapstructure:"per_client_per_second" yaml:"per_client_per_second"`
	PerClientBurst       uint `mapstructure:"per_client_burst" yaml:"per_client_burst"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *WireConfig) applyDefaults() {
	// Note: Enabled and Port defaults are handled in pkg/config/defaults.go
	// to allow explicit false values and ephemeral ports.

	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 30 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// validate checks that the configuration is usable.
func (c *WireConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("invalid MaxFrameSize %d: must be >= 0", c.MaxFrameSize)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid timeouts %+v: must be >= 0", c.Timeouts)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("invalid MetricsLogInterval %v: must be >= 0", c.MetricsLogInterval)
	}
	return nil
}
