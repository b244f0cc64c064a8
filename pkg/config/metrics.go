package config

import (
	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/pkg/metrics"
	promMetrics "github.com/marmos91/dittowire/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// WireMetrics is the collector for the wire adapter and dispatcher
	// (never nil, uses noop if disabled)
	WireMetrics metrics.WireMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Server:      nil,
			WireMetrics: metrics.NewNoopWireMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		WireMetrics: promMetrics.NewWireMetrics(),
	}
}

// RegisterResourceMetrics exports buffer pool and executor occupancy when
// metrics are enabled. It must be called at most once per pool and executor.
func RegisterResourceMetrics(pool *bufpool.Pool, exec *executor.Executor) {
	promMetrics.RegisterBufferPool(pool)
	promMetrics.RegisterExecutor(exec)
}
