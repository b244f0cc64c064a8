package config

import (
	"fmt"

	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/pkg/adapter"
	"github.com/marmos91/dittowire/pkg/adapter/wire"
	"github.com/marmos91/dittowire/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// This factory function centralizes adapter creation logic and makes it easy to:
//   - Add new protocol adapters
//   - Configure metrics for all adapters
//   - Share the buffer pool between adapters
//
// Parameters:
//   - cfg: The complete configuration
//   - pool: Shared buffer pool for connection I/O
//   - wireMetrics: Optional wire metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, pool *bufpool.Pool, wireMetrics metrics.WireMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Wire.Enabled {
		adapters = append(adapters, wire.New(cfg.Adapters.Wire, pool, wireMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
