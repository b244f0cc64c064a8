package adapter

import (
	"context"

	"github.com/marmos91/dittowire/pkg/dispatch"
)

// Adapter represents a protocol-specific server adapter that can be managed
// by the server orchestrator.
//
// Each adapter owns a listener and the connections accepted on it, and hands
// decoded requests to the shared dispatcher. Several adapters (for example
// on different ports or interfaces) can share one dispatcher, and therefore
// one route table and one executor.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Dispatcher injection: SetDispatcher() provides the request pipeline
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetDispatcher() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Let in-flight requests finish (with timeout)
	//   - Clean up resources
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetDispatcher injects the dispatch pipeline requests are handed to.
	//
	// Called exactly once before Serve(), no synchronization needed.
	SetDispatcher(d *dispatch.Dispatcher)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if shutdown exceeded timeout or encountered errors
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns the configured port (possibly 0) before the listener is bound.
	Port() int
}
