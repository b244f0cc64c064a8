package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/adapter"
	"github.com/marmos91/dittowire/pkg/dispatch"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("server: Serve() has already been called")

// DefaultShutdownTimeout bounds adapter shutdown and executor drain when
// Config.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 30 * time.Second

// Config configures the orchestrator.
type Config struct {
	// ShutdownTimeout bounds stopping all adapters, and separately draining
	// the executor afterwards.
	ShutdownTimeout time.Duration
}

// WireServer manages the lifecycle of the protocol adapters sharing one
// dispatcher, and of the executor behind it.
//
// Lifecycle:
//  1. Creation: New() with the dispatcher
//  2. Registration: AddAdapter() for each listener
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation stops the adapters in reverse order,
//     then closes the executor so queued handler work drains
//
// Thread safety:
// WireServer is safe for concurrent use. Serve() should only be called once
// per server instance.
//
// Example usage:
//
//	srv := server.New(dispatcher, server.Config{ShutdownTimeout: 30 * time.Second})
//	srv.AddAdapter(wire.New(wireConfig, pool, wireMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type WireServer struct {
	// dispatcher is shared by all adapters
	dispatcher *dispatch.Dispatcher

	config Config

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and served flag
	mu sync.Mutex

	// served indicates whether Serve() has been called
	served bool
}

// New creates a new WireServer around the dispatcher.
//
// Panics if dispatcher is nil (indicates programmer error).
func New(dispatcher *dispatch.Dispatcher, config Config) *WireServer {
	if dispatcher == nil {
		panic("dispatcher cannot be nil")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &WireServer{
		dispatcher: dispatcher,
		config:     config,
		adapters:   make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter with the server.
//
// The shared dispatcher is injected into the adapter. Two adapters cannot
// share a fixed port; port 0 (ephemeral) never conflicts.
//
// Returns:
//   - error if the adapter conflicts with an existing adapter
//
// Panics if:
//   - adapter is nil (programmer error)
//   - Serve() has already been called (server is running)
func (s *WireServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	if port != 0 {
		for _, existing := range s.adapters {
			if existing.Port() == port {
				return fmt.Errorf("port %d already in use by %s adapter",
					port, existing.Protocol())
			}
		}
	}

	a.SetDispatcher(s.dispatcher)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails:
//   - All adapters receive Stop() calls in reverse registration order,
//     sharing one ShutdownTimeout budget
//   - Serve() waits for all adapter goroutines to return
//   - The executor is closed with its own ShutdownTimeout budget
//
// Returns:
//   - context.Canceled (or the context's error) after a signalled shutdown
//   - error if startup failed or an adapter encountered an error
//   - ErrAlreadyServed on a second call
func (s *WireServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s), routes=%v", len(adapters), s.dispatcher.Router().Paths())

	// Buffered to prevent goroutine leaks if multiple adapters fail simultaneously
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Debug("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case ctx.Err() != nil:
				if err != nil {
					logger.Warn("%s adapter stopped with error: %v", protocol, err)
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			case err != nil:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			default:
				// Returning before cancellation is a failure even without error
				errChan <- adapterError{protocol: protocol, err: errors.New("adapter stopped unexpectedly")}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.closeExecutor()

	logger.Info("Server stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in reverse
// registration order.
func (s *WireServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

// closeExecutor drains handler work submitted before the adapters stopped.
func (s *WireServer) closeExecutor() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.dispatcher.Executor().Close(ctx); err != nil {
		logger.Warn("Executor shutdown: %v", err)
		return
	}
	logger.Debug("Executor drained")
}

// Adapters returns a snapshot of currently registered adapters.
func (s *WireServer) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
