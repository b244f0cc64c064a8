package wire

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittowire/internal/bufpool"
	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/internal/ratelimiter"
	"github.com/marmos91/dittowire/pkg/dispatch"
	"github.com/marmos91/dittowire/pkg/metrics"
)

// WireAdapter implements the adapter.Adapter interface for the
// length-prefixed binary request/response protocol.
//
// This adapter provides a production-ready TCP server with:
//   - One goroutine per connection running the read/dispatch/write cycle
//   - Handler execution on the bounded executor behind the dispatcher
//   - Connection limiting and admission rate limiting
//   - Idle, read and write deadlines
//   - Graceful shutdown with configurable timeout
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Connections waiting for their next request are interrupted
//  4. Connections with a request in flight finish it, write the response
//     and close
//  5. After ShutdownTimeout, remaining connections are force-closed and
//     in-flight handler contexts are cancelled
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses sync.Once
// to ensure idempotent behavior even if Stop() is called multiple times.
type WireAdapter struct {
	// config holds the server configuration (ports, timeouts, limits)
	config WireConfig

	// pool lends read and write buffers to every connection
	pool *bufpool.Pool

	// dispatcher runs requests on the bounded executor
	// Injected by SetDispatcher before Serve
	dispatcher *dispatch.Dispatcher

	// metrics provides optional Prometheus metrics collection
	metrics metrics.WireMetrics

	// admission refuses connections exceeding configured accept rates
	admission *ratelimiter.Admission

	// listener is the TCP listener for accepting connections
	// Closed during shutdown to stop accepting new connections
	listener net.Listener

	// ready is closed once the listener is bound
	ready chan struct{}

	// activeConns tracks all currently active connections for graceful shutdown
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits the number of concurrent connections if MaxConnections > 0
	// nil if MaxConnections is 0 (unlimited)
	connSemaphore chan struct{}

	// requestCtx parents every dispatched request. It is cancelled only when
	// shutdown gives up waiting, so in-flight handlers normally complete.
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps connection id to *WireConnection for forced
	// closure and idle interruption
	activeConnections sync.Map
}

// New creates a new WireAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetDispatcher() to inject
// the dispatch pipeline, then call Serve() to start accepting connections.
//
// Configuration:
//   - Zero values in config are replaced with sensible defaults
//   - Invalid configurations cause a panic (indicates programmer error)
//
// Parameters:
//   - config: Server configuration (ports, timeouts, limits)
//   - pool: Buffer pool shared by all connections
//   - wireMetrics: Optional metrics collector (nil for no metrics)
//
// Returns a configured but not yet started WireAdapter.
//
// Panics if config validation fails or pool is nil.
func New(config WireConfig, pool *bufpool.Pool, wireMetrics metrics.WireMetrics) *WireAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid wire config: %v", err))
	}
	if pool == nil {
		panic("wire adapter requires a buffer pool")
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("Wire connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("Wire connection limit: unlimited")
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())

	if wireMetrics == nil {
		wireMetrics = metrics.NewNoopWireMetrics()
	}

	return &WireAdapter{
		config:  config,
		pool:    pool,
		metrics: wireMetrics,
		admission: ratelimiter.NewAdmission(ratelimiter.AdmissionConfig{
			ConnectionsPerSecond: config.RateLimit.ConnectionsPerSecond,
			Burst:                config.RateLimit.Burst,
			PerClientPerSecond:   config.RateLimit.PerClientPerSecond,
			PerClientBurst:       config.RateLimit.PerClientBurst,
		}),
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
	}
}

// SetDispatcher injects the dispatch pipeline.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (s *WireAdapter) SetDispatcher(d *dispatch.Dispatcher) {
	s.dispatcher = d
	logger.Debug("Wire dispatcher configured: routes=%v", d.Router().Paths())
}

// Serve starts the server and blocks until the context is cancelled or an
// unrecoverable error occurs.
//
// Serve accepts incoming TCP connections and spawns a goroutine per
// connection running the request/response cycle.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or shutdown is not graceful
//
// Thread safety:
// Serve() should only be called once per WireAdapter instance.
func (s *WireAdapter) Serve(ctx context.Context) error {
	if s.dispatcher == nil {
		return errors.New("wire adapter has no dispatcher: call SetDispatcher before Serve")
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create wire listener on %s: %w", addr, err)
	}

	s.listener = listener
	close(s.ready)

	logger.Info("Wire server listening on %s", listener.Addr())
	logger.Debug("Wire config: max_connections=%d max_frame_size=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.MaxConnections, s.config.MaxFrameSize, s.config.Timeouts.Read, s.config.Timeouts.Write, s.config.Timeouts.Idle)

	// Closing the listener here rather than in initiateShutdown also covers
	// a Stop that raced with the listener being bound.
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Wire shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
		if err := listener.Close(); err != nil {
			logger.Debug("Error closing wire listener: %v", err)
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	var tempDelay time.Duration
	for {
		// Acquire connection semaphore if connection limiting is enabled
		// This blocks if we're at MaxConnections until a connection closes
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() || isTemporary(err) {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				logger.Warn("Wire accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			s.initiateShutdown()
			_ = s.gracefulShutdown()
			return fmt.Errorf("wire accept failed: %w", err)
		}
		tempDelay = 0

		if ok, reason := s.admission.Admit(tcpConn.RemoteAddr()); !ok {
			logger.Debug("Wire connection from %s refused: %s", tcpConn.RemoteAddr(), reason)
			s.metrics.RecordConnectionRejected(reason)
			_ = tcpConn.Close()
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			continue
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		conn := NewWireConnection(s, tcpConn)
		s.activeConnections.Store(conn.ID(), conn)

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("Wire connection %s accepted from %s (active: %d)",
			conn.ID(), tcpConn.RemoteAddr(), currentConns)

		go func(c *WireConnection) {
			defer func() {
				s.activeConnections.Delete(c.ID())

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("Wire connection %s closed (active: %d)", c.ID(), currentConns)
			}()

			c.Serve(s.requestCtx)
		}(conn)
	}
}

// isTemporary reports whether an accept error is worth retrying.
func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop, listener watcher and
//     connections)
//  2. Interrupt connections blocked waiting for their next request
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (s *WireAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Wire shutdown initiated")

		close(s.shutdown)

		interrupted := 0
		s.activeConnections.Range(func(_, value any) bool {
			if value.(*WireConnection).interruptIdle() {
				interrupted++
			}
			return true
		})
		logger.Debug("Wire shutdown interrupted %d idle connection(s)", interrupted)
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if shutdown timeout exceeded (connections were force-closed)
func (s *WireAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Wire graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.cancelRequests()
		logger.Info("Wire graceful shutdown complete: all connections closed")
		return nil

	case <-timer.C:
		remaining := s.connCount.Load()
		logger.Warn("Wire shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()
		s.cancelRequests()

		return fmt.Errorf("wire shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all active TCP connections to accelerate
// shutdown. Pending reads and writes fail immediately and the connection
// goroutines exit.
func (s *WireAdapter) forceCloseConnections() {
	logger.Info("Force-closing active wire connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		c := value.(*WireConnection)
		if err := c.conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", key, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed connection %s (%s)", key, c.RemoteAddr())
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the server.
//
// Stop is safe to call multiple times and safe to call concurrently with Serve().
// It waits for active connections to finish, bounded by ctx.
//
// Returns:
//   - nil on successful graceful shutdown
//   - ctx.Err() if ctx ended first; remaining connections are force-closed
func (s *WireAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("Wire graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Wire graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Wire shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		s.forceCloseConnections()
		s.cancelRequests()
		return ctx.Err()
	}
}

// logMetrics periodically logs connection and buffer pool statistics.
//
// The goroutine exits when the context is cancelled or shutdown starts.
func (s *WireAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			pool := s.pool.Stats()
			exec := s.dispatcher.Executor().Stats()
			logger.Info("Wire metrics: active_connections=%d pool_created=%d pool_idle=%d pool_lent=%d pool_temporaries=%d tasks_running=%d tasks_waiting=%d",
				s.connCount.Load(), pool.Created, pool.Idle, pool.Lent, pool.Temporaries, exec.Running, exec.Waiting)
		}
	}
}

// GetActiveConnections returns the current number of active connections.
//
// Thread safety:
// Safe to call concurrently. Uses atomic operations.
func (s *WireAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready returns a channel closed once the listener is bound.
func (s *WireAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener address, or nil before Ready is closed.
func (s *WireAdapter) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

// Port returns the TCP port the server is listening on.
//
// Before the listener is bound this is the configured port, which may be 0.
func (s *WireAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "WIRE" as the protocol identifier.
func (s *WireAdapter) Protocol() string {
	return "WIRE"
}
