package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/dispatch"
	"github.com/marmos91/dittowire/pkg/protocol"
)

// ConnState is the lifecycle position of a connection.
type ConnState int32

const (
	StateAccepted ConnState = iota
	StateReading
	StateDispatching
	StateWriting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateReading:
		return "READING"
	case StateDispatching:
		return "DISPATCHING"
	case StateWriting:
		return "WRITING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// errPipelined is returned when a peer sends bytes beyond the current
	// frame before receiving its response.
	errPipelined = errors.New("bytes received beyond the current frame")

	// errShuttingDown ends the cycle between requests during shutdown.
	errShuttingDown = errors.New("server shutting down")
)

// WireConnection drives one client connection through the
// read -> dispatch -> write cycle.
//
// Requests on a connection are strictly sequential: the next read does not
// start until the previous response has been written. Each cycle uses a
// fresh accumulator and freshly acquired buffers.
type WireConnection struct {
	server *WireAdapter
	conn   net.Conn
	id     string

	state atomic.Int32

	// mu orders idle-deadline changes against interruptIdle
	mu   sync.Mutex
	idle bool

	requests atomic.Int64
}

// NewWireConnection wraps an accepted TCP connection.
func NewWireConnection(server *WireAdapter, conn net.Conn) *WireConnection {
	return &WireConnection{
		server: server,
		conn:   conn,
		id:     uuid.NewString(),
	}
}

// ID returns the connection identifier used in logs.
func (c *WireConnection) ID() string {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *WireConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// State returns the current lifecycle state.
func (c *WireConnection) State() ConnState {
	return ConnState(c.state.Load())
}

// Requests returns the number of responses written on this connection.
func (c *WireConnection) Requests() int64 {
	return c.requests.Load()
}

func (c *WireConnection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Serve runs request cycles until the peer closes, an error occurs, a
// request does not ask for keep-alive, or the server shuts down.
//
// It implements panic recovery so that a single misbehaving connection
// cannot crash the server. The socket is always closed on return.
func (c *WireConnection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in wire connection %s from %s: %v", c.id, c.conn.RemoteAddr(), r)
		}
		c.setState(StateClosed)
		_ = c.conn.Close()
	}()

	clientAddr := c.conn.RemoteAddr().String()
	c.setState(StateAccepted)

	for {
		c.setState(StateReading)
		req, err := c.readRequest()
		if err != nil {
			c.logCloseReason(clientAddr, err)
			return
		}

		c.setState(StateDispatching)
		result, err := c.dispatch(ctx, req)
		if err != nil {
			logger.Debug("Connection %s from %s: dispatch aborted: %v", c.id, clientAddr, err)
			return
		}

		c.setState(StateWriting)
		if err := c.writeResponse(result.Response); err != nil {
			logger.Debug("Connection %s from %s: write failed: %v", c.id, clientAddr, err)
			return
		}
		c.requests.Add(1)

		logger.Debug("Connection %s: %s -> %d (%d bytes, keep-alive=%v)",
			c.id, req.Path, result.Response.StatusCode, len(result.Response.Body), result.StayAlive)

		if !result.StayAlive {
			logger.Debug("Connection %s from %s: closing, keep-alive not requested", c.id, clientAddr)
			return
		}
	}
}

// readRequest reads exactly one frame and decodes it.
//
// The read buffer is lent for the duration of the read and returned as soon
// as the accumulator holds the complete frame, or on any error.
func (c *WireConnection) readRequest() (*protocol.Request, error) {
	if err := c.beginIdle(); err != nil {
		return nil, err
	}

	acc := protocol.NewAccumulator(c.server.config.MaxFrameSize)
	buf := c.server.pool.Acquire()
	defer c.server.pool.Release(buf)

	for !acc.IsComplete() {
		n, err := c.conn.Read(buf.B)
		if n > 0 {
			if !acc.Started() {
				if derr := c.endIdle(); derr != nil {
					return nil, derr
				}
			}
			c.server.metrics.RecordBytesTransferred("read", int64(n))

			consumed, ferr := acc.Feed(buf.B[:n])
			if ferr != nil {
				c.recordProtocolError(ferr)
				return nil, ferr
			}
			if consumed < n {
				c.server.metrics.RecordProtocolError("pipelined")
				return nil, fmt.Errorf("%w: %d extra byte(s)", errPipelined, n-consumed)
			}
		}
		if acc.IsComplete() {
			break
		}
		if err != nil {
			if acc.Started() && errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("peer closed mid-frame (state %s): %w", acc.State(), io.ErrUnexpectedEOF)
			}
			return nil, err
		}
	}

	req, err := acc.Request()
	if err != nil {
		c.recordProtocolError(err)
		return nil, err
	}
	return req, nil
}

// beginIdle arms the idle deadline for the wait before the next request.
// It fails if shutdown has started, so no new request is read.
func (c *WireConnection) beginIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.server.shutdown:
		return errShuttingDown
	default:
	}

	c.idle = true
	var deadline time.Time
	if c.server.config.Timeouts.Idle > 0 {
		deadline = time.Now().Add(c.server.config.Timeouts.Idle)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set idle deadline: %w", err)
	}
	return nil
}

// endIdle switches from the idle deadline to the frame read deadline once
// the first byte of a request has arrived.
func (c *WireConnection) endIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.idle = false
	var deadline time.Time
	if c.server.config.Timeouts.Read > 0 {
		deadline = time.Now().Add(c.server.config.Timeouts.Read)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	return nil
}

// interruptIdle unblocks a connection waiting for its next request. It
// reports whether the connection was idle.
func (c *WireConnection) interruptIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.idle {
		return false
	}
	_ = c.conn.SetReadDeadline(time.Now())
	return true
}

// dispatch hands the request to the dispatcher and waits for the result.
//
// Waiting here blocks only this connection's goroutine; the handler runs on
// the executor under its concurrency cap.
func (c *WireConnection) dispatch(ctx context.Context, req *protocol.Request) (*dispatch.Result, error) {
	future, err := c.server.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case <-future.Done():
		result, err := future.Result()
		if err != nil {
			return nil, err
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// writeResponse encodes the response into one buffer and writes it with a
// single Write call, so the peer never observes a partial frame from an
// interleaved write.
//
// Responses that fit the pool's buffer size use a pooled buffer; larger
// ones get a one-off allocation that is not returned to the pool.
func (c *WireConnection) writeResponse(resp *protocol.Response) error {
	buf := c.server.pool.AcquireSize(protocol.ResponseSize(resp))
	defer c.server.pool.Release(buf)

	n, err := protocol.EncodeResponseTo(buf.B, resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	var deadline time.Time
	if c.server.config.Timeouts.Write > 0 {
		deadline = time.Now().Add(c.server.config.Timeouts.Write)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	written, err := c.conn.Write(buf.B[:n])
	c.server.metrics.RecordBytesTransferred("write", int64(written))
	if err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (c *WireConnection) recordProtocolError(err error) {
	reason := "malformed"
	switch {
	case errors.Is(err, protocol.ErrFrameTooLarge):
		reason = "frame_too_large"
	case errors.Is(err, protocol.ErrNegativeLength):
		reason = "negative_length"
	}
	c.server.metrics.RecordProtocolError(reason)
}

func (c *WireConnection) logCloseReason(clientAddr string, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Connection %s from %s closed by client", c.id, clientAddr)
	case errors.Is(err, errShuttingDown):
		logger.Debug("Connection %s from %s closed due to server shutdown", c.id, clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection %s from %s timed out: %v", c.id, clientAddr, err)
	case errors.Is(err, errPipelined),
		errors.Is(err, protocol.ErrFrameTooLarge),
		errors.Is(err, protocol.ErrNegativeLength),
		errors.Is(err, protocol.ErrMalformedHeader):
		logger.Warn("Connection %s from %s: protocol error: %v", c.id, clientAddr, err)
	default:
		logger.Debug("Connection %s from %s: read error: %v", c.id, clientAddr, err)
	}
}
