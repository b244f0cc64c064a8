// Package client is a synchronous client for the wire protocol.
//
// A Client owns one TCP connection and sends one request at a time, waiting
// for the response before the next request may be written. Requests that do
// not carry "Keep-Alive: true" make the server close the connection after the
// response; the Client notices and refuses further requests.
//
// Example:
//
//	c, err := client.Dial(ctx, "127.0.0.1:9998", client.Options{})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	resp, err := c.Do(ctx, &protocol.Request{
//	    Path:    "/hello",
//	    Headers: map[string]string{protocol.KeepAliveHeader: "true"},
//	    Body:    []byte("abc"),
//	})
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittowire/pkg/protocol"
)

// ErrClosed is returned by Do once the connection is closed, either by Close
// or because the previous request did not ask for keep-alive.
var ErrClosed = errors.New("client: connection closed")

// Options configures a Client. Zero values select defaults.
type Options struct {
	// DialTimeout bounds connection establishment (default: 5s)
	DialTimeout time.Duration

	// RequestTimeout bounds one request/response exchange when the context
	// has no earlier deadline. 0 means no timeout.
	RequestTimeout time.Duration

	// MaxResponseSize bounds the response body allocation (default: 1MB)
	MaxResponseSize int
}

func (o *Options) applyDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.MaxResponseSize <= 0 {
		o.MaxResponseSize = protocol.DefaultMaxFrameSize
	}
}

// Client is a single wire protocol connection.
//
// Client is safe for concurrent use; concurrent calls to Do are serialized.
type Client struct {
	opts Options

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	opts.applyDefaults()

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Client{
		opts:   opts,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Do sends req and waits for its response.
//
// After a request without keep-alive the connection is closed once the
// response has been read. Any transport error also closes the connection.
func (c *Client) Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	frame, err := protocol.EncodeRequestFrame(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if err := c.setDeadline(ctx); err != nil {
		c.closeLocked()
		return nil, err
	}

	// Unblock the exchange if ctx is cancelled mid-flight
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write(frame); err != nil {
		c.closeLocked()
		return nil, c.wrapErr(ctx, "write request", err)
	}

	resp, err := protocol.ReadResponse(c.reader, c.opts.MaxResponseSize)
	if err != nil {
		c.closeLocked()
		return nil, c.wrapErr(ctx, "read response", err)
	}

	if !protocol.KeepAlive(req) {
		c.closeLocked()
	}

	return resp, nil
}

func (c *Client) setDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if c.opts.RequestTimeout > 0 {
		if d := time.Now().Add(c.opts.RequestTimeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if !ok {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(deadline)
}

// wrapErr reports a context error in preference to the I/O error it caused.
func (c *Client) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	// The socket deadline can fire a moment before the context timer does
	var netErr net.Error
	if deadline, ok := ctx.Deadline(); ok && errors.As(err, &netErr) && netErr.Timeout() && !time.Now().Before(deadline) {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Closed reports whether the connection has been closed.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LocalAddr returns the local end of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		_ = c.conn.Close()
	}
}
