// Package dispatch connects decoded requests to handlers through the
// bounded executor.
//
// The connection goroutine calls Dispatch, which returns as soon as the task
// is queued. Routing and the handler run on an executor goroutine; the
// connection waits on the returned future.
//
// Failure policy:
//   - unknown path, handler error, handler panic or nil response all yield
//     status 500 with a generic body
//   - a handler's own status code is always written unchanged
//   - StayAlive always follows the request's Keep-Alive header, including
//     for failed requests, so a 500 never tears down a healthy connection
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittowire/internal/executor"
	"github.com/marmos91/dittowire/internal/logger"
	"github.com/marmos91/dittowire/pkg/metrics"
	"github.com/marmos91/dittowire/pkg/protocol"
	"github.com/marmos91/dittowire/pkg/router"
)

// StatusServerError is the status written when routing or the handler fails.
const StatusServerError = 500

// ServerErrorBody is the body written when routing or the handler fails.
// Internal error details are logged, never sent to the peer.
const ServerErrorBody = "Unhandled server error"

// ErrNilResponse is reported when a handler returns neither a response nor
// an error.
var ErrNilResponse = errors.New("dispatch: handler returned nil response")

// Result is the outcome of one dispatched request.
type Result struct {
	// Request is kept for diagnostics.
	Request *protocol.Request

	// Response is what will be written to the peer. Never nil.
	Response *protocol.Response

	// StayAlive is derived from the request's Keep-Alive header when the
	// request is dispatched.
	StayAlive bool

	// Err is the routing or handler error behind a 500, nil otherwise.
	Err error
}

// Dispatcher routes requests to handlers on the executor.
type Dispatcher struct {
	router   *router.Router
	executor *executor.Executor
	metrics  metrics.WireMetrics
}

// New creates a Dispatcher. The router is sealed so its table stays
// read-only while requests are served. A nil metrics uses the no-op
// implementation.
func New(r *router.Router, exec *executor.Executor, m metrics.WireMetrics) *Dispatcher {
	if m == nil {
		m = metrics.NewNoopWireMetrics()
	}
	r.Seal()

	return &Dispatcher{
		router:   r,
		executor: exec,
		metrics:  m,
	}
}

// Executor returns the executor requests run on.
func (d *Dispatcher) Executor() *executor.Executor {
	return d.executor
}

// Router returns the route table.
func (d *Dispatcher) Router() *router.Router {
	return d.router
}

// Dispatch queues req for handling and returns immediately.
//
// The returned future always resolves to a non-nil Result with a nil error
// unless ctx is cancelled before the task obtains a permit. An error from
// Dispatch itself means the executor is closed.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) (*executor.Future[*Result], error) {
	stayAlive := protocol.KeepAlive(req)

	return executor.Submit(d.executor, ctx, func(ctx context.Context) (*Result, error) {
		return d.handle(ctx, req, stayAlive), nil
	})
}

// Handle runs routing and the handler synchronously on the calling
// goroutine, bypassing the executor.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *Result {
	return d.handle(ctx, req, protocol.KeepAlive(req))
}

func (d *Dispatcher) handle(ctx context.Context, req *protocol.Request, stayAlive bool) (result *Result) {
	start := time.Now()
	route := req.Path

	result = &Result{Request: req, StayAlive: stayAlive}

	handler, err := d.router.Resolve(req.Path)
	if err != nil {
		route = metrics.UnroutedLabel
		d.fail(result, err)
		d.metrics.RecordRequest(route, result.Response.StatusCode, time.Since(start), err)
		return result
	}

	d.metrics.RecordRequestStart(route)
	defer func() {
		if r := recover(); r != nil {
			d.fail(result, fmt.Errorf("handler for %q panicked: %v", req.Path, r))
		}
		d.metrics.RecordRequestEnd(route)
		d.metrics.RecordRequest(route, result.Response.StatusCode, time.Since(start), result.Err)
	}()

	resp, err := handler.ServeWire(ctx, req)
	switch {
	case err != nil:
		d.fail(result, err)
	case resp == nil:
		d.fail(result, fmt.Errorf("%w: %q", ErrNilResponse, req.Path))
	case resp.Body == nil:
		result.Response = protocol.NewResponse(resp.StatusCode, []byte{})
	default:
		result.Response = resp
	}

	return result
}

func (d *Dispatcher) fail(result *Result, err error) {
	logger.Warn("Request to %q failed: %v", result.Request.Path, err)
	result.Err = err
	result.Response = protocol.NewResponse(StatusServerError, []byte(ServerErrorBody))
}
