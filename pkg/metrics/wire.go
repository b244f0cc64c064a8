package metrics

import "time"

// WireMetrics provides observability for the wire protocol adapter and the
// dispatch pipeline.
//
// Implementations can collect metrics about requests, connection lifecycle,
// throughput, and protocol errors. This interface is optional - if not
// provided, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewWireMetrics()
//	adapter := wire.New(config, pool, m)
//
//	// Without metrics (no-op)
//	adapter := wire.New(config, pool, nil)
type WireMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - route: Registered route path, or UnroutedLabel for unknown paths
	//   - status: Status code written to the peer
	//   - duration: Time spent in routing and the handler
	//   - err: Handler or routing error, nil if the handler succeeded
	RecordRequest(route string, status int, duration time.Duration, err error)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(route string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(route string)

	// RecordBytesTransferred records bytes read or written.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordProtocolError counts a connection closed because of a malformed
	// or oversized frame.
	RecordProtocolError(reason string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionRejected counts a connection refused at admission
	// (connection limit or rate limit).
	RecordConnectionRejected(reason string)

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired.
	RecordConnectionForceClosed()
}

// UnroutedLabel is the route label used for requests whose path has no
// handler. Using the raw path would let peers create unbounded label
// cardinality.
const UnroutedLabel = "unrouted"

// NewNoopWireMetrics returns a WireMetrics that discards everything.
func NewNoopWireMetrics() WireMetrics {
	return noopWireMetrics{}
}

type noopWireMetrics struct{}

func (noopWireMetrics) RecordRequest(route string, status int, duration time.Duration, err error) {}
func (noopWireMetrics) RecordRequestStart(route string)                                         {}
func (noopWireMetrics) RecordRequestEnd(route string)                                           {}
func (noopWireMetrics) RecordBytesTransferred(direction string, bytes int64)                    {}
func (noopWireMetrics) RecordProtocolError(reason string)                                       {}
func (noopWireMetrics) SetActiveConnections(count int32)                                        {}
func (noopWireMetrics) RecordConnectionAccepted()                                               {}
func (noopWireMetrics) RecordConnectionRejected(reason string)                                  {}
func (noopWireMetrics) RecordConnectionClosed()                                                 {}
func (noopWireMetrics) RecordConnectionForceClosed()                                            {}
