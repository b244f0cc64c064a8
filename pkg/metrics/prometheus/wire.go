package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittowire/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// wireMetrics is the Prometheus implementation of metrics.WireMetrics.
type wireMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	protocolErrors         *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewWireMetrics creates a new Prometheus-backed WireMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewWireMetrics() metrics.WireMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopWireMetrics()
	}
	return newWireMetrics(metrics.GetRegistry())
}

func newWireMetrics(reg prometheus.Registerer) *wireMetrics {
	return &wireMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittowire_requests_total",
				Help: "Total number of requests by route, status code and outcome",
			},
			[]string{"route", "code", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittowire_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds, including the permit wait",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"route"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittowire_requests_in_flight",
				Help: "Current number of requests being processed",
			},
			[]string{"route"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittowire_bytes_transferred_total",
				Help: "Total bytes read from and written to peers",
			},
			[]string{"direction"},
		),
		protocolErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittowire_protocol_errors_total",
				Help: "Connections closed because of malformed or oversized frames",
			},
			[]string{"reason"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittowire_active_connections",
				Help: "Current number of active connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittowire_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittowire_connections_rejected_total",
				Help: "Total number of connections refused at admission",
			},
			[]string{"reason"},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittowire_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittowire_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
	}
}

func (m *wireMetrics) RecordRequest(route string, status int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status), outcome).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *wireMetrics) RecordRequestStart(route string) {
	m.requestsInFlight.WithLabelValues(route).Inc()
}

func (m *wireMetrics) RecordRequestEnd(route string) {
	m.requestsInFlight.WithLabelValues(route).Dec()
}

func (m *wireMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *wireMetrics) RecordProtocolError(reason string) {
	m.protocolErrors.WithLabelValues(reason).Inc()
}

func (m *wireMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *wireMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *wireMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *wireMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *wireMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
