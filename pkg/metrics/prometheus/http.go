package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/httpfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	queueDepth             prometheus.Gauge
	lockWait               *prometheus.HistogramVec
	registeredLocks        prometheus.Gauge
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return NewHTTPMetricsWith(metrics.GetRegistry())
}

// NewHTTPMetricsWith registers the HTTP metrics on reg.
func NewHTTPMetricsWith(reg prometheus.Registerer) metrics.HTTPMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpfs_requests_total",
				Help: "Total number of requests by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "httpfs_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "httpfs_requests_in_flight",
				Help: "Current number of requests being processed",
			},
			[]string{"method"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "httpfs_bytes_transferred_total",
				Help: "Total body bytes transferred",
			},
			[]string{"direction"}, // read or write
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "httpfs_active_connections",
				Help: "Current number of connections being served",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfs_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfs_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "httpfs_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "httpfs_queue_depth",
				Help: "Accepted connections waiting for a worker",
			},
		),
		lockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "httpfs_lock_wait_milliseconds",
				Help: "Time spent waiting for a path lock in milliseconds",
				Buckets: []float64{
					0.01, // 10us
					0.1,  // 100us
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"mode"},
		),
		registeredLocks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "httpfs_registered_locks",
				Help: "Number of paths with a lock in the registry",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *httpMetrics) RecordRequestStart(method string) {
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *httpMetrics) RecordRequestEnd(method string) {
	m.requestsInFlight.WithLabelValues(method).Dec()
}

func (m *httpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *httpMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *httpMetrics) RecordLockWait(mode string, duration time.Duration) {
	m.lockWait.WithLabelValues(mode).Observe(duration.Seconds() * 1000)
}

func (m *httpMetrics) SetRegisteredLocks(count int) {
	m.registeredLocks.Set(float64(count))
}
