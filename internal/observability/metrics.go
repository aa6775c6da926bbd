// Package observability holds the daemon's Prometheus metrics.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection outcomes recorded when a connection closes.
const (
	OutcomeOK            = "ok"
	OutcomeProtocolError = "protocol_error"
	OutcomePeerClosed    = "peer_closed"
	OutcomeTimeout       = "timeout"
	OutcomeError         = "error"
)

var (
	registerOnce sync.Once

	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btu",
			Subsystem: "daemon",
			Name:      "connections_total",
			Help:      "Connections closed, by outcome.",
		},
		[]string{"outcome"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "btu",
			Subsystem: "daemon",
			Name:      "active_connections",
			Help:      "Connections currently registered with the reactor.",
		},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btu",
			Subsystem: "daemon",
			Name:      "requests_total",
			Help:      "Decoded requests, by type and result.",
		},
		[]string{"request_type", "status"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "btu",
			Subsystem: "daemon",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in the dispatch callback.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"request_type"},
	)
)

// RegisterMetrics registers the collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionsTotal, activeConnections, requestsTotal, dispatchDuration)
	})
}

// ConnectionOpened records a newly accepted connection.
func ConnectionOpened() {
	RegisterMetrics()
	activeConnections.Inc()
}

// ConnectionClosed records a connection closing with the given outcome.
func ConnectionClosed(outcome string) {
	RegisterMetrics()
	activeConnections.Dec()
	connectionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRequest records one dispatched request.
func RecordRequest(requestType, status string, duration time.Duration) {
	RegisterMetrics()
	requestsTotal.WithLabelValues(requestType, status).Inc()
	dispatchDuration.WithLabelValues(requestType).Observe(duration.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
