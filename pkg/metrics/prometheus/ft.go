// Package prometheus implements the metrics interfaces on top of the
// registry held by pkg/metrics. Import it for its side effect:
//
//	import _ "github.com/marmos91/ftserve/pkg/metrics/prometheus"
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/ftserve/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterFTMetricsConstructor(func() metrics.FTMetrics {
		// A typed nil inside a non-nil interface would defeat the callers'
		// nil check.
		if m := NewFTMetrics(); m != nil {
			return m
		}
		return nil
	})
}

// ftMetrics is the Prometheus implementation of metrics.FTMetrics.
type ftMetrics struct {
	connectionsAccepted prometheus.Counter
	rejected            *prometheus.CounterVec
	workersSpawned      prometheus.Counter
	workerExits         *prometheus.CounterVec
	workerLifetime      prometheus.Histogram
	activeWorkers       prometheus.Gauge
	requests            *prometheus.CounterVec
	bytesSent           *prometheus.CounterVec
	chunksSent          *prometheus.CounterVec
	transferSize        *prometheus.HistogramVec
	transferDuration    *prometheus.HistogramVec
	connectAttempts     *prometheus.CounterVec
}

// NewFTMetrics creates the Prometheus collectors on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewFTMetrics() *ftMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ftMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftserve_connections_accepted_total",
				Help: "Total number of accepted control connections",
			},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_connections_rejected_total",
				Help: "Control connections closed before a worker ran, by reason",
			},
			[]string{"reason"}, // registry_full, malformed, too_large, read_error, shutdown
		),
		workersSpawned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftserve_workers_spawned_total",
				Help: "Total number of workers started",
			},
		),
		workerExits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_worker_exits_total",
				Help: "Total number of reaped workers by exit status",
			},
			[]string{"status"}, // "0", "1", "2"
		),
		workerLifetime: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ftserve_worker_lifetime_seconds",
				Help:    "Time from spawn to completion of a worker",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~4min
			},
		),
		activeWorkers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ftserve_workers_active",
				Help: "Workers in the registry that have not been reaped",
			},
		),
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_requests_total",
				Help: "Decoded requests by command and status reply",
			},
			[]string{"command", "status"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_data_bytes_sent_total",
				Help: "Bytes written to data connections, marker included",
			},
			[]string{"command"},
		),
		chunksSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_data_chunks_sent_total",
				Help: "Write calls made on data connections",
			},
			[]string{"command"},
		),
		transferSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ftserve_transfer_size_bytes",
				Help: "Distribution of payload sizes sent over data connections",
				Buckets: []float64{
					1000,     // one chunk
					10000,    // 10KB
					100000,   // 100KB
					1000000,  // 1MB
					10000000, // 10MB
					67108864, // default file size limit
				},
			},
			[]string{"command"},
		),
		transferDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ftserve_transfer_duration_milliseconds",
				Help: "Duration of payload sends in milliseconds",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"command"},
		),
		connectAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftserve_data_connect_attempts_total",
				Help: "Data connection attempts by outcome",
			},
			[]string{"outcome"}, // ok, refused, timeout, error
		),
	}
}

func (m *ftMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *ftMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *ftMetrics) RecordWorkerSpawned() {
	if m == nil {
		return
	}
	m.workersSpawned.Inc()
}

func (m *ftMetrics) RecordWorkerExit(exitStatus int, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.workerExits.WithLabelValues(strconv.Itoa(exitStatus)).Inc()
	m.workerLifetime.Observe(lifetime.Seconds())
}

func (m *ftMetrics) SetActiveWorkers(count int) {
	if m == nil {
		return
	}
	m.activeWorkers.Set(float64(count))
}

func (m *ftMetrics) RecordRequest(command string, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, status).Inc()
}

func (m *ftMetrics) RecordTransfer(command string, bytes int, chunks int, duration time.Duration) {
	if m == nil {
		return
	}
	m.bytesSent.WithLabelValues(command).Add(float64(bytes))
	m.chunksSent.WithLabelValues(command).Add(float64(chunks))
	m.transferSize.WithLabelValues(command).Observe(float64(bytes))
	m.transferDuration.WithLabelValues(command).Observe(duration.Seconds() * 1000)
}

func (m *ftMetrics) RecordConnectAttempt(outcome string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(outcome).Inc()
}
