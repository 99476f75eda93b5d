package metrics

import (
	"time"
)

// Rejection reasons passed to RecordRejected.
const (
	RejectRegistryFull = "registry_full"
	RejectMalformed    = "malformed"
	RejectTooLarge     = "too_large"
	RejectReadError    = "read_error"
	RejectShutdown     = "shutdown"
)

// FTMetrics provides observability for the file transfer server.
//
// This interface is optional: pass nil to the adapter to disable metrics
// collection.
//
//	metrics.InitRegistry()
//	m := metrics.NewFTMetrics()
//	adapter := ft.New(cfg, source, m)
type FTMetrics interface {
	// RecordConnectionAccepted counts an accepted control connection.
	RecordConnectionAccepted()

	// RecordRejected counts a control connection closed before a worker ran.
	RecordRejected(reason string)

	// RecordWorkerSpawned counts a worker added to the registry.
	RecordWorkerSpawned()

	// RecordWorkerExit counts a reaped worker by exit status and observes
	// its lifetime.
	RecordWorkerExit(exitStatus int, lifetime time.Duration)

	// SetActiveWorkers updates the number of workers not yet reaped.
	SetActiveWorkers(count int)

	// RecordRequest counts a decoded request by command ("list", "get",
	// "illegal") and the status sent back.
	RecordRequest(command string, status string)

	// RecordTransfer observes a completed payload send.
	RecordTransfer(command string, bytes int, chunks int, duration time.Duration)

	// RecordConnectAttempt counts one data connection attempt by outcome
	// ("ok", "refused", "timeout", "error").
	RecordConnectAttempt(outcome string)
}

// NewFTMetrics creates a new Prometheus-backed FTMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or if the
// prometheus implementation was not linked in.
func NewFTMetrics() FTMetrics {
	if !IsEnabled() || newPrometheusFTMetrics == nil {
		return nil
	}
	return newPrometheusFTMetrics()
}

// newPrometheusFTMetrics is implemented in pkg/metrics/prometheus/ft.go
var newPrometheusFTMetrics func() FTMetrics

// RegisterFTMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterFTMetricsConstructor(constructor func() FTMetrics) {
	newPrometheusFTMetrics = constructor
}
