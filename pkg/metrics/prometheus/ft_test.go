package prometheus

import (
	"testing"
	"time"

	"github.com/marmos91/ftserve/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *ftMetrics {
	t.Helper()
	metrics.InitRegistry()
	t.Cleanup(metrics.Disable)

	m := NewFTMetrics()
	require.NotNil(t, m)
	return m
}

func TestNewFTMetrics_Disabled(t *testing.T) {
	metrics.Disable()
	assert.Nil(t, NewFTMetrics())
	assert.Nil(t, metrics.NewFTMetrics())
}

func TestNewFTMetrics_ThroughConstructor(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.Disable)

	m := metrics.NewFTMetrics()
	require.NotNil(t, m)
	m.RecordConnectionAccepted()
}

func TestFTMetrics_Workers(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordWorkerSpawned()
	m.RecordWorkerSpawned()
	m.SetActiveWorkers(2)
	m.RecordWorkerExit(0, 10*time.Millisecond)
	m.RecordWorkerExit(2, 5*time.Second)
	m.SetActiveWorkers(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.workersSpawned))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeWorkers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerExits.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerExits.WithLabelValues("2")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.workerLifetime))
}

func TestFTMetrics_Requests(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordConnectionAccepted()
	m.RecordRequest("get", "File not found.")
	m.RecordRequest("list", "Continue")
	m.RecordRejected(metrics.RejectRegistryFull)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("get", "File not found.")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("registry_full")))
}

func TestFTMetrics_Transfer(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTransfer("get", 5003, 6, 3*time.Millisecond)
	m.RecordConnectAttempt("refused")
	m.RecordConnectAttempt("ok")

	assert.Equal(t, 5003.0, testutil.ToFloat64(m.bytesSent.WithLabelValues("get")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.chunksSent.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("refused")))
}

func TestFTMetrics_NilReceiver(t *testing.T) {
	var m *ftMetrics
	assert.NotPanics(t, func() {
		m.RecordConnectionAccepted()
		m.RecordRejected("x")
		m.RecordWorkerSpawned()
		m.RecordWorkerExit(1, time.Second)
		m.SetActiveWorkers(3)
		m.RecordRequest("list", "Continue")
		m.RecordTransfer("list", 1, 1, time.Millisecond)
		m.RecordConnectAttempt("ok")
	})
}
