// Package metrics holds the process-wide Prometheus registry and the
// metrics interfaces used by the server.
//
// Metrics are opt-in. Until InitRegistry is called, IsEnabled reports false
// and every constructor returns nil, which callers treat as "not collecting".
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates a fresh registry with the Go runtime and process
// collectors and makes it the active one. Calling it again replaces the
// registry, dropping everything registered on the previous one.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mu.Lock()
	registry = reg
	mu.Unlock()
	return reg
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the active registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Disable forgets the active registry. Used on shutdown and by tests.
func Disable() {
	mu.Lock()
	registry = nil
	mu.Unlock()
}
