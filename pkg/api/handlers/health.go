package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/ftserve/pkg/adapter"
)

// ServerStatus is the view of the file transfer server the handlers need.
// *adapter.BaseAdapter satisfies it.
type ServerStatus interface {
	Ready() bool
	ActiveWorkers() []adapter.WorkerStatus
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	server    ServerStatus
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
//
// server may be nil, in which case readiness reports unhealthy.
func NewHealthHandler(server ServerStatus) *HealthHandler {
	return &HealthHandler{server: server, startedAt: time.Now()}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service":    "ftserve",
		"started_at": h.startedAt.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK once the control listener accepts connections, 503
// Service Unavailable before that and after shutdown starts.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.server == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}

	if !h.server.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("listener not ready"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]int{
		"active_workers": len(h.server.ActiveWorkers()),
	}))
}
