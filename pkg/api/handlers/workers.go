package handlers

import (
	"net/http"

	"github.com/marmos91/ftserve/pkg/adapter"
)

// WorkersHandler lists the worker registry.
type WorkersHandler struct {
	server ServerStatus
}

// NewWorkersHandler creates a new workers handler.
func NewWorkersHandler(server ServerStatus) *WorkersHandler {
	return &WorkersHandler{server: server}
}

// List handles GET /api/v1/workers.
//
// Returns every registered worker in spawn order, including exited workers
// that have not been reaped yet.
func (h *WorkersHandler) List(w http.ResponseWriter, r *http.Request) {
	workers := []adapter.WorkerStatus{}
	if h.server != nil {
		workers = append(workers, h.server.ActiveWorkers()...)
	}
	writeJSON(w, http.StatusOK, okResponse(workers))
}
