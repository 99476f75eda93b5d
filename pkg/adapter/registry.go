package adapter

import (
	"fmt"
	"sync"
	"time"
)

// WorkerState is the lifecycle state of a registered worker.
type WorkerState string

const (
	WorkerIntake  WorkerState = "intake"
	WorkerRunning WorkerState = "running"
	WorkerExited  WorkerState = "exited"
)

// WorkerStatus is a point-in-time view of a registered worker.
type WorkerStatus struct {
	WorkerInfo
	State      WorkerState `json:"state"`
	ExitStatus *int        `json:"exit_status,omitempty"`
}

// Reaped describes a worker removed by ReapCompleted.
type Reaped struct {
	Info       WorkerInfo
	ExitStatus int
	Lifetime   time.Duration
}

type registryEntry struct {
	info      WorkerInfo
	described bool
	done      chan struct{}
	status    int
	finished  time.Time
}

// Registry tracks workers that have not been reaped yet. Its size never
// exceeds its capacity: Spawn fails instead.
//
// Spawn and ReapCompleted are called from the accept loop; Snapshot may be
// called concurrently from observers.
type Registry struct {
	mu       sync.Mutex
	capacity int
	entries  []*registryEntry
}

// NewRegistry creates a registry holding at most capacity workers.
// A capacity below 1 is treated as 1.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{capacity: capacity, entries: make([]*registryEntry, 0, capacity)}
}

// WorkerHandle is held by a running worker to report its exit.
type WorkerHandle struct {
	registry *Registry
	entry    *registryEntry
	once     sync.Once
}

// Describe records the decoded request once intake has finished. ID and
// StartedAt keep the values given to Spawn, as does Client when info leaves
// it empty.
func (h *WorkerHandle) Describe(info WorkerInfo) {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()

	info.ID = h.entry.info.ID
	info.StartedAt = h.entry.info.StartedAt
	if info.Client == "" {
		info.Client = h.entry.info.Client
	}
	h.entry.info = info
	h.entry.described = true
}

// Exit records the worker's exit status and marks it reapable. Only the
// first call has an effect.
func (h *WorkerHandle) Exit(status int) {
	h.once.Do(func() {
		h.entry.status = status
		h.entry.finished = time.Now()
		close(h.entry.done)
	})
}

// Spawn registers a new worker in the intake state. It fails with ErrRegistryFull when the
// registry is at capacity.
func (r *Registry) Spawn(info WorkerInfo) (*WorkerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		return nil, ErrRegistryFull
	}
	for _, e := range r.entries {
		if e.info.ID == info.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorker, info.ID)
		}
	}

	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	e := &registryEntry{info: info, done: make(chan struct{})}
	r.entries = append(r.entries, e)
	return &WorkerHandle{registry: r, entry: e}, nil
}

// ReapCompleted removes every worker that has exited and returns them in
// spawn order. It never blocks on a running worker.
func (r *Registry) ReapCompleted() []Reaped {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []Reaped
	kept := r.entries[:0]
	for _, e := range r.entries {
		select {
		case <-e.done:
			reaped = append(reaped, Reaped{
				Info:       e.info,
				ExitStatus: e.status,
				Lifetime:   e.finished.Sub(e.info.StartedAt),
			})
		default:
			kept = append(kept, e)
		}
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	return reaped
}

// Snapshot returns the registered workers in spawn order.
func (r *Registry) Snapshot() []WorkerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]WorkerStatus, 0, len(r.entries))
	for _, e := range r.entries {
		ws := WorkerStatus{WorkerInfo: e.info, State: WorkerRunning}
		if !e.described {
			ws.State = WorkerIntake
		}
		select {
		case <-e.done:
			status := e.status
			ws.State = WorkerExited
			ws.ExitStatus = &status
		default:
		}
		out = append(out, ws)
	}
	return out
}

// Len returns the number of registered workers, exited or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Capacity returns the registry bound.
func (r *Registry) Capacity() int {
	return r.capacity
}
