// Package adapter provides the worker supervisor shared by protocol
// adapters: the accept loop, the bounded worker registry and graceful
// shutdown. Protocol packages (pkg/adapter/ft) supply request intake and
// the per-worker logic through WorkerFactory.
package adapter

import (
	"context"
	"net"
	"time"
)

// Adapter represents a protocol server managed by the server command.
//
// Lifecycle:
//  1. Creation: the adapter is created with its configuration
//  2. Startup: Serve() starts the listener and blocks until shutdown
//  3. Shutdown: Stop() or context cancellation drains workers with a timeout
//
// Stop may be called concurrently with Serve.
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// Returns nil on graceful shutdown, an error when the listener cannot be
	// created, when accept fails, or when shutdown had to force-close workers.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Safe to call multiple times.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	Protocol() string

	// Port returns the configured TCP port.
	Port() int
}

// WorkerInfo describes a worker for logs and the status API.
type WorkerInfo struct {
	ID        string    `json:"id"`
	Client    string    `json:"client"`
	Command   string    `json:"command"`
	Filename  string    `json:"filename,omitempty"`
	DataPort  int       `json:"data_port"`
	StartedAt time.Time `json:"started_at"`
}

// Worker handles exactly one accepted control connection.
type Worker interface {
	// Info returns the worker's identity and request summary.
	Info() WorkerInfo

	// Run serves the request and returns the worker exit status
	// (0 success or clean rejection, 1 I/O failure, 2 data channel failure).
	// Run owns the control connection and must close it before returning.
	Run(ctx context.Context) int
}

// WorkerFactory turns an accepted control connection into a Worker.
//
// NewWorker runs on the goroutine of a worker whose registry slot is already
// reserved, so a slow read holds only that slot. It should still bound its
// reads. When it returns an error the supervisor closes conn and records the
// worker as exited; the factory is responsible for any reply the peer should
// see first.
type WorkerFactory interface {
	NewWorker(ctx context.Context, id string, conn net.Conn) (Worker, error)
}
