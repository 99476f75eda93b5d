package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/ftserve/internal/logger"
	"github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/pkg/metrics"
)

// BaseConfig holds the supervisor configuration.
type BaseConfig struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port (tests).
	Port int

	// MaxWorkers bounds the worker registry.
	MaxWorkers int

	// ShutdownTimeout is the maximum duration to wait for running workers
	// during graceful shutdown.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is the interval at which to log registry usage.
	// 0 disables periodic logging.
	MetricsLogInterval time.Duration
}

// BaseAdapter is the worker supervisor.
//
// It runs the accept loop, reaps finished workers without blocking and
// spawns one goroutine per accepted connection, bounded by the registry
// capacity. Each goroutine reads its request through a WorkerFactory and then
// runs the worker.
//
// Thread safety:
// All exported methods are safe for concurrent use. The shutdown mechanism
// uses sync.Once so Stop() may be called multiple times.
type BaseAdapter struct {
	Config BaseConfig

	// protocolName is the human-readable protocol name for logging
	protocolName string

	// Metrics is optional. If nil, no metrics are collected.
	Metrics metrics.FTMetrics

	// Registry tracks workers that have not been reaped.
	Registry *Registry

	listener   net.Listener
	listenerMu sync.RWMutex
	ready      atomic.Bool

	// workers counts running worker goroutines for graceful shutdown.
	workers sync.WaitGroup

	shutdownOnce sync.Once

	// Shutdown is closed once graceful shutdown has been initiated.
	Shutdown chan struct{}

	// ShutdownCtx is passed to workers and cancelled during shutdown, which
	// aborts connect retries and in-flight transfers.
	ShutdownCtx context.Context

	// CancelRequests cancels ShutdownCtx.
	CancelRequests context.CancelFunc

	// ActiveConnections maps worker ID to its control connection, for
	// interrupting reads and force-closing on shutdown.
	ActiveConnections sync.Map

	// ListenerReady is closed once the listener is bound, or binding failed.
	ListenerReady chan struct{}
	readyOnce     sync.Once
}

// NewBaseAdapter creates a stopped supervisor. Call ServeWithFactory to start.
func NewBaseAdapter(config BaseConfig, protocol string, m metrics.FTMetrics) *BaseAdapter {
	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	logger.Debug(protocol+" worker limit", logger.KeyMaxWorkers, config.MaxWorkers)

	return &BaseAdapter{
		Config:         config,
		protocolName:   protocol,
		Metrics:        m,
		Registry:       NewRegistry(config.MaxWorkers),
		Shutdown:       make(chan struct{}),
		ShutdownCtx:    shutdownCtx,
		CancelRequests: cancelRequests,
		ListenerReady:  make(chan struct{}),
	}
}

// ServeWithFactory listens and runs the accept loop until ctx is cancelled,
// Stop is called, or accept fails.
//
// Returns:
//   - nil on graceful shutdown
//   - an ft.AcceptFailure error when accept fails outside of shutdown
//   - ErrShutdownTimeout (wrapped) when workers had to be force-closed
//   - an error when the listener cannot be created
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory WorkerFactory) error {
	listenAddr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		b.readyOnce.Do(func() { close(b.ListenerReady) })
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocolName, listenAddr, err)
	}

	b.listenerMu.Lock()
	b.listener = listener
	b.listenerMu.Unlock()
	b.ready.Store(true)
	b.readyOnce.Do(func() { close(b.ListenerReady) })

	logger.Info(b.protocolName+" server listening",
		logger.KeyAddress, listener.Addr().String(),
		logger.KeyMaxWorkers, b.Registry.Capacity())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocolName+" shutdown signal received", logger.Err(ctx.Err()))
			b.initiateShutdown()
		case <-b.Shutdown:
		}
	}()

	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics()
	}

	for {
		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-b.Shutdown:
				// Listener closed by shutdown.
				return b.gracefulShutdown()
			default:
			}

			acceptErr := ft.NewError(ft.ErrAccept, "accept "+b.protocolName+" connection", err)
			logger.Error(b.protocolName+" accept failed, stopping", logger.Err(acceptErr))
			b.initiateShutdown()
			if shutdownErr := b.gracefulShutdown(); shutdownErr != nil {
				return errors.Join(acceptErr, shutdownErr)
			}
			return acceptErr
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		b.dispatch(factory, tcpConn)
	}
}

// dispatch performs one supervisor iteration for an accepted connection:
// reap, reserve a registry slot, then start the worker goroutine. Request
// intake runs on that goroutine, so a silent peer holds only its own slot and
// never stalls the accept loop.
func (b *BaseAdapter) dispatch(factory WorkerFactory, conn net.Conn) {
	id := uuid.NewString()
	clientAddr := conn.RemoteAddr().String()

	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
	}
	logger.Debug(b.protocolName+" connection accepted",
		logger.WorkerID(id),
		logger.ClientAddr(clientAddr))

	b.reapCompleted()

	// Tracked from the start so shutdown can interrupt a slow request read.
	b.ActiveConnections.Store(id, conn)

	handle, err := b.Registry.Spawn(WorkerInfo{ID: id, Client: clientAddr, StartedAt: time.Now()})
	if err != nil {
		_ = conn.Close()
		b.ActiveConnections.Delete(id)
		if b.Metrics != nil {
			b.Metrics.RecordRejected(metrics.RejectRegistryFull)
		}
		logger.Warn(b.protocolName+" worker not started, connection dropped",
			logger.WorkerID(id),
			logger.ClientAddr(clientAddr),
			logger.ActiveWorkers(b.Registry.Len()),
			logger.KeyMaxWorkers, b.Registry.Capacity(),
			logger.ErrorCode(codeName(err)),
			logger.Err(err))
		return
	}

	b.workers.Add(1)
	if b.Metrics != nil {
		b.Metrics.RecordWorkerSpawned()
		b.Metrics.SetActiveWorkers(b.Registry.Len())
	}

	go b.runWorker(factory, id, conn, handle)
}

// runWorker reads the request through factory and runs the resulting worker.
// The exit status is recorded on handle for the next reap pass.
func (b *BaseAdapter) runWorker(factory WorkerFactory, id string, conn net.Conn, handle *WorkerHandle) {
	status := ft.ExitFailure
	defer func() {
		if r := recover(); r != nil {
			logger.Error(b.protocolName+" worker panicked",
				logger.WorkerID(id),
				"panic", fmt.Sprint(r))
		}
		_ = conn.Close()
		b.ActiveConnections.Delete(id)
		handle.Exit(status)
		b.workers.Done()
	}()

	worker, err := factory.NewWorker(b.ShutdownCtx, id, conn)
	if err != nil {
		reason := b.rejectReason(err)
		if b.Metrics != nil {
			b.Metrics.RecordRejected(reason)
		}
		logger.Debug(b.protocolName+" request rejected",
			logger.WorkerID(id),
			logger.ClientAddr(conn.RemoteAddr().String()),
			"reason", reason,
			logger.ErrorCode(codeName(err)),
			logger.Err(err))
		status = intakeExitStatus(err)
		return
	}

	handle.Describe(worker.Info())
	status = worker.Run(b.ShutdownCtx)
}

// reapCompleted removes finished workers from the registry and reports them.
func (b *BaseAdapter) reapCompleted() {
	reaped := b.Registry.ReapCompleted()
	for _, r := range reaped {
		level := logger.Debug
		if r.ExitStatus != ft.ExitOK {
			level = logger.Warn
		}
		level(b.protocolName+" worker reaped",
			logger.WorkerID(r.Info.ID),
			logger.ClientAddr(r.Info.Client),
			logger.ExitStatus(r.ExitStatus),
			logger.DurationMs(float64(r.Lifetime.Microseconds())/1000))

		if b.Metrics != nil {
			b.Metrics.RecordWorkerExit(r.ExitStatus, r.Lifetime)
		}
	}
	if len(reaped) > 0 && b.Metrics != nil {
		b.Metrics.SetActiveWorkers(b.Registry.Len())
	}
}

// rejectReason is the metrics label for a failed request intake.
func (b *BaseAdapter) rejectReason(err error) string {
	select {
	case <-b.Shutdown:
		return metrics.RejectShutdown
	default:
	}

	code, _ := ft.CodeOf(err)
	switch code {
	case ft.ErrMalformedRequest:
		return metrics.RejectMalformed
	case ft.ErrRequestTooLarge:
		return metrics.RejectTooLarge
	default:
		return metrics.RejectReadError
	}
}

// intakeExitStatus is the exit status of a worker whose request never
// decoded. Malformed and oversized requests were answered with a status, so
// they end cleanly.
func intakeExitStatus(err error) int {
	code, _ := ft.CodeOf(err)
	switch code {
	case ft.ErrMalformedRequest, ft.ErrRequestTooLarge:
		return ft.ExitOK
	default:
		return ft.ExitStatus(err)
	}
}

func codeName(err error) string {
	if code, ok := ft.CodeOf(err); ok {
		return code.String()
	}
	return "unknown"
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Interrupt blocking reads on all tracked control connections
//  4. Cancel ShutdownCtx (aborts connect retries and transfers)
func (b *BaseAdapter) initiateShutdown() {
	b.shutdownOnce.Do(func() {
		logger.Debug(b.protocolName + " shutdown initiated")

		close(b.Shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				logger.Debug("Error closing "+b.protocolName+" listener", logger.Err(err))
			}
		}
		b.listenerMu.Unlock()
		b.ready.Store(false)

		b.interruptBlockingReads()
		b.CancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on all tracked connections
// to interrupt any blocking read operations during shutdown.
func (b *BaseAdapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					logger.KeyWorkerID, key, logger.Err(err))
			}
		}
		return true
	})
}

// gracefulShutdown waits for running workers to finish or the timeout.
func (b *BaseAdapter) gracefulShutdown() error {
	logger.Info(b.protocolName+" graceful shutdown: waiting for workers",
		logger.ActiveWorkers(b.Registry.Len()),
		"timeout", b.Config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	timeout := b.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		b.reapCompleted()
		logger.Info(b.protocolName + " graceful shutdown complete: all workers finished")
		return nil

	case <-time.After(timeout):
		remaining := b.forceCloseConnections()
		logger.Warn(b.protocolName+" shutdown timeout exceeded, connections force-closed",
			"count", remaining, "timeout", timeout)
		return fmt.Errorf("%s: %w: %d connections force-closed", b.protocolName, ErrShutdownTimeout, remaining)
	}
}

// forceCloseConnections closes every tracked control connection and
// returns how many were closed.
func (b *BaseAdapter) forceCloseConnections() int {
	closed := 0
	b.ActiveConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.Close(); err == nil {
				closed++
			}
		}
		return true
	})
	return closed
}

// Stop initiates graceful shutdown and waits for running workers until ctx
// is done. A nil ctx waits up to ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()

	if ctx == nil {
		return b.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocolName+" shutdown context cancelled",
			logger.ActiveWorkers(b.Registry.Len()), logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *BaseAdapter) logMetrics() {
	ticker := time.NewTicker(b.Config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.Shutdown:
			return
		case <-ticker.C:
			logger.Info(b.protocolName+" workers",
				logger.ActiveWorkers(b.Registry.Len()),
				logger.KeyMaxWorkers, b.Registry.Capacity())
		}
	}
}

// ActiveWorkers returns a snapshot of the registered workers.
func (b *BaseAdapter) ActiveWorkers() []WorkerStatus {
	return b.Registry.Snapshot()
}

// Ready reports whether the listener is accepting connections.
func (b *BaseAdapter) Ready() bool {
	return b.ready.Load()
}

// Addr returns the address the server is listening on. It blocks until the
// listener is bound and returns "" when binding failed.
func (b *BaseAdapter) Addr() string {
	<-b.ListenerReady

	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()

	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured TCP port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the human-readable protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocolName
}
