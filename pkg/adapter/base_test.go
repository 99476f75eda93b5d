package adapter

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeWorker struct {
	info WorkerInfo
	run  func(ctx context.Context) int
}

func (w *fakeWorker) Info() WorkerInfo            { return w.info }
func (w *fakeWorker) Run(ctx context.Context) int { return w.run(ctx) }

// factoryFunc adapts a function to WorkerFactory.
type factoryFunc func(ctx context.Context, id string, conn net.Conn) (Worker, error)

func (f factoryFunc) NewWorker(ctx context.Context, id string, conn net.Conn) (Worker, error) {
	return f(ctx, id, conn)
}

// echoFactory reads one byte and returns a worker that writes it back, then
// waits for release when the byte is 'b'.
func echoFactory(release <-chan struct{}) WorkerFactory {
	return factoryFunc(func(ctx context.Context, id string, conn net.Conn) (Worker, error) {
		buf := make([]byte, 1)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return nil, ft.NewError(ft.ErrRead, "read", err)
		}
		if buf[0] == 'x' {
			return nil, ft.NewError(ft.ErrMalformedRequest, "decode", errors.New("bad"))
		}
		return &fakeWorker{
			info: WorkerInfo{ID: id, Client: conn.RemoteAddr().String(), Command: string(buf)},
			run: func(ctx context.Context) int {
				if buf[0] == 'b' {
					select {
					case <-release:
					case <-ctx.Done():
						return ft.ExitFailure
					}
				}
				if _, err := conn.Write(buf); err != nil {
					return ft.ExitFailure
				}
				return ft.ExitOK
			},
		}, nil
	})
}

// rejectRecorder records rejection reasons and ignores other metrics.
type rejectRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *rejectRecorder) RecordConnectionAccepted()                      {}
func (r *rejectRecorder) RecordWorkerSpawned()                           {}
func (r *rejectRecorder) RecordWorkerExit(int, time.Duration)            {}
func (r *rejectRecorder) SetActiveWorkers(int)                           {}
func (r *rejectRecorder) RecordRequest(string, string)                   {}
func (r *rejectRecorder) RecordTransfer(string, int, int, time.Duration) {}
func (r *rejectRecorder) RecordConnectAttempt(string)                    {}

func (r *rejectRecorder) RecordRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *rejectRecorder) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

func startBase(t *testing.T, cfg BaseConfig, factory WorkerFactory) (*BaseAdapter, context.CancelFunc, <-chan error) {
	t.Helper()

	b := NewBaseAdapter(cfg, "TEST", nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.ServeWithFactory(ctx, factory) }()

	select {
	case <-b.ListenerReady:
	case <-time.After(5 * time.Second):
		t.Fatal("listener not ready")
	}
	require.True(t, b.Ready())

	t.Cleanup(func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = b.Stop(stopCtx)
	})
	return b, cancel, errCh
}

// roundTrip sends one byte and returns the echoed byte, or an error when the
// server closed the connection.
func roundTrip(t *testing.T, addr string, b byte) (byte, error) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte{b})
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// =============================================================================
// Accept loop
// =============================================================================

func TestBaseAdapter_ServesWorkers(t *testing.T) {
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, echoFactory(nil))

	for _, c := range []byte("aaa") {
		got, err := roundTrip(t, b.Addr(), c)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	// Registry holds at most the finished workers not yet reaped.
	assert.LessOrEqual(t, b.Registry.Len(), 2)
}

func TestBaseAdapter_IntakeErrorKeepsServing(t *testing.T) {
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, echoFactory(nil))

	_, err := roundTrip(t, b.Addr(), 'x')
	assert.Error(t, err, "rejected connection is closed")

	got, err := roundTrip(t, b.Addr(), 'a')
	require.NoError(t, err)
	assert.Equal(t, byte('a'), got)
}

func TestBaseAdapter_RegistryFullDropsConnection(t *testing.T) {
	release := make(chan struct{})
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 1}, echoFactory(release))

	// Occupy the only slot.
	blocked, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = blocked.Close() }()
	_, err = blocked.Write([]byte{'b'})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err = roundTrip(t, b.Addr(), 'a')
	assert.Error(t, err, "connection over capacity is dropped")
	assert.Equal(t, 1, b.Registry.Len())

	close(release)
	buf := make([]byte, 1)
	require.NoError(t, blocked.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(blocked, buf)
	require.NoError(t, err)

	// The finished worker is reaped before the next spawn.
	require.Eventually(t, func() bool {
		snap := b.ActiveWorkers()
		return len(snap) == 1 && snap[0].State == WorkerExited
	}, 5*time.Second, 10*time.Millisecond)

	got, err := roundTrip(t, b.Addr(), 'c')
	require.NoError(t, err)
	assert.Equal(t, byte('c'), got)
}

func TestBaseAdapter_SlowWorkerDoesNotBlockAccept(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 3}, echoFactory(release))

	slow, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = slow.Close() }()
	_, err = slow.Write([]byte{'b'})
	require.NoError(t, err)

	got, err := roundTrip(t, b.Addr(), 'a')
	require.NoError(t, err)
	assert.Equal(t, byte('a'), got)
}

func TestBaseAdapter_SilentClientDoesNotBlockAccept(t *testing.T) {
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 3}, echoFactory(nil))

	// Connected but never sends its request byte.
	silent, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = silent.Close() }()

	require.Eventually(t, func() bool {
		snap := b.ActiveWorkers()
		return len(snap) == 1 && snap[0].State == WorkerIntake
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	got, err := roundTrip(t, b.Addr(), 'a')
	require.NoError(t, err)
	assert.Equal(t, byte('a'), got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBaseAdapter_IntakeExitStatus(t *testing.T) {
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, echoFactory(nil))

	// A malformed request was answered by the factory and ends cleanly.
	_, err := roundTrip(t, b.Addr(), 'x')
	assert.Error(t, err)
	require.Eventually(t, func() bool {
		snap := b.ActiveWorkers()
		return len(snap) == 1 && snap[0].ExitStatus != nil && *snap[0].ExitStatus == ft.ExitOK
	}, 5*time.Second, 10*time.Millisecond)

	// A peer that hangs up before sending anything is a read error.
	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		for _, w := range b.ActiveWorkers() {
			if w.ExitStatus != nil && *w.ExitStatus == ft.ExitFailure {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBaseAdapter_WorkerPanicIsContained(t *testing.T) {
	var calls atomic.Int32
	factory := factoryFunc(func(ctx context.Context, id string, conn net.Conn) (Worker, error) {
		n := calls.Add(1)
		return &fakeWorker{
			info: WorkerInfo{ID: id},
			run: func(ctx context.Context) int {
				if n == 1 {
					panic("boom")
				}
				_, _ = conn.Write([]byte{'k'})
				return ft.ExitOK
			},
		}, nil
	})
	b, _, _ := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, factory)

	_, err := roundTrip(t, b.Addr(), 'a')
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		snap := b.ActiveWorkers()
		return len(snap) == 1 && snap[0].ExitStatus != nil && *snap[0].ExitStatus == ft.ExitFailure
	}, 5*time.Second, 10*time.Millisecond)

	got, err := roundTrip(t, b.Addr(), 'a')
	require.NoError(t, err)
	assert.Equal(t, byte('k'), got)
}

// =============================================================================
// Shutdown
// =============================================================================

func TestBaseAdapter_GracefulShutdown(t *testing.T) {
	b, cancel, errCh := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, echoFactory(nil))

	_, err := roundTrip(t, b.Addr(), 'a')
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.False(t, b.Ready())
}

func TestBaseAdapter_ShutdownCancelsWorkers(t *testing.T) {
	b, _, errCh := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2, ShutdownTimeout: 5 * time.Second}, echoFactory(make(chan struct{})))

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write([]byte{'b'})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.Registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestBaseAdapter_ShutdownTimeout(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)

	factory := factoryFunc(func(ctx context.Context, id string, conn net.Conn) (Worker, error) {
		return &fakeWorker{
			info: WorkerInfo{ID: id},
			run: func(context.Context) int {
				<-stuck
				return ft.ExitOK
			},
		}, nil
	})
	b, cancel, errCh := startBase(t, BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 1, ShutdownTimeout: 100 * time.Millisecond}, factory)

	conn, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return b.Registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrShutdownTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestBaseAdapter_ShutdownDuringIntake(t *testing.T) {
	rec := &rejectRecorder{}
	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2, ShutdownTimeout: 5 * time.Second}, "TEST", rec)
	errCh := make(chan error, 1)
	go func() { errCh <- b.ServeWithFactory(context.Background(), echoFactory(nil)) }()
	require.NotEmpty(t, b.Addr())

	silent, err := net.Dial("tcp", b.Addr())
	require.NoError(t, err)
	defer func() { _ = silent.Close() }()
	require.Eventually(t, func() bool { return b.Registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Stop(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, []string{metrics.RejectShutdown}, rec.Reasons())
}

func TestBaseAdapter_IntakeRejectReasons(t *testing.T) {
	rec := &rejectRecorder{}
	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", MaxWorkers: 2}, "TEST", rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.ServeWithFactory(ctx, echoFactory(nil)) }()
	require.NotEmpty(t, b.Addr())

	_, err := roundTrip(t, b.Addr(), 'x')
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return len(rec.Reasons()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{metrics.RejectMalformed}, rec.Reasons())
}

func TestBaseAdapter_ListenFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = occupied.Close() }()
	port := occupied.Addr().(*net.TCPAddr).Port

	b := NewBaseAdapter(BaseConfig{BindAddress: "127.0.0.1", Port: port, MaxWorkers: 1}, "TEST", nil)
	err = b.ServeWithFactory(context.Background(), echoFactory(nil))
	require.Error(t, err)
	assert.Empty(t, b.Addr())
	assert.False(t, b.Ready())
}
