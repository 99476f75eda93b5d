package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/marmos91/ftserve/internal/dataconn"
	"github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/vfs"
	ftadapter "github.com/marmos91/ftserve/pkg/adapter/ft"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startServer(t *testing.T) string {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b.txt", []byte("bravo"), 0o644))

	srv := ftadapter.New(ftadapter.Config{
		BindAddress: "127.0.0.1",
		DataChannel: dataconn.Config{
			ConnectTimeout: time.Second,
			MaxRetries:     3,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     50 * time.Millisecond,
		},
	}, vfs.New(fs), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	return addr
}

func newTestClient(t *testing.T, addr string) *Client {
	c := New(addr, freePort(t))
	c.DataBindAddress = "127.0.0.1"
	c.Timeout = 5 * time.Second
	return c
}

func TestClient_List(t *testing.T) {
	c := newTestClient(t, startServer(t))

	names, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestClient_Get(t *testing.T) {
	c := newTestClient(t, startServer(t))

	data, err := c.Get(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))
}

func TestClient_GetMissing(t *testing.T) {
	c := newTestClient(t, startServer(t))

	_, err := c.Get(context.Background(), "missing.txt")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.True(t, statusErr.NotFound())
	assert.Equal(t, "server replied: File not found.", err.Error())
}

func TestClient_IllegalCommand(t *testing.T) {
	c := newTestClient(t, startServer(t))

	_, err := c.Do(context.Background(), &ft.Request{Command: "-x", DataPort: c.DataPort})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, ft.StatusIllegalCommand, statusErr.Status)
	assert.False(t, statusErr.NotFound())
}

func TestClient_RejectsUnencodableName(t *testing.T) {
	c := New("127.0.0.1:1", 4000)

	_, err := c.Get(context.Background(), "a&b")
	assert.ErrorIs(t, err, ft.MalformedRequest)
}

// fakeServer accepts one control connection, reads the request and replies
// with reply (nothing when empty), then holds the connection open.
func fakeServer(t *testing.T, reply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if _, err := ft.ReadRequest(conn, 0); err != nil {
			return
		}
		if reply == "" {
			return
		}
		_, _ = io.WriteString(conn, reply)
		_, _ = io.Copy(io.Discard, conn)
	}()
	return ln.Addr().String()
}

func TestClient_NoDataConnection(t *testing.T) {
	c := newTestClient(t, fakeServer(t, "Continue@@@"))
	c.Timeout = 200 * time.Millisecond

	_, err := c.List(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ft.ConnectError)
	assert.Equal(t, ft.ExitDataChannel, ft.ExitStatus(err))
}

func TestClient_ClosedWithoutStatus(t *testing.T) {
	c := newTestClient(t, fakeServer(t, ""))

	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, ErrNoStatus)
	assert.Equal(t, ft.ExitFailure, ft.ExitStatus(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, fakeServer(t, "Continue@@@"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.List(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestClient_DataPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	c := New("127.0.0.1:1", ln.Addr().(*net.TCPAddr).Port)
	c.DataBindAddress = "127.0.0.1"

	_, err = c.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on data port "+strconv.Itoa(c.DataPort))
}
