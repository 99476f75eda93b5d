package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/ftserve/internal/dataconn"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/vfs"
	"github.com/marmos91/ftserve/pkg/adapter/ft"
	"github.com/marmos91/ftserve/pkg/client"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return strconv.Itoa(port)
}

// startServer serves a memory filesystem and returns its host and port.
func startServer(t *testing.T) (string, string) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/notes.txt", []byte("hello\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/report.txt", bytes.Repeat([]byte("r"), 2500), 0o644))

	srv := ft.New(ft.Config{
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

	host, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	return host, port
}

// execute runs ftclient with args against a fresh memory save filesystem.
func execute(t *testing.T, args ...string) (string, afero.Fs, error) {
	t.Helper()

	fs := afero.NewMemMapFs()
	saveFs = fs

	root := GetRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{}, args...))
	t.Cleanup(func() {
		saveFs = afero.NewOsFs()
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs(nil)
		root.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})

	err := root.Execute()
	return buf.String(), fs, err
}

func TestList(t *testing.T) {
	host, port := startServer(t)

	out, _, err := execute(t, host, port, "-l", freePort(t))
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "report.txt")
	assert.Contains(t, out, "Entries")
}

func TestList_JSON(t *testing.T) {
	host, port := startServer(t)

	out, _, err := execute(t, host, port, "-l", freePort(t), "-o", "json")
	require.NoError(t, err)

	var result listResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []string{"notes.txt", "report.txt"}, result.Entries)
	assert.Equal(t, "list", result.Transfer.Command)
	assert.Equal(t, 2, result.Transfer.Entries)
	assert.Equal(t, len("notes.txt\nreport.txt\n"), result.Transfer.Bytes)
}

func TestGet(t *testing.T) {
	host, port := startServer(t)

	out, fs, err := execute(t, host, port, "-g", "report.txt", freePort(t))
	require.NoError(t, err)
	assert.Contains(t, out, "2500")

	data, err := afero.ReadFile(fs, "report.txt")
	require.NoError(t, err)
	assert.Len(t, data, 2500)
}

func TestGet_RenamesOnClash(t *testing.T) {
	host, port := startServer(t)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "notes.txt", []byte("mine"), 0o644))

	root := GetRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{host, port, "-g", "notes.txt", freePort(t), "-o", "json"})
	saveFs = fs
	t.Cleanup(func() {
		saveFs = afero.NewOsFs()
		root.SetOut(nil)
		root.SetArgs(nil)
		root.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})

	require.NoError(t, root.Execute())

	var transfer struct {
		SavedAs string `json:"saved_as"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &transfer))
	assert.Equal(t, "notes-1.txt", transfer.SavedAs)

	mine, _ := afero.ReadFile(fs, "notes.txt")
	assert.Equal(t, "mine", string(mine))
	fetched, _ := afero.ReadFile(fs, "notes-1.txt")
	assert.Equal(t, "hello\n", string(fetched))
}

func TestGet_SaveDir(t *testing.T) {
	host, port := startServer(t)

	_, fs, err := execute(t, host, port, "-g", "notes.txt", freePort(t), "--dir", "downloads")
	require.NoError(t, err)

	ok, err := afero.Exists(fs, "downloads/notes.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGet_FileNotFound(t *testing.T) {
	host, port := startServer(t)

	_, fs, err := execute(t, host, port, "-g", "missing.txt", freePort(t))
	require.Error(t, err)

	var statusErr *client.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, proto.StatusFileNotFound, statusErr.Status)
	assert.Equal(t, 1, ExitCode(err))

	ok, _ := afero.Exists(fs, "missing.txt")
	assert.False(t, ok)
}

func TestUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "NoArgs", args: []string{}},
		{name: "NoCommand", args: []string{"localhost", "4000", "5001"}},
		{name: "MissingDataPort", args: []string{"localhost", "4000", "-l"}},
		{name: "BadServerPort", args: []string{"localhost", "http", "-l", "5001"}},
		{name: "DataPortOutOfRange", args: []string{"localhost", "4000", "-l", "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUsage)
			assert.Equal(t, 1, ExitCode(err))
		})
	}
}

func TestListAndGetExclusive(t *testing.T) {
	_, _, err := execute(t, "localhost", "4000", "-l", "-g", "a.txt", "5001")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}

// TestNoDataConnection covers a server that acknowledges the request but
// never connects back.
func TestNoDataConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, _ = proto.ReadRequest(conn, proto.DefaultMaxRequestSize)
		_ = proto.WriteStatus(conn, proto.StatusContinue)
		time.Sleep(time.Second)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	_, _, err = execute(t, host, port, "-l", freePort(t), "--timeout", "200ms")
	require.Error(t, err)
	assert.ErrorIs(t, err, proto.ConnectError)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(&client.StatusError{Status: proto.StatusIllegalCommand}))
	assert.Equal(t, 2, ExitCode(proto.NewError(proto.ErrConnect, "accept data connection", nil)))
}
