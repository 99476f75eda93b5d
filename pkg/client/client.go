// Package client implements the client side of the file transfer protocol.
//
// A request is sent on a control connection to the server, which replies
// with a status and, on Continue, connects back to the client's data port to
// deliver the payload.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/ftserve/internal/logger"
	"github.com/marmos91/ftserve/internal/protocol/ft"
)

// DefaultTimeout bounds each phase of a request.
const DefaultTimeout = 30 * time.Second

// maxStatusSize bounds the status reply read off the control connection.
const maxStatusSize = 256

// ErrNoStatus is returned when the server closes the control connection
// without replying, e.g. because it was at capacity.
var ErrNoStatus = errors.New("connection closed without status")

// StatusError is returned when the server rejects a request.
type StatusError struct {
	Status ft.Status
}

func (e *StatusError) Error() string {
	return "server replied: " + string(e.Status)
}

// NotFound reports whether the server could not find the requested file.
func (e *StatusError) NotFound() bool {
	return e.Status == ft.StatusFileNotFound
}

// Client issues requests to one server.
type Client struct {
	// ServerAddr is the server's control address (host:port).
	ServerAddr string

	// DataPort is the local port the server connects back to.
	DataPort int

	// DataBindAddress is the local address the data listener binds to.
	// Empty listens on all interfaces.
	DataBindAddress string

	// Timeout bounds the status read, the wait for the data connection and
	// the payload read, each separately. 0 uses DefaultTimeout.
	Timeout time.Duration

	// MaxPayload bounds the payload size. 0 means unlimited.
	MaxPayload int
}

// New creates a Client for the server at serverAddr receiving data on
// dataPort.
func New(serverAddr string, dataPort int) *Client {
	return &Client{ServerAddr: serverAddr, DataPort: dataPort, Timeout: DefaultTimeout}
}

// List returns the names in the server's directory.
func (c *Client) List(ctx context.Context) ([]string, error) {
	body, err := c.Do(ctx, &ft.Request{Command: ft.CommandList, DataPort: c.DataPort})
	if err != nil {
		return nil, err
	}
	return ft.ParseListing(body), nil
}

// Get returns the contents of the named file.
func (c *Client) Get(ctx context.Context, name string) ([]byte, error) {
	return c.Do(ctx, &ft.Request{Command: ft.CommandGet, Filename: name, DataPort: c.DataPort})
}

// Do sends req and returns the payload delivered on the data connection.
//
// The data listener is opened before the request is sent. A rejection is
// returned as *StatusError. When the server acknowledges the request but
// never connects, the error has code ft.ErrConnect.
func (c *Client) Do(ctx context.Context, req *ft.Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(c.DataBindAddress, strconv.Itoa(req.DataPort)))
	if err != nil {
		return nil, fmt.Errorf("listen on data port %d: %w", req.DataPort, err)
	}
	defer func() { _ = ln.Close() }()

	var d net.Dialer
	ctrl, err := d.DialContext(ctx, "tcp", c.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.ServerAddr, err)
	}
	defer func() { _ = ctrl.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = ctrl.Close()
		_ = ln.Close()
	})
	defer stop()

	if err := ctrl.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := io.WriteString(ctrl, req.Encode()); err != nil {
		return nil, ft.NewError(ft.ErrWrite, "send request", err)
	}
	logger.Debug("Request sent", logger.Command(string(req.Command)),
		logger.Filename(req.Filename), logger.DataPort(req.DataPort))

	status, err := ft.ReadStatus(ctrl, maxStatusSize)
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	if status == "" {
		return nil, ft.NewError(ft.ErrRead, "read status", ErrNoStatus)
	}
	if !status.OK() {
		return nil, &StatusError{Status: status}
	}

	if tl, ok := ln.(*net.TCPListener); ok {
		if err := tl.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("set accept deadline: %w", err)
		}
	}
	data, err := ln.Accept()
	if err != nil {
		return nil, c.ctxErr(ctx, ft.NewError(ft.ErrConnect, "accept data connection", err))
	}
	defer func() { _ = data.Close() }()

	logger.Debug("Data connection established", logger.ClientAddr(data.RemoteAddr().String()))

	if err := data.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	body, err := ft.ReadUntilMarker(data, c.MaxPayload)
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	return body, nil
}

// ctxErr prefers the context's error when the context ended the request.
func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
