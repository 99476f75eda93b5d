// Package ft implements the file transfer protocol adapter: request intake
// on the control connection and the per-worker command dispatcher.
package ft

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/ftserve/internal/dataconn"
	"github.com/marmos91/ftserve/internal/logger"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/vfs"
	"github.com/marmos91/ftserve/pkg/adapter"
	"github.com/marmos91/ftserve/pkg/metrics"
)

// Source provides the directory listing and file contents served to clients.
type Source interface {
	vfs.Lister
	vfs.Reader
}

// DataDialer opens the data connection back to a client.
type DataDialer interface {
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
}

// Adapter serves the file transfer protocol.
//
// Adapter embeds BaseAdapter for the accept loop, the worker registry and
// shutdown. It implements adapter.WorkerFactory: each accepted connection
// gets a registry slot and a goroutine, which reads and decodes the request
// and then runs the command.
type Adapter struct {
	*adapter.BaseAdapter

	config  Config
	source  Source
	dialer  DataDialer
	metrics metrics.FTMetrics
}

// New creates a stopped Adapter serving files from source.
//
// Zero values in config are replaced with defaults. m may be nil.
//
// Panics if config validation fails.
func New(config Config, source Source, m metrics.FTMetrics) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid ft config: %v", err))
	}

	baseConfig := adapter.BaseConfig{
		BindAddress:        config.BindAddress,
		Port:               config.Port,
		MaxWorkers:         config.MaxWorkers,
		ShutdownTimeout:    config.ShutdownTimeout,
		MetricsLogInterval: config.MetricsLogInterval,
	}

	return &Adapter{
		BaseAdapter: adapter.NewBaseAdapter(baseConfig, "FT", m),
		config:      config,
		source:      source,
		dialer:      dataconn.New(config.DataChannel, m),
		metrics:     m,
	}
}

// WithDialer replaces the data connection dialer. Must be called before Serve.
func (a *Adapter) WithDialer(d DataDialer) *Adapter {
	a.dialer = d
	return a
}

// Serve accepts control connections until ctx is cancelled or accept fails.
func (a *Adapter) Serve(ctx context.Context) error {
	return a.ServeWithFactory(ctx, a)
}

// NewWorker reads and decodes the request on conn.
//
// Malformed and oversized requests are answered with Illegal Command before
// the error is returned; read errors get no reply.
func (a *Adapter) NewWorker(ctx context.Context, id string, conn net.Conn) (adapter.Worker, error) {
	if a.config.RequestTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(a.config.RequestTimeout)); err != nil {
			return nil, proto.NewError(proto.ErrRead, "set read deadline", err)
		}
	}
	// Shutdown may have set its own short deadline before the one above.
	if err := ctx.Err(); err != nil {
		return nil, proto.NewError(proto.ErrRead, "read request", err)
	}

	req, err := proto.ReadRequest(conn, a.config.MaxRequestSize)
	if err != nil {
		if status, ok := proto.StatusFor(err); ok {
			a.setWriteDeadline(conn)
			if werr := proto.WriteStatus(conn, status); werr != nil {
				logger.Debug("Failed to send rejection status",
					logger.WorkerID(id), logger.Err(werr))
			} else if a.metrics != nil {
				a.metrics.RecordRequest(proto.Command("").Name(), statusLabel(status))
			}
		}
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, proto.NewError(proto.ErrRead, "clear read deadline", err)
	}

	clientAddr := conn.RemoteAddr().String()
	clientIP := clientAddr
	if host, _, err := net.SplitHostPort(clientAddr); err == nil {
		clientIP = host
	}

	return &worker{
		adapter:  a,
		conn:     conn,
		req:      req,
		clientIP: clientIP,
		info: adapter.WorkerInfo{
			ID:        id,
			Client:    clientAddr,
			Command:   string(req.Command),
			Filename:  req.Filename,
			DataPort:  req.DataPort,
			StartedAt: time.Now(),
		},
	}, nil
}

func (a *Adapter) setWriteDeadline(conn net.Conn) {
	if a.config.WriteTimeout <= 0 {
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout)); err != nil {
		logger.Debug("Failed to set write deadline", logger.Err(err))
	}
}

// statusLabel is the metrics label for a status.
func statusLabel(s proto.Status) string {
	switch s {
	case proto.StatusContinue:
		return "continue"
	case proto.StatusFileNotFound:
		return "file_not_found"
	case proto.StatusIllegalCommand:
		return "illegal_command"
	default:
		return "unknown"
	}
}
