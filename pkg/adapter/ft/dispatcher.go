package ft

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/ftserve/internal/logger"
	proto "github.com/marmos91/ftserve/internal/protocol/ft"
	"github.com/marmos91/ftserve/internal/telemetry"
	"github.com/marmos91/ftserve/internal/vfs"
	"github.com/marmos91/ftserve/pkg/adapter"
)

// worker runs one decoded request to completion.
//
// States: Start -> {Listing | Retrieval} -> DataChannelOpened -> Sent ->
// Closed, or Start -> Rejected -> Closed. The data connection is only
// dialed once a Continue status has been sent.
type worker struct {
	adapter  *Adapter
	conn     net.Conn
	req      *proto.Request
	clientIP string
	info     adapter.WorkerInfo
}

func (w *worker) Info() adapter.WorkerInfo {
	return w.info
}

// Run dispatches the request and returns the worker exit status.
func (w *worker) Run(ctx context.Context) int {
	defer func() { _ = w.conn.Close() }()

	ctx, span := telemetry.StartRequestSpan(ctx, w.info.ID, w.clientIP,
		telemetry.ClientAddr(w.info.Client),
		telemetry.Command(string(w.req.Command)),
		telemetry.Filename(w.req.Filename),
		telemetry.DataPort(w.req.DataPort))
	defer span.End()

	lc := logger.NewLogContext(w.info.ID, w.clientIP).
		WithRequest(string(w.req.Command), w.req.Filename, w.req.DataPort).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	logger.DebugCtx(ctx, "Request received")

	err := w.dispatch(ctx)
	status := proto.ExitStatus(err)
	telemetry.SetAttributes(ctx, telemetry.ExitStatus(status))

	switch {
	case err == nil:
		logger.InfoCtx(ctx, "Request completed", logger.DurationMs(lc.DurationMs()))
	case status == proto.ExitOK:
		logger.InfoCtx(ctx, "Request rejected",
			logger.ErrorCode(codeName(err)), logger.DurationMs(lc.DurationMs()))
	default:
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Request failed",
			logger.ErrorCode(codeName(err)),
			logger.ExitStatus(status),
			logger.DurationMs(lc.DurationMs()),
			logger.Err(err))
	}
	return status
}

func (w *worker) dispatch(ctx context.Context) error {
	switch w.req.Command {
	case proto.CommandList:
		// Continue goes out before the snapshot. A listing failure after it
		// ends the worker without opening the data channel.
		if err := w.sendStatus(ctx, proto.StatusContinue); err != nil {
			return err
		}
		entries, err := w.adapter.source.ListDirectory(ctx)
		if err != nil {
			return proto.NewError(proto.ErrRead, "list directory", err)
		}
		logger.DebugCtx(ctx, "Directory listed", logger.Entries(len(entries)))
		return w.transfer(ctx, proto.ListingPayload(entries))

	case proto.CommandGet:
		body, err := w.adapter.source.ReadFile(ctx, w.req.Filename, w.adapter.config.MaxFileSize)
		if err != nil {
			// Every open or read failure is reported as not found.
			if !errors.Is(err, vfs.ErrNotFound) {
				logger.WarnCtx(ctx, "File read failed", logger.Err(err))
			}
			return w.reject(ctx, proto.NewError(proto.ErrFileNotFound, "open "+w.req.Filename, err))
		}
		if err := w.sendStatus(ctx, proto.StatusContinue); err != nil {
			return err
		}
		return w.transfer(ctx, proto.Payload{Body: body})

	default:
		return w.reject(ctx, proto.NewError(proto.ErrIllegalCommand, "dispatch",
			fmt.Errorf("unknown command %q", w.req.Command)))
	}
}

// reject reports cause on the control connection and returns it.
func (w *worker) reject(ctx context.Context, cause error) error {
	status, ok := proto.StatusFor(cause)
	if !ok {
		return cause
	}
	if err := w.sendStatus(ctx, status); err != nil {
		return err
	}
	return cause
}

func (w *worker) sendStatus(ctx context.Context, status proto.Status) error {
	w.adapter.setWriteDeadline(w.conn)
	if err := proto.WriteStatus(w.conn, status); err != nil {
		return err
	}

	if w.adapter.metrics != nil {
		w.adapter.metrics.RecordRequest(w.req.Command.Name(), statusLabel(status))
	}
	telemetry.AddEvent(ctx, telemetry.EventStatusSent, telemetry.Status(string(status)))
	logger.DebugCtx(ctx, "Status sent", logger.Status(string(status)))
	return nil
}

// transfer dials the client's data port and sends the payload followed by
// the marker. The Continue status has already been sent.
func (w *worker) transfer(ctx context.Context, payload proto.Payload) error {
	dataConn, err := w.adapter.dialer.Dial(ctx, w.clientIP, w.req.DataPort)
	if err != nil {
		return err
	}
	defer func() { _ = dataConn.Close() }()

	// Shutdown aborts an in-flight send.
	stop := context.AfterFunc(ctx, func() { _ = dataConn.Close() })
	defer stop()

	ctx, span := telemetry.StartTransferSpan(ctx, w.req.Command.Name())
	defer span.End()

	start := time.Now()
	w.adapter.setWriteDeadline(dataConn)
	res, err := proto.SendPayload(dataConn, payload, w.adapter.config.ChunkSize)
	telemetry.SetAttributes(ctx, telemetry.Bytes(res.Bytes), telemetry.Chunks(res.Chunks))
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	if w.adapter.metrics != nil {
		w.adapter.metrics.RecordTransfer(w.req.Command.Name(), res.Bytes, res.Chunks, time.Since(start))
	}
	logger.DebugCtx(ctx, "Payload sent",
		logger.Bytes(res.Bytes),
		logger.Chunks(res.Chunks),
		logger.DurationMs(float64(time.Since(start).Microseconds())/1000))
	return nil
}

func codeName(err error) string {
	if code, ok := proto.CodeOf(err); ok {
		return code.String()
	}
	return "unknown"
}
