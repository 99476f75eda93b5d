package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Client keys follow OpenTelemetry conventions; protocol
// keys use the "ft." prefix.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrWorkerID   = "ft.worker_id"
	AttrCommand    = "ft.command"
	AttrFilename   = "ft.filename"
	AttrDataPort   = "ft.data_port"
	AttrStatus     = "ft.status"
	AttrBytes      = "ft.bytes"
	AttrChunks     = "ft.chunks"
	AttrExitStatus = "ft.exit_status"
	AttrPeerAddr   = "net.peer.address"
	AttrAttempt    = "ft.dial.attempt"
)

// Span names.
const (
	// SpanRequest is the root span of a worker.
	SpanRequest  = "ft.request"
	SpanDial     = "ft.dial"
	SpanTransfer = "ft.transfer"
)

// Span events.
const (
	EventStatusSent  = "status.sent"
	EventDialAttempt = "dial.attempt"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func WorkerID(id string) attribute.KeyValue {
	return attribute.String(AttrWorkerID, id)
}

// Command records the raw command string ("-l", "-g" or whatever arrived).
func Command(cmd string) attribute.KeyValue {
	return attribute.String(AttrCommand, cmd)
}

func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

func DataPort(port int) attribute.KeyValue {
	return attribute.Int(AttrDataPort, port)
}

// Status records the status reply text.
func Status(s string) attribute.KeyValue {
	return attribute.String(AttrStatus, s)
}

func Bytes(n int) attribute.KeyValue {
	return attribute.Int(AttrBytes, n)
}

func Chunks(n int) attribute.KeyValue {
	return attribute.Int(AttrChunks, n)
}

func ExitStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrExitStatus, code)
}

func PeerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddr, addr)
}

func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// StartRequestSpan starts the root span of a worker handling the
// connection from clientAddr.
func StartRequestSpan(ctx context.Context, workerID, clientIP string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{WorkerID(workerID), ClientIP(clientIP)}, attrs...)
	return StartSpan(ctx, SpanRequest, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(all...))
}

// StartDialSpan starts a span covering data connection establishment.
func StartDialSpan(ctx context.Context, addr string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDial, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(PeerAddr(addr)))
}

// StartTransferSpan starts a span covering a payload send.
func StartTransferSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Command(command)}, attrs...)
	return StartSpan(ctx, SpanTransfer, trace.WithAttributes(all...))
}
