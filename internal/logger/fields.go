package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging. Use these consistently so
// worker lines can be correlated across the accept loop and the transfer.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Worker and request
	KeyWorkerID   = "worker_id"
	KeyCommand    = "command"
	KeyFilename   = "filename"
	KeyDataPort   = "data_port"
	KeyState      = "state"
	KeyStatus     = "status"      // Status string sent on the control connection
	KeyExitStatus = "exit_status" // Worker exit status (0, 1, 2)

	// Client
	KeyClientIP   = "client_ip"
	KeyClientAddr = "client_addr"

	// Transfer
	KeyBytes   = "bytes"
	KeyChunks  = "chunks"
	KeyEntries = "entries"

	// Supervisor
	KeyActiveWorkers = "active_workers"
	KeyMaxWorkers    = "max_workers"
	KeyReaped        = "reaped"
	KeyAddress       = "address"

	// Retry
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeyBackoff    = "backoff"

	// Metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
)

func WorkerID(id string) slog.Attr { return slog.String(KeyWorkerID, id) }

func Command(cmd string) slog.Attr { return slog.String(KeyCommand, cmd) }

func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }

func DataPort(port int) slog.Attr { return slog.Int(KeyDataPort, port) }

func State(s string) slog.Attr { return slog.String(KeyState, s) }

func Status(msg string) slog.Attr { return slog.String(KeyStatus, msg) }

func ExitStatus(code int) slog.Attr { return slog.Int(KeyExitStatus, code) }

func ClientIP(ip string) slog.Attr { return slog.String(KeyClientIP, ip) }

func ClientAddr(addr string) slog.Attr { return slog.String(KeyClientAddr, addr) }

func Bytes(n int) slog.Attr { return slog.Int(KeyBytes, n) }

func Chunks(n int) slog.Attr { return slog.Int(KeyChunks, n) }

func Entries(n int) slog.Attr { return slog.Int(KeyEntries, n) }

func ActiveWorkers(n int) slog.Attr { return slog.Int(KeyActiveWorkers, n) }

func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

func Backoff(d time.Duration) slog.Attr { return slog.Duration(KeyBackoff, d) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns an attribute for an error; an empty attr when err is nil so
// it can be passed unconditionally.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns an attribute for a taxonomy code such as "ConnectError".
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }
