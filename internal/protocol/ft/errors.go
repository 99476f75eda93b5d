// Package ft implements the wire format of the two-socket file transfer
// protocol: request framing and decoding on the control connection, status
// messages, and marker-terminated payloads sent in bounded chunks over the
// data connection.
//
// The package depends only on pkg/bufpool so it can be shared by the server
// adapter, the data channel dialer and the client.
package ft

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a protocol or transport failure.
type ErrorCode int

const (
	// ErrRequestTooLarge indicates the request sentinel did not arrive within
	// the maximum frame size.
	ErrRequestTooLarge ErrorCode = iota + 1

	// ErrMalformedRequest indicates a missing delimiter or an invalid field.
	ErrMalformedRequest

	// ErrRead indicates the control connection read failed.
	ErrRead

	// ErrWrite indicates a control or data connection write failed.
	ErrWrite

	// ErrNoSuchHost indicates the client address could not be resolved.
	ErrNoSuchHost

	// ErrConnect indicates the data connection could not be established.
	ErrConnect

	// ErrFileNotFound indicates the requested file cannot be opened.
	ErrFileNotFound

	// ErrIllegalCommand indicates an unrecognized command string.
	ErrIllegalCommand

	// ErrAccept indicates the listener failed to accept. Fatal to the service.
	ErrAccept

	// ErrFork indicates a worker could not be spawned. Recoverable.
	ErrFork
)

// String returns the taxonomy name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrRequestTooLarge:
		return "RequestTooLarge"
	case ErrMalformedRequest:
		return "MalformedRequest"
	case ErrRead:
		return "ReadError"
	case ErrWrite:
		return "WriteError"
	case ErrNoSuchHost:
		return "NoSuchHost"
	case ErrConnect:
		return "ConnectError"
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrIllegalCommand:
		return "IllegalCommand"
	case ErrAccept:
		return "AcceptFailure"
	case ErrFork:
		return "ForkFailure"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// ExitStatus returns the worker exit status associated with the code.
func (c ErrorCode) ExitStatus() int {
	switch c {
	case ErrFileNotFound, ErrIllegalCommand:
		return ExitOK
	case ErrNoSuchHost, ErrConnect:
		return ExitDataChannel
	default:
		return ExitFailure
	}
}

// Worker exit statuses. They match the exit codes of the command-line
// server so scripts can treat both the same way.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitDataChannel = 2
)

// Error is a classified protocol error.
type Error struct {
	Code ErrorCode
	Op   string // operation that failed, e.g. "read request"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so the sentinels below work with
// errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError returns an *Error for code wrapping cause.
func NewError(code ErrorCode, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Sentinels for errors.Is.
var (
	RequestTooLarge  = &Error{Code: ErrRequestTooLarge}
	MalformedRequest = &Error{Code: ErrMalformedRequest}
	ReadError        = &Error{Code: ErrRead}
	WriteError       = &Error{Code: ErrWrite}
	NoSuchHost       = &Error{Code: ErrNoSuchHost}
	ConnectError     = &Error{Code: ErrConnect}
	FileNotFound     = &Error{Code: ErrFileNotFound}
	IllegalCommand   = &Error{Code: ErrIllegalCommand}
	AcceptFailure    = &Error{Code: ErrAccept}
	ForkFailure      = &Error{Code: ErrFork}
)

// CodeOf extracts the ErrorCode from err. Unclassified errors report false.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// ExitStatus maps err to a worker exit status: 0 for success and clean
// rejections, 2 for data channel failures, 1 for everything else.
func ExitStatus(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := CodeOf(err); ok {
		return code.ExitStatus()
	}
	return ExitFailure
}
