package ft

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/ftserve/pkg/bufpool"
)

// Wire constants.
const (
	// RequestTerminator ends a request on the control connection.
	RequestTerminator byte = '*'

	// FieldSeparator separates request fields.
	FieldSeparator = "&"

	// Marker ends status messages and payloads.
	Marker = "@@@"

	// DefaultMaxRequestSize bounds a request frame, terminator included.
	DefaultMaxRequestSize = 1024

	// maxEmptyReads bounds consecutive zero-byte reads that report no error.
	maxEmptyReads = 100
)

// ReadFrame reads from r until sentinel and returns the bytes before it.
//
// Reads are opportunistic, so bytes following the sentinel in the same read
// are discarded: a control connection carries exactly one request. A
// zero-byte read without error is retried. The frame, sentinel included,
// may not exceed maxSize bytes.
//
// Errors are *Error values with code ErrRequestTooLarge or ErrRead.
func ReadFrame(r io.Reader, sentinel byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxRequestSize
	}

	buf := bufpool.Get(maxSize)
	defer bufpool.Put(buf)

	n, empty := 0, 0
	for n < maxSize {
		m, err := r.Read(buf[n:maxSize])
		if m > 0 {
			empty = 0
			if i := bytes.IndexByte(buf[n:n+m], sentinel); i >= 0 {
				frame := make([]byte, n+i)
				copy(frame, buf[:n+i])
				return frame, nil
			}
			n += m
		}

		switch {
		case errors.Is(err, io.EOF):
			return nil, NewError(ErrRead, "read frame", io.ErrUnexpectedEOF)
		case err != nil:
			return nil, NewError(ErrRead, "read frame", err)
		case m == 0:
			empty++
			if empty >= maxEmptyReads {
				return nil, NewError(ErrRead, "read frame", io.ErrNoProgress)
			}
		}
	}

	return nil, NewError(ErrRequestTooLarge, "read frame",
		fmt.Errorf("no terminator %q within %d bytes", sentinel, maxSize))
}

// ReadRequest reads one request frame from r and decodes it.
func ReadRequest(r io.Reader, maxSize int) (*Request, error) {
	frame, err := ReadFrame(r, RequestTerminator, maxSize)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(string(frame))
}
