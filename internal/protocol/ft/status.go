package ft

import (
	"io"
	"strings"
)

// Status is a control connection reply, sent followed by Marker.
type Status string

const (
	StatusContinue       Status = "Continue"
	StatusFileNotFound   Status = "File not found."
	StatusIllegalCommand Status = "Illegal Command."
)

// OK reports whether the status announces an incoming data connection.
func (s Status) OK() bool { return s == StatusContinue }

// Encode returns the wire form of s.
func (s Status) Encode() []byte {
	return []byte(string(s) + Marker)
}

// WriteStatus writes s to the control connection. Short writes are retried
// through the chunked sender, and failures are ErrWrite.
func WriteStatus(w io.Writer, s Status) error {
	_, err := SendChunked(w, s.Encode(), DefaultChunkSize)
	return err
}

// StatusFor returns the status reported to the peer for a rejection error,
// or false when err is not reported on the control connection.
func StatusFor(err error) (Status, bool) {
	code, ok := CodeOf(err)
	if !ok {
		return "", false
	}
	switch code {
	case ErrFileNotFound:
		return StatusFileNotFound, true
	case ErrIllegalCommand, ErrMalformedRequest, ErrRequestTooLarge:
		return StatusIllegalCommand, true
	default:
		return "", false
	}
}

// ReadStatus reads one marker-terminated status from r.
func ReadStatus(r io.Reader, maxSize int) (Status, error) {
	body, err := ReadUntilMarker(r, maxSize)
	if err != nil {
		return "", err
	}
	return Status(strings.TrimSpace(string(body))), nil
}
