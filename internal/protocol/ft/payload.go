package ft

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/ftserve/pkg/bufpool"
)

// Payload is the body carried by the data connection.
type Payload struct {
	Body []byte
}

// Framed returns the body followed by Marker.
//
// A body that itself contains Marker is sent unchanged; receivers stop at the
// first marker, so such content arrives truncated.
func (p Payload) Framed() []byte {
	out := make([]byte, 0, len(p.Body)+len(Marker))
	out = append(out, p.Body...)
	return append(out, Marker...)
}

// Len returns the number of bytes on the wire, marker included.
func (p Payload) Len() int { return len(p.Body) + len(Marker) }

// ListingPayload renders directory entries one per line.
func ListingPayload(entries []string) Payload {
	if len(entries) == 0 {
		return Payload{}
	}
	return Payload{Body: []byte(strings.Join(entries, "\n") + "\n")}
}

// ParseListing splits a listing payload back into entry names.
func ParseListing(body []byte) []string {
	text := strings.TrimRight(string(body), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ErrPayloadTooLarge is returned by ReadUntilMarker when limit is exceeded.
var ErrPayloadTooLarge = errors.New("payload exceeds limit")

// ReadUntilMarker reads r until the first Marker and returns what came before
// it. If r ends before a marker appears, the bytes received so far are
// returned without error. A positive limit bounds the body size.
func ReadUntilMarker(r io.Reader, limit int) ([]byte, error) {
	chunk := bufpool.Get(bufpool.DefaultStreamSize)
	defer bufpool.Put(chunk)

	var body bytes.Buffer
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// Search from len(Marker)-1 bytes back so a marker split across
			// reads is still found.
			start := body.Len() - (len(Marker) - 1)
			if start < 0 {
				start = 0
			}
			body.Write(chunk[:n])
			if i := bytes.Index(body.Bytes()[start:], []byte(Marker)); i >= 0 {
				if limit > 0 && start+i > limit {
					return nil, NewError(ErrRead, "read payload", ErrPayloadTooLarge)
				}
				return body.Bytes()[:start+i], nil
			}
			if limit > 0 && body.Len() > limit+len(Marker) {
				return nil, NewError(ErrRead, "read payload", ErrPayloadTooLarge)
			}
		}
		if errors.Is(err, io.EOF) {
			return body.Bytes(), nil
		}
		if err != nil {
			return nil, NewError(ErrRead, "read payload", fmt.Errorf("after %d bytes: %w", body.Len(), err))
		}
	}
}
