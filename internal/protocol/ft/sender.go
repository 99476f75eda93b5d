package ft

import (
	"io"
)

// DefaultChunkSize is the largest single write on a connection.
const DefaultChunkSize = 1000

// maxStalledWrites bounds consecutive zero-byte writes that report no error.
const maxStalledWrites = 100

// SendResult reports what a send put on the wire.
type SendResult struct {
	Bytes  int
	Chunks int
}

// SendChunked writes payload to w in writes of at most chunkSize bytes.
//
// A partial write is continued from where it stopped before the next chunk
// starts, so every byte is written exactly once and in order. Chunking only
// bounds the size of each call; delivery guarantees are the transport's.
//
// Write failures return the progress made so far and an ErrWrite error.
func SendChunked(w io.Writer, payload []byte, chunkSize int) (SendResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var res SendResult
	for res.Bytes < len(payload) {
		end := res.Bytes + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		stalled := 0
		for res.Bytes < end {
			n, err := w.Write(payload[res.Bytes:end])
			if n < 0 || n > end-res.Bytes {
				return res, NewError(ErrWrite, "send chunk", io.ErrShortWrite)
			}
			res.Bytes += n
			if err != nil {
				return res, NewError(ErrWrite, "send chunk", err)
			}
			if n == 0 {
				stalled++
				if stalled >= maxStalledWrites {
					return res, NewError(ErrWrite, "send chunk", io.ErrShortWrite)
				}
				continue
			}
			stalled = 0
		}
		res.Chunks++
	}
	return res, nil
}

// SendPayload sends p followed by Marker.
func SendPayload(w io.Writer, p Payload, chunkSize int) (SendResult, error) {
	return SendChunked(w, p.Framed(), chunkSize)
}
