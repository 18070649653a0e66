// Package transport implements the length-prefixed peer-to-peer
// messaging fabric: a frame codec, a multi-connection inbound server,
// and a per-peer reconnecting outbound client. It is grounded on the
// teacher's channel-per-connection style (pkg/mcast/core/transport.go's
// poll/consume split) and on the plain net.Conn accept/read loops
// shown across the retrieved pack (e.g. neo-go's listenTCP/
// handleConnection).
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// DefaultMaxFrameSize is the 1 MiB ceiling used as the default
// maximum frame size.
const DefaultMaxFrameSize = 1 << 20

const lengthPrefixSize = 4

// FramingError marks a malformed length prefix, an oversize frame, or
// a short read. This always means the connection is unrecoverable and
// must be closed.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "transport: framing error: " + e.Reason
}

// EncodeFrame prepends the 4-byte big-endian length prefix to
// payload. Zero-length payloads are legal and encode to just the
// 4-byte zero prefix.
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)
	return frame
}

// ReadFrame reads exactly one length-prefixed frame from r. It
// returns a *FramingError when the length prefix cannot be read in
// full, exceeds maxFrameSize, or the payload itself is truncated
// (the remote closed mid-frame). io.EOF on the very first byte of the
// length prefix is returned unwrapped so callers can distinguish
// "peer closed cleanly between frames" from a mid-frame break. A read
// deadline expiring before any frame data arrives is also returned
// unwrapped (still satisfying net.Error) so a caller polling an idle
// connection on a read deadline can tell a timeout apart from a
// genuine framing failure and keep the connection open.
func ReadFrame(r io.Reader, maxFrameSize int) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if n, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF || (n == 0 && isTimeout(err)) {
			return nil, err
		}
		return nil, &FramingError{Reason: fmt.Sprintf("short length prefix: %v", err)}
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if int(length) > maxFrameSize {
		return nil, &FramingError{Reason: fmt.Sprintf("frame size %d exceeds maximum %d", length, maxFrameSize)}
	}
	if length == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FramingError{Reason: fmt.Sprintf("short payload read: %v", err)}
	}
	return payload, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
