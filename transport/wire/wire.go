// Package wire implements the length-prefixed frame codec: a 2-byte
// big-endian length prepended to every outbound message, bounded at 32 KiB.
// The codec never splits or merges logical messages — one upcall per frame.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hackshare/clustercomm/transport/errs"
)

// MaxFrameSize is the largest body a single frame may carry, per spec:
// 32768 bytes, below the 65535 the 16-bit length prefix could express.
const MaxFrameSize = 32768

// LengthPrefixSize is the width, in bytes, of the frame length prefix.
const LengthPrefixSize = 2

// WriteFrame prepends a 2-byte big-endian length to payload and writes
// both to w in a single call sequence. payload must be 1..MaxFrameSize
// bytes; violating that is a ProtocolError and nothing is written.
func WriteFrame(w io.Writer, payload []byte) error {
	n := len(payload)
	if n == 0 || n > MaxFrameSize {
		return errs.New(errs.KindProtocol, fmt.Sprintf("frame size %d out of bounds (1..%d)", n, MaxFrameSize))
	}
	var hdr [LengthPrefixSize]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(n))
	if _, err := w.Write(hdr[:]); err != nil {
		return errs.Wrap(errs.KindTransport, "write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errs.Wrap(errs.KindTransport, "write frame body", err)
	}
	return nil
}

// Reader accumulates bytes from an underlying stream and emits exactly one
// complete frame body per ReadFrame call.
type Reader struct {
	r io.Reader
}

// NewReader wraps r for frame-at-a-time reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame blocks until a complete frame has arrived, then returns its
// body (the length prefix stripped). A length exceeding MaxFrameSize is a
// fatal ProtocolError for the underlying channel; the caller should close
// it. io.EOF (possibly wrapped in io.ErrUnexpectedEOF mid-frame) propagates
// unwrapped so callers can distinguish a clean close from a truncated one.
func (fr *Reader) ReadFrame() ([]byte, error) {
	var hdr [LengthPrefixSize]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(hdr[:])
	if length == 0 {
		return nil, errs.New(errs.KindProtocol, "frame length is zero")
	}
	if int(length) > MaxFrameSize {
		return nil, errs.New(errs.KindProtocol, fmt.Sprintf("frame length %d exceeds max %d", length, MaxFrameSize))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, err
	}
	return body, nil
}
