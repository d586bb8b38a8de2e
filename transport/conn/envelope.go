package conn

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hackshare/clustercomm/transport/errs"
	"github.com/hackshare/clustercomm/transport/telemetry"
)

// Envelope kind bytes, per the wire protocol.
const (
	kindRequest byte = 0x01
	kindResponse byte = 0x02
	kindConnect  byte = 0x10
)

// Response status bytes.
const (
	statusSuccess byte = 0x03
	statusFailure byte = 0x04
)

// encodeConnect builds a CONNECT frame body: kind, 4-byte length, UTF-8
// identifier.
func encodeConnect(id string) []byte {
	idBytes := []byte(id)
	buf := make([]byte, 1+4+len(idBytes))
	buf[0] = kindConnect
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(idBytes)))
	copy(buf[5:], idBytes)
	return buf
}

// decodeConnect parses a CONNECT frame body (kind byte already consumed by
// the caller) and returns the client identifier.
func decodeConnect(body []byte) (string, error) {
	if len(body) < 4 {
		return "", errs.New(errs.KindProtocol, "malformed CONNECT: missing length")
	}
	n := binary.BigEndian.Uint32(body[0:4])
	if uint32(len(body)-4) != n {
		return "", errs.New(errs.KindProtocol, "malformed CONNECT: length mismatch")
	}
	return string(body[4:]), nil
}

// requestHeader holds the fixed-width fields of a REQUEST envelope ahead
// of the serialized payload.
type requestHeader struct {
	id        uint64
	traceFlag byte
	traceHdr  []byte // len == telemetry.HeaderLen when traceFlag == FlagPresent
}

func writeRequestHeader(w io.Writer, h requestHeader) {
	hdr := make([]byte, 0, 9+len(h.traceHdr))
	hdr = append(hdr, kindRequest)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], h.id)
	hdr = append(hdr, idBytes[:]...)
	hdr = append(hdr, h.traceFlag)
	if h.traceFlag == telemetry.FlagPresent {
		hdr = append(hdr, h.traceHdr...)
	}
	_, _ = w.Write(hdr)
}

// readRequestHeader parses the fixed-width fields of a REQUEST body (the
// kind byte already consumed) and returns the header plus the remaining
// bytes (the serialized payload).
func readRequestHeader(body []byte) (requestHeader, []byte, error) {
	if len(body) < 9 {
		return requestHeader{}, nil, errs.New(errs.KindProtocol, "malformed REQUEST: too short")
	}
	h := requestHeader{
		id:        binary.BigEndian.Uint64(body[0:8]),
		traceFlag: body[8],
	}
	rest := body[9:]
	if h.traceFlag == telemetry.FlagPresent {
		if len(rest) < telemetry.HeaderLen {
			return requestHeader{}, nil, errs.New(errs.KindProtocol, "malformed REQUEST: truncated trace header")
		}
		h.traceHdr = rest[:telemetry.HeaderLen]
		rest = rest[telemetry.HeaderLen:]
	}
	return h, rest, nil
}

// writeResponseHeader writes the fixed-width RESPONSE header: kind, id,
// status, and (meaningful only when status is statusFailure) the error
// Kind that produced it, so a FAILURE response round-trips as a typed
// error on the requesting side instead of collapsing to a bare string.
func writeResponseHeader(w io.Writer, id uint64, status byte, kind errs.Kind) {
	hdr := make([]byte, 9)
	hdr[0] = kindResponse
	binary.BigEndian.PutUint64(hdr[1:9], id)
	_, _ = w.Write(hdr[:9])
	_, _ = w.Write([]byte{status, byte(kind)})
}

// readResponseHeader parses a RESPONSE body (kind byte already consumed).
func readResponseHeader(body []byte) (id uint64, status byte, kind errs.Kind, rest []byte, err error) {
	if len(body) < 10 {
		return 0, 0, 0, nil, errs.New(errs.KindProtocol, "malformed RESPONSE: too short")
	}
	id = binary.BigEndian.Uint64(body[0:8])
	status = body[8]
	if status != statusSuccess && status != statusFailure {
		return 0, 0, 0, nil, errs.New(errs.KindProtocol, fmt.Sprintf("malformed RESPONSE: unknown status %#x", status))
	}
	kind = errs.Kind(body[9])
	return id, status, kind, body[10:], nil
}
