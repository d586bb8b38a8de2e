package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the transport core.
// Use these keys consistently so log aggregation and querying stay uniform
// across the network and local transports.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Connection identity
	KeyConnID     = "conn_id"     // Connection identifier
	KeyRemoteAddr = "remote_addr" // Peer address (host:port)
	KeyLocalAddr  = "local_addr"  // Local bound address

	// Request/response correlation
	KeyRequestID  = "request_id"  // Wire request-id (monotonic per connection)
	KeyKind       = "kind"        // Envelope kind: request, response, connect
	KeyStatus     = "status"      // Response status: success, failure
	KeyTypeKey    = "type_key"    // Serializer type-key routed to a handler
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds

	// Framing
	KeyFrameLen = "frame_len" // Decoded frame length in bytes

	// Errors
	KeyError     = "error"      // Error message
	KeyErrorKind = "error_kind" // Error kind: transport, timeout, closed, ...

	// Pending/reaper bookkeeping
	KeyPendingCount = "pending_count" // Size of the pending request map
	KeyReaped       = "reaped"        // Number of entries reaped this tick
)

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ConnID returns a slog.Attr for the connection identifier
func ConnID(id string) slog.Attr {
	return slog.String(KeyConnID, id)
}

// RemoteAddr returns a slog.Attr for the peer address
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// LocalAddr returns a slog.Attr for the local bound address
func LocalAddr(addr string) slog.Attr {
	return slog.String(KeyLocalAddr, addr)
}

// RequestID returns a slog.Attr for the wire request-id
func RequestID(id uint64) slog.Attr {
	return slog.Uint64(KeyRequestID, id)
}

// Kind returns a slog.Attr for the envelope kind
func Kind(kind string) slog.Attr {
	return slog.String(KeyKind, kind)
}

// Status returns a slog.Attr for the response status
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// TypeKey returns a slog.Attr for a serializer type-key
func TypeKey(key uint16) slog.Attr {
	return slog.Any(KeyTypeKey, key)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// FrameLen returns a slog.Attr for a decoded frame length
func FrameLen(n int) slog.Attr {
	return slog.Int(KeyFrameLen, n)
}

// Err returns a slog.Attr for an error. Returns a zero-value Attr (dropped
// by slog) when err is nil, so callers can pass it unconditionally.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr for a named error kind
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// PendingCount returns a slog.Attr for the pending request map size
func PendingCount(n int) slog.Attr {
	return slog.Int(KeyPendingCount, n)
}

// Reaped returns a slog.Attr for the number of entries reaped this tick
func Reaped(n int) slog.Attr {
	return slog.Int(KeyReaped, n)
}
