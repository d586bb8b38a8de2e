package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for transport and wire-RPC spans. These follow
// OpenTelemetry semantic conventions where applicable.
const (
	AttrConnID      = "transport.conn_id"
	AttrRemoteAddr  = "transport.remote_addr"
	AttrLocalAddr   = "transport.local_addr"
	AttrRequestID   = "transport.request_id"
	AttrKind        = "transport.kind"     // request, response, connect
	AttrStatus      = "transport.status"   // success, failure
	AttrTypeKey     = "transport.type_key" // serializer type-key
	AttrFrameLen    = "transport.frame_len"
	AttrTransport   = "transport.backend" // network, local
	AttrServerID    = "transport.server_id"
	AttrClientID    = "transport.client_id"
	AttrPendingSize = "transport.pending_size"
)

// Span names for connection lifecycle and request operations.
const (
	SpanConnectionSend    = "conn.send"
	SpanConnectionDispatch = "conn.dispatch"
	SpanConnectionClose   = "conn.close"
	SpanClientConnect     = "client.connect"
	SpanServerAccept      = "server.accept"
)

// ConnID returns an attribute for the connection identifier.
func ConnID(id string) attribute.KeyValue {
	return attribute.String(AttrConnID, id)
}

// RemoteAddr returns an attribute for the peer address.
func RemoteAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrRemoteAddr, addr)
}

// LocalAddr returns an attribute for the local bound address.
func LocalAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrLocalAddr, addr)
}

// RequestID returns an attribute for the wire request-id.
func RequestID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrRequestID, int64(id))
}

// Kind returns an attribute for the envelope kind.
func Kind(kind string) attribute.KeyValue {
	return attribute.String(AttrKind, kind)
}

// Status returns an attribute for response status.
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// TypeKey returns an attribute for a serializer type-key.
func TypeKey(key uint16) attribute.KeyValue {
	return attribute.Int64(AttrTypeKey, int64(key))
}

// FrameLen returns an attribute for a frame's decoded length.
func FrameLen(n int) attribute.KeyValue {
	return attribute.Int(AttrFrameLen, n)
}

// TransportBackend returns an attribute naming which transport backend is in play.
func TransportBackend(name string) attribute.KeyValue {
	return attribute.String(AttrTransport, name)
}

// ServerID returns an attribute for a server/listener identifier.
func ServerID(id string) attribute.KeyValue {
	return attribute.String(AttrServerID, id)
}

// ClientID returns an attribute for a client identifier.
func ClientID(id string) attribute.KeyValue {
	return attribute.String(AttrClientID, id)
}

// PendingSize returns an attribute for the size of a connection's pending map.
func PendingSize(n int) attribute.KeyValue {
	return attribute.Int(AttrPendingSize, n)
}

// StartSendSpan starts a span around a Connection.send call.
func StartSendSpan(ctx context.Context, connID string, requestID uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ConnID(connID), RequestID(requestID)}, attrs...)
	return StartSpan(ctx, SpanConnectionSend, trace.WithAttributes(allAttrs...))
}

// StartDispatchSpan starts a span around inbound REQUEST handler dispatch.
func StartDispatchSpan(ctx context.Context, connID string, requestID uint64, typeKey uint16, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ConnID(connID), RequestID(requestID), TypeKey(typeKey)}, attrs...)
	return StartSpan(ctx, SpanConnectionDispatch, trace.WithAttributes(allAttrs...))
}

// StartConnectSpan starts a span around Client.connect.
func StartConnectSpan(ctx context.Context, remoteAddr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{RemoteAddr(remoteAddr)}, attrs...)
	return StartSpan(ctx, SpanClientConnect, trace.WithAttributes(allAttrs...))
}

// StartAcceptSpan starts a span around a Server's handling of one inbound connection.
func StartAcceptSpan(ctx context.Context, serverID, remoteAddr string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ServerID(serverID), RemoteAddr(remoteAddr)}, attrs...)
	return StartSpan(ctx, SpanServerAccept, trace.WithAttributes(allAttrs...))
}
