// Package telemetry implements the wire trace-propagation header described
// in SPEC_FULL.md §3: a 1-byte trace-flags field immediately following a
// REQUEST frame's request-id, carrying a W3C trace-id/span-id pair when
// tracing is enabled. It wraps internal/telemetry's OpenTelemetry tracer so
// transport/conn never imports the SDK directly.
package telemetry

import (
	"context"
	"encoding/hex"
	"fmt"

	itelemetry "github.com/hackshare/clustercomm/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Flag values for the trace-flags byte.
const (
	FlagAbsent  byte = 0x00
	FlagPresent byte = 0x01
)

// HeaderLen is the byte width of a present trace header: 16-byte trace-id
// plus 8-byte span-id, not counting the leading flag byte.
const HeaderLen = 16 + 8

// StartSendSpan starts a span around an outbound send and returns the
// header bytes to embed in the REQUEST envelope (nil if tracing is
// disabled for ctx).
func StartSendSpan(ctx context.Context, requestID uint64) (context.Context, trace.Span, []byte) {
	if !itelemetry.IsEnabled() {
		return ctx, trace.SpanFromContext(ctx), nil
	}
	ctx, span := itelemetry.StartSpan(ctx, "clustercomm.send",
		trace.WithAttributes())
	sc := span.SpanContext()
	if !sc.HasTraceID() || !sc.HasSpanID() {
		return ctx, span, nil
	}
	hdr := make([]byte, HeaderLen)
	tid := sc.TraceID()
	sid := sc.SpanID()
	copy(hdr[0:16], tid[:])
	copy(hdr[16:24], sid[:])
	return ctx, span, hdr
}

// DecodeHeader parses a trace-flags byte plus optional header bytes from an
// inbound REQUEST frame and returns a context carrying the remote span, if
// any.
func DecodeHeader(ctx context.Context, flag byte, hdr []byte) context.Context {
	if flag != FlagPresent || len(hdr) < HeaderLen {
		return ctx
	}
	var tid trace.TraceID
	var sid trace.SpanID
	copy(tid[:], hdr[0:16])
	copy(sid[:], hdr[16:24])
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// FormatSpanContext renders a span's trace/span IDs for logging.
func FormatSpanContext(span trace.Span) string {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return ""
	}
	tid, sid := sc.TraceID(), sc.SpanID()
	return fmt.Sprintf("trace=%s span=%s", hex.EncodeToString(tid[:]), hex.EncodeToString(sid[:]))
}
