// Package errs defines the error kinds used across the transport core.
//
// Every error surfaced to a caller wraps one of the Kind values below so
// callers can branch with errors.Is against the sentinel for that kind,
// and recover the underlying cause (if any) with errors.As/errors.Unwrap.
package errs

import "fmt"

// Kind identifies the category of a transport error.
type Kind int

const (
	// KindTransport indicates an underlying I/O failure: write, read,
	// connect, or bind. Latched into a Connection's failure slot.
	KindTransport Kind = iota
	// KindTimeout indicates a request's 500ms deadline elapsed with no
	// response.
	KindTimeout
	// KindClosed indicates an operation against a connection that has
	// already torn down, or a pending request surfaced at close.
	KindClosed
	// KindUnknownMessageType indicates no handler was registered for an
	// inbound request's payload type.
	KindUnknownMessageType
	// KindProtocol indicates a malformed frame: oversize length or an
	// unrecognized envelope kind byte. Fatal for the channel it occurred on.
	KindProtocol
	// KindArgument indicates a caller contract violation: a nil required
	// argument, a non-positive thread count, or a call made off a context.
	KindArgument
	// KindApplication indicates a handler resolved its future with an
	// error that was not one of the kinds above (an ordinary error from
	// user code). The wire carries this kind so a received FAILURE
	// response round-trips as a typed *Error rather than collapsing to an
	// untyped string on the requesting side.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindUnknownMessageType:
		return "unknown_message_type"
	case KindProtocol:
		return "protocol"
	case KindArgument:
		return "argument"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for every kind above. Two *Error values
// compare equal under errors.Is when their Kind matches, regardless of
// Msg/Cause — this lets callers test against a bare sentinel such as
// errs.Timeout while still carrying a descriptive, wrapped error in
// practice.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes *Error comparable against bare sentinels (Transport, Timeout,
// Closed, UnknownMessageType, Protocol, Argument) via errors.Is, matching
// only on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinels for errors.Is comparisons. None carry a Msg or Cause; use New
// or Wrap to build the descriptive error actually returned to callers.
var (
	Transport          = &Error{Kind: KindTransport}
	Timeout            = &Error{Kind: KindTimeout}
	Closed             = &Error{Kind: KindClosed}
	UnknownMessageType = &Error{Kind: KindUnknownMessageType}
	Protocol           = &Error{Kind: KindProtocol}
	Argument           = &Error{Kind: KindArgument}
	Application        = &Error{Kind: KindApplication}
)

// TimeoutErr returns a ready-to-use TimeoutError for a request id.
func TimeoutErr(requestID uint64) *Error {
	return New(KindTimeout, fmt.Sprintf("request %d timed out after 500ms", requestID))
}

// ClosedErr returns a ready-to-use ClosedError.
func ClosedErr(msg string) *Error {
	if msg == "" {
		msg = "connection closed"
	}
	return New(KindClosed, msg)
}

// UnknownMessageTypeErr returns a ready-to-use UnknownMessageType error for
// the given serializer type-key.
func UnknownMessageTypeErr(typeKey uint16) *Error {
	return New(KindUnknownMessageType, fmt.Sprintf("no handler registered for type-key %d", typeKey))
}
