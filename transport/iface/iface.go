// Package iface defines the external collaborator contracts the transport
// core consumes: the serializer, the buffer allocator, and the cooperative
// execution context. Concrete bindings live in transport/codec,
// transport/bufpool, and transport/loop respectively. The core (transport/conn,
// transport/local, transport) reaches the serializer and allocator only
// through these interfaces; as its execution context it takes the concrete
// *loop.Loop.
package iface

import (
	"io"
	"time"
)

// Serializer converts typed values to and from byte streams. Type tagging
// is opaque to the core: TypeKeyOf recovers the routing key a prior
// WriteObject call would have embedded for a value of v's concrete type,
// used to key the handler registry without runtime-class introspection
// leaking into transport/conn.
type Serializer interface {
	// WriteObject serializes v to w.
	WriteObject(v any, w io.Writer) error
	// ReadObject deserializes the next value from r.
	ReadObject(r io.Reader) (any, error)
	// TypeKeyOf returns the registered routing key for v's concrete type.
	// ok is false if the type was never registered.
	TypeKeyOf(v any) (key uint16, ok bool)
}

// Buffer is a reference-counted byte buffer with a write cursor. Release
// must be called exactly once per Allocate/Retain to return the buffer to
// its pool.
type Buffer interface {
	// Bytes returns the buffer's current contents.
	Bytes() []byte
	// Write appends p, growing the buffer as needed.
	Write(p []byte) (int, error)
	// Retain increments the reference count.
	Retain()
	// Release decrements the reference count, returning the buffer to its
	// pool once it reaches zero.
	Release()
}

// Allocator produces pooled, reference-counted Buffers.
type Allocator interface {
	Allocate(hint int) Buffer
}

// Executor runs a task, asynchronously, on its owning context.
type Executor interface {
	Execute(fn func())
}

// Scheduled is a handle to a periodic task registered via Context.Schedule.
type Scheduled interface {
	Cancel()
}

// Context is a single-threaded cooperative task executor plus a periodic
// scheduler. Every public entry point of Connection, Server, and Client
// requires the caller to be operating on one.
type Context interface {
	Executor() Executor
	Schedule(initial, period time.Duration, task func()) Scheduled
}
