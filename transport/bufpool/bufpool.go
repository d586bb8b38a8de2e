// Package bufpool implements the default transport/iface.Allocator: a
// tiered, reference-counted Buffer built on top of pkg/bufpool's
// small/medium/large byte-slice pools.
//
// A Buffer starts life with a reference count of 1 from Allocate. Writing
// it to the wire or handing it to a user consumes that reference; Retain
// adds one for a second consumer (e.g. a response handler that both writes
// a frame and logs the payload). The underlying []byte returns to
// pkg/bufpool only once the count reaches zero, satisfying the release
// rule in the connection's data-model invariants.
package bufpool

import (
	"sync"
	"sync/atomic"

	"github.com/hackshare/clustercomm/pkg/bufpool"
	"github.com/hackshare/clustercomm/transport/iface"
)

// Buffer is a pooled, reference-counted byte buffer with a write cursor.
type Buffer struct {
	data []byte
	refs atomic.Int32
	pool *Allocator
}

// Bytes returns the buffer's current contents (length equals bytes
// written so far, capacity may exceed it).
func (b *Buffer) Bytes() []byte { return b.data }

// Write appends p to the buffer, growing it (outside the pool) if needed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// Retain increments the reference count by one.
func (b *Buffer) Retain() {
	b.refs.Add(1)
}

// Release decrements the reference count; at zero the backing slice is
// returned to the pool and the Buffer must not be used again.
func (b *Buffer) Release() {
	if b.refs.Add(-1) == 0 && b.pool != nil {
		bufpool.Put(b.data)
		b.data = nil
		pool := b.pool
		b.pool = nil
		pool.bufs.Put(b)
	}
}

// Allocator is the default transport/iface.Allocator binding.
type Allocator struct {
	bufs sync.Pool
}

// NewAllocator constructs an Allocator. A single Allocator should be
// shared by all connections owned by one Transport.
func NewAllocator() *Allocator {
	a := &Allocator{}
	a.bufs.New = func() any { return &Buffer{} }
	return a
}

// Allocate returns a Buffer with a zero-length backing slice of at least
// hint capacity (the matching tier's size) drawn from the tiered pool, and
// a reference count of 1.
// Satisfies iface.Allocator.
func (a *Allocator) Allocate(hint int) iface.Buffer {
	b := a.bufs.Get().(*Buffer)
	b.data = bufpool.Get(hint)[:0]
	b.pool = a
	b.refs.Store(1)
	return b
}

var _ iface.Allocator = (*Allocator)(nil)
