// Package future implements the completion primitive returned by every
// asynchronous transport operation (Connection.Send, Server.Listen,
// Client.Connect, Connection.Close, ...).
//
// A Future is bound to an iface.Executor at creation. Every callback
// registered with OnComplete — and every listener notified because of a
// completion — runs by being posted through that executor, so a future
// registered from context C always completes on C, regardless of which
// goroutine (I/O thread, another context) discovered the result.
package future

import (
	"context"
	"sync"

	"github.com/hackshare/clustercomm/transport/iface"
)

// Future is a write-once, multi-observer completion slot.
type Future struct {
	done chan struct{}
	val  any
	err  error

	mu        sync.Mutex
	exec      iface.Executor
	callbacks []func(any, error)
}

// New creates an unresolved Future whose completions and callbacks run on
// exec.
func New(exec iface.Executor) *Future {
	return &Future{
		done: make(chan struct{}),
		exec: exec,
	}
}

// Complete resolves the future with (val, err). A no-op if already
// resolved — the first call wins. Queued OnComplete callbacks are posted
// through the bound executor.
func (f *Future) Complete(val any, err error) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	f.val, f.err = val, err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb := cb
		f.exec.Execute(func() { cb(f.val, f.err) })
	}
}

// OnComplete registers fn to run, via the bound executor, once the future
// resolves. If already resolved, fn is posted immediately.
func (f *Future) OnComplete(fn func(val any, err error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		f.exec.Execute(func() { fn(f.val, f.err) })
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Wait blocks the calling goroutine until the future resolves or ctx is
// done, whichever comes first. Unlike OnComplete, this does not hop
// through the bound executor — it's for tests and synchronous callers
// that are not themselves running on a Loop.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the future has resolved.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
