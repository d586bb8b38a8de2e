// Package loop implements the default transport/iface.Context: a
// single-threaded cooperative executor backed by one goroutine, plus a
// ticker-driven periodic scheduler. Every public Connection/Server/Client
// entry point requires the caller to present a context.Context produced by
// (or derived from a task scheduled on) a Loop; From recovers it.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackshare/clustercomm/transport/iface"
)

type ctxKey struct{}

// Loop is a single-threaded task executor plus periodic scheduler. The
// zero Loop is not usable; construct with New.
type Loop struct {
	tasks   chan func()
	stopCh  chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New starts a Loop with a task queue of the given depth. A depth of 0
// means sends block until the loop goroutine is ready to accept them.
func New(queueDepth int) *Loop {
	l := &Loop{
		tasks:  make(chan func(), queueDepth),
		stopCh: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.stopCh:
			// Drain whatever is already queued before exiting so
			// in-flight Execute calls observe their task run.
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Context returns a context.Context that identifies l as its owning Loop.
// Pass it to Loop-affine APIs (Connection.Send, Server.Listen, ...) to
// satisfy their "must be called on a known context" requirement.
func (l *Loop) Context() context.Context {
	return context.WithValue(context.Background(), ctxKey{}, l)
}

// Attach returns a copy of parent that additionally identifies l as its
// owning Loop, preserving whatever else parent carries (e.g. an inbound
// trace span). Use this instead of Context() when a non-empty parent
// context (such as one derived from decoding a wire trace header) needs to
// carry Loop affinity too.
func Attach(parent context.Context, l *Loop) context.Context {
	return context.WithValue(parent, ctxKey{}, l)
}

// From recovers the owning Loop from ctx, or nil if ctx was not derived
// from a Loop's Context (or a task the Loop itself scheduled).
func From(ctx context.Context) *Loop {
	l, _ := ctx.Value(ctxKey{}).(*Loop)
	return l
}

// Executor returns l itself (Loop implements iface.Executor), satisfying
// iface.Context.
func (l *Loop) Executor() iface.Executor { return l }

// Execute posts fn to run on l's goroutine and returns immediately. Safe
// to call from any goroutine, including l's own. A no-op after Stop.
func (l *Loop) Execute(fn func()) {
	if l.stopped.Load() {
		return
	}
	select {
	case l.tasks <- fn:
	case <-l.stopCh:
	}
}

// Run posts fn to l, passing a context.Context identifying l, and blocks
// the calling goroutine until fn returns.
func (l *Loop) Run(fn func(context.Context)) {
	done := make(chan struct{})
	l.Execute(func() {
		defer close(done)
		fn(l.Context())
	})
	<-done
}

// Scheduled cancels a periodic task registered with Schedule.
type Scheduled struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Cancel stops future firings. Idempotent; safe to call more than once and
// from any goroutine.
func (s *Scheduled) Cancel() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Schedule runs task on l's goroutine once after initial, then every
// period, until the returned Scheduled is cancelled. Satisfies
// iface.Context.Schedule.
//
// Unlike Execute, the periodic post below also selects on s.stop rather
// than going through l.Execute directly: Cancel can be called from a task
// already running on l's own goroutine (Connection.Close does exactly
// this), and if l's task queue is momentarily full, a plain l.Execute
// would block this goroutine on the send while l's goroutine blocks on
// Cancel's wg.Wait — each waiting on the other. Racing the send against
// s.stop lets a concurrent Cancel unblock this goroutine immediately,
// so Cancel's wg.Wait() always returns regardless of queue depth.
func (l *Loop) Schedule(initial, period time.Duration, task func()) iface.Scheduled {
	s := &Scheduled{stop: make(chan struct{})}
	post := func() (ok bool) {
		select {
		case l.tasks <- task:
			return true
		case <-l.stopCh:
			return false
		case <-s.stop:
			return false
		}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(initial)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.stop:
			return
		}
		if !post() {
			return
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !post() {
					return
				}
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Stop drains and halts the loop goroutine, blocking until it has exited.
// Idempotent.
func (l *Loop) Stop() {
	if l.stopped.CompareAndSwap(false, true) {
		close(l.stopCh)
	}
	l.wg.Wait()
}
