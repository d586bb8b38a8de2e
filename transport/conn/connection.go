// Package conn implements the connection state machine: framing,
// request/response correlation by monotonic id, typed dispatch to
// per-type handlers, timeout reaping, and context-affine completions.
package conn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hackshare/clustercomm/internal/logger"
	"github.com/hackshare/clustercomm/transport/errs"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/iface"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
	"github.com/hackshare/clustercomm/transport/telemetry"
	"github.com/hackshare/clustercomm/transport/wire"
)

// requestTimeout is the per-request deadline from enqueue, per spec §4.2.
const requestTimeout = 500 * time.Millisecond

// reapPeriod is how often the reap timer fires, per spec §3/§4.4.
const reapPeriod = 250 * time.Millisecond

// HandlerFunc answers a REQUEST. It runs on the context that registered
// it (invariant 4), not the connection's owning context, and may complete
// asynchronously — the returned future only needs to resolve eventually,
// letting tests model a handler that "never completes" for the timeout
// scenario.
type HandlerFunc func(ctx context.Context, req any) *future.Future

// Channel is the minimal duplex byte stream a Connection drives. *net.TCPConn
// and the in-process pipe used by transport/local both satisfy it.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

type handlerEntry struct {
	fn  HandlerFunc
	ctx *loop.Loop
}

// Stats is a point-in-time snapshot of a connection's activity, exposed
// for the debug API and for tests asserting invariant 1 without racing the
// pending map directly.
type Stats struct {
	ID           string
	RemoteAddr   string
	Pending      int
	BytesSent    uint64
	BytesRecv    uint64
	LastActivity time.Time
}

// Connection is a per-peer duplex channel implementing the
// request/response protocol described in spec.md §4.2-§4.5.
type Connection struct {
	id         string
	channel    Channel
	remoteAddr string
	ownerCtx   *loop.Loop
	alloc      iface.Allocator
	ser        iface.Serializer
	metrics    *metrics.Recorder
	log        *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[uint16]handlerEntry

	pending *pendingMap
	nextID  atomic.Uint64

	failure    atomic.Pointer[errs.Error]
	closed     atomic.Bool
	userClosed atomic.Bool

	exceptionListeners *listenerSet
	closeListeners     *listenerSet

	reapSched iface.Scheduled

	writeMu     sync.Mutex
	closeOnce   sync.Once
	closeFuture *future.Future

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
	lastActiv atomic.Int64 // unix nanos
}

// New constructs a Connection over channel, owned by ownerCtx. Callers
// normally reach a Connection via Client.Connect or a Server's accept
// callback rather than calling New directly.
func New(channel Channel, remoteAddr string, ownerCtx *loop.Loop, alloc iface.Allocator, ser iface.Serializer, rec *metrics.Recorder) *Connection {
	c := &Connection{
		id:                 uuid.NewString(),
		channel:            channel,
		remoteAddr:         remoteAddr,
		ownerCtx:           ownerCtx,
		alloc:              alloc,
		ser:                ser,
		metrics:            rec,
		handlers:           make(map[uint16]handlerEntry),
		pending:            newPendingMap(),
		exceptionListeners: newListenerSet(),
		closeListeners:     newListenerSet(),
	}
	c.log = logger.With(logger.KeyConnID, c.id, logger.KeyRemoteAddr, remoteAddr)
	c.touch()
	c.metrics.ConnectionOpened()
	c.closeFuture = future.New(ownerCtx)
	c.reapSched = ownerCtx.Schedule(reapPeriod, reapPeriod, c.reap)
	return c
}

// ID returns the connection's opaque identifier, used in logs and by the
// debug API.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address recorded at handshake.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

func (c *Connection) touch() {
	c.lastActiv.Store(time.Now().UnixNano())
}

// Stats returns a point-in-time snapshot of connection activity.
func (c *Connection) Stats() Stats {
	return Stats{
		ID:           c.id,
		RemoteAddr:   c.remoteAddr,
		Pending:      c.pending.len(),
		BytesSent:    c.bytesSent.Load(),
		BytesRecv:    c.bytesRecv.Load(),
		LastActivity: time.Unix(0, c.lastActiv.Load()),
	}
}

// Send assigns a new monotonic request-id, serializes req, and writes a
// REQUEST frame. ctx must carry the caller's owning Loop (loop.From(ctx) !=
// nil) — the returned future's completions are posted through that Loop,
// satisfying context-affinity invariant 3.
func (c *Connection) Send(ctx context.Context, req any) (*future.Future, error) {
	if req == nil {
		return nil, errs.New(errs.KindArgument, "request must not be nil")
	}
	callerLoop := loop.From(ctx)
	if callerLoop == nil {
		return nil, errs.New(errs.KindArgument, "Send must be called from a context produced by a Loop")
	}

	fut := future.New(callerLoop)

	if c.closed.Load() {
		fut.Complete(nil, errs.ClosedErr(""))
		return fut, nil
	}
	if f := c.failure.Load(); f != nil {
		fut.Complete(nil, f)
		return fut, nil
	}

	ctx, span, traceHdr := telemetry.StartSendSpan(ctx, 0)

	c.ownerCtx.Execute(func() {
		defer span.End()
		if c.closed.Load() {
			fut.Complete(nil, errs.ClosedErr(""))
			return
		}
		if f := c.failure.Load(); f != nil {
			fut.Complete(nil, f)
			return
		}

		id := c.nextID.Add(1)

		flag := telemetry.FlagAbsent
		if traceHdr != nil {
			flag = telemetry.FlagPresent
		}
		buf := c.alloc.Allocate(64)
		defer buf.Release()
		writeRequestHeader(buf, requestHeader{id: id, traceFlag: flag, traceHdr: traceHdr})
		if err := c.ser.WriteObject(req, buf); err != nil {
			fut.Complete(nil, errs.Wrap(errs.KindTransport, "serialize request", err))
			return
		}

		if len(buf.Bytes()) > wire.MaxFrameSize {
			fut.Complete(nil, errs.New(errs.KindProtocol, fmt.Sprintf("request too large: %d bytes", len(buf.Bytes()))))
			return
		}

		if err := c.writeFrame(buf.Bytes()); err != nil {
			c.metrics.RecordSend("transport_error")
			fut.Complete(nil, errs.Wrap(errs.KindTransport, "write request frame", err))
			return
		}

		// Insert into pending only after the write was accepted, so a
		// request that never went out never spuriously times out.
		c.pending.insert(&pendingEntry{id: id, fut: fut, enqueued: time.Now()})
		c.metrics.SetPending(c.pending.len())
		c.metrics.RecordSend("ok")
	})

	return fut, nil
}

// Handler registers fn for typeKey, replacing any prior registration. All
// invocations of fn run on the context that called Handler — ctx must
// carry a Loop. A nil fn removes the registration. Returns c itself so
// registrations can be chained; unlike the source this implementation
// never returns nil (see DESIGN.md's resolution of the "likely a bug"
// open question).
func (c *Connection) Handler(ctx context.Context, typeKey uint16, fn HandlerFunc) (*Connection, error) {
	callerLoop := loop.From(ctx)
	if callerLoop == nil {
		return nil, errs.New(errs.KindArgument, "Handler must be called from a context produced by a Loop")
	}
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if fn == nil {
		delete(c.handlers, typeKey)
		return c, nil
	}
	c.handlers[typeKey] = handlerEntry{fn: fn, ctx: callerLoop}
	return c, nil
}

func (c *Connection) lookupHandler(typeKey uint16) (handlerEntry, bool) {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	e, ok := c.handlers[typeKey]
	return e, ok
}

// ExceptionListener registers fn to run when the connection latches a
// fatal error. If failure is already latched, fn runs synchronously
// before ExceptionListener returns.
func (c *Connection) ExceptionListener(fn func(err error)) *Handle {
	if f := c.failure.Load(); f != nil {
		fn(f)
	}
	return c.exceptionListeners.add(func(v any) { fn(v.(error)) })
}

// CloseListener registers fn to run when the connection closes. If already
// closed, fn runs synchronously before CloseListener returns.
func (c *Connection) CloseListener(fn func()) *Handle {
	if c.closed.Load() {
		fn()
	}
	return c.closeListeners.add(func(any) { fn() })
}

// Close initiates shutdown, idempotently. The returned future always
// resolves successfully, once the channel has reported closed, regardless
// of the cause. Closing a channel only ever signals EOF to the peer's read,
// never to the closer's own — so Close drives handleClosed directly rather
// than waiting for readLoop to observe one.
func (c *Connection) Close() *future.Future {
	c.closeOnce.Do(func() {
		c.userClosed.Store(true)
		c.ownerCtx.Execute(func() {
			_ = c.channel.Close()
			c.handleClosed()
		})
	})
	return c.closeFuture
}

// writeFrame serializes body as a length-prefixed frame on the channel,
// one writer at a time under writeMu. Close does not take writeMu; it tears
// the channel down from a task on the owning context, the same context that
// runs every writeFrame call, so a close initiated mid-write runs only after
// that write has finished (success or failure).
func (c *Connection) writeFrame(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := wire.WriteFrame(c.channel, body)
	if err == nil {
		c.bytesSent.Add(uint64(len(body) + wire.LengthPrefixSize))
		c.metrics.ObserveFrameSize(len(body))
		c.touch()
	}
	return err
}

// readLoop is the I/O goroutine: it parses frames and dispatches them,
// stateless per frame, then marshals any user-observable effect back onto
// the owning context. Started by Client.Connect / Server's accept path.
func (c *Connection) readLoop() {
	r := wire.NewReader(c.channel)
	for {
		body, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.handleClosed()
				return
			}
			if c.closed.Load() {
				// Close already closed our own end; this goroutine's read
				// merely observed that locally (net.Pipe and real sockets
				// report io.ErrClosedPipe/"use of closed connection" to the
				// closer, not io.EOF), nothing left to report.
				return
			}
			var pe *errs.Error
			if errors.As(err, &pe) && pe.Kind == errs.KindProtocol {
				c.handleException(pe)
				_ = c.channel.Close()
				return
			}
			c.handleException(errs.Wrap(errs.KindTransport, "read frame", err))
			return
		}
		c.bytesRecv.Add(uint64(len(body) + wire.LengthPrefixSize))
		c.touch()
		c.handleFrame(body)
	}
}

// handleFrame dispatches one inbound frame by its kind byte, per §4.3.
func (c *Connection) handleFrame(body []byte) {
	if len(body) == 0 {
		c.handleException(errs.New(errs.KindProtocol, "empty frame body"))
		return
	}
	kind := body[0]
	rest := body[1:]
	switch kind {
	case kindRequest:
		c.handleRequest(rest)
	case kindResponse:
		c.handleResponse(rest)
	default:
		c.handleException(errs.New(errs.KindProtocol, fmt.Sprintf("unknown envelope kind %#x", kind)))
	}
}

func (c *Connection) handleRequest(body []byte) {
	hdr, payload, err := readRequestHeader(body)
	if err != nil {
		c.handleException(err)
		return
	}
	rctx := telemetry.DecodeHeader(context.Background(), hdr.traceFlag, hdr.traceHdr)

	reqVal, err := c.ser.ReadObject(bytes.NewReader(payload))
	if err != nil {
		c.writeResponseAsync(hdr.id, nil, errs.Wrap(errs.KindTransport, "deserialize request", err))
		return
	}

	typeKey, ok := c.ser.TypeKeyOf(reqVal)
	if !ok {
		c.writeResponseAsync(hdr.id, nil, errs.UnknownMessageTypeErr(0))
		return
	}

	entry, ok := c.lookupHandler(typeKey)
	if !ok {
		c.metrics.RecordUnknownMessageType()
		c.writeResponseAsync(hdr.id, nil, errs.UnknownMessageTypeErr(typeKey))
		return
	}

	entry.ctx.Execute(func() {
		fut := entry.fn(loop.Attach(rctx, entry.ctx), reqVal)
		fut.OnComplete(func(val any, ferr error) {
			c.writeResponseAsync(hdr.id, val, ferr)
		})
	})
}

// writeResponseAsync schedules serialization and write of a RESPONSE frame
// on the connection's owning context, per §4.3 ("Response payload is
// serialized on the connection's owning context").
func (c *Connection) writeResponseAsync(id uint64, val any, ferr error) {
	c.ownerCtx.Execute(func() {
		failWith := func(kind errs.Kind, msg string) iface.Buffer {
			b := c.alloc.Allocate(64)
			writeResponseHeader(b, id, statusFailure, kind)
			_ = c.ser.WriteObject(msg, b)
			return b
		}

		var body iface.Buffer
		if ferr != nil {
			kind := errs.KindApplication
			if ae, ok := ferr.(*errs.Error); ok {
				kind = ae.Kind
			}
			body = failWith(kind, ferr.Error())
		} else {
			body = c.alloc.Allocate(64)
			writeResponseHeader(body, id, statusSuccess, 0)
			if err := c.ser.WriteObject(val, body); err != nil {
				body.Release()
				body = failWith(errs.KindTransport, err.Error())
			}
		}
		if len(body.Bytes()) > wire.MaxFrameSize {
			body.Release()
			body = failWith(errs.KindTransport, "response too large")
		}
		defer body.Release()
		if err := c.writeFrame(body.Bytes()); err != nil {
			c.handleException(errs.Wrap(errs.KindTransport, "write response frame", err))
		}
	})
}

func (c *Connection) handleResponse(body []byte) {
	id, status, kind, payload, err := readResponseHeader(body)
	if err != nil {
		c.handleException(err)
		return
	}
	entry, ok := c.pending.remove(id)
	if !ok {
		return // already timed out or connection closed/failed
	}
	c.metrics.SetPending(c.pending.len())
	c.metrics.ObserveRequestLatencySeconds(time.Since(entry.enqueued).Seconds())

	val, err := c.ser.ReadObject(bytes.NewReader(payload))
	if err != nil {
		entry.fut.Complete(nil, errs.Wrap(errs.KindTransport, "deserialize response", err))
		return
	}
	if status == statusFailure {
		msg, _ := val.(string)
		entry.fut.Complete(nil, errs.New(kind, msg))
		return
	}
	entry.fut.Complete(val, nil)
}

// reap walks pending from oldest to newest, failing any entry older than
// requestTimeout with a TimeoutError, stopping at the first entry still
// within the window (§4.4, §8 invariant 4). Runs on the owning context.
func (c *Connection) reap() {
	now := time.Now()
	expired := c.pending.reapExpired(now, requestTimeout)
	for _, e := range expired {
		c.metrics.RecordTimeout()
		c.metrics.ObserveRequestLatencySeconds(now.Sub(e.enqueued).Seconds())
		e.fut.Complete(nil, errs.TimeoutErr(e.id))
	}
	if len(expired) > 0 {
		c.metrics.SetPending(c.pending.len())
		c.log.Debug("reaped expired requests", logger.Reaped(len(expired)), logger.PendingCount(c.pending.len()))
	}
}

// handleException latches the connection's first fatal error, failing
// every pending request on its originating context and notifying
// exception listeners in registration order, per §4.5.
func (c *Connection) handleException(err error) {
	e := &errs.Error{Kind: errs.KindTransport, Msg: "connection failed"}
	if ae, ok := err.(*errs.Error); ok {
		e = ae
	} else {
		e.Cause = err
	}
	if !c.failure.CompareAndSwap(nil, e) {
		return
	}
	c.log.Warn("connection exception", logger.Err(e))
	for _, entry := range c.pending.drain() {
		entry.fut.Complete(nil, e)
	}
	c.metrics.SetPending(0)
	c.exceptionListeners.notify(error(e))
}

// handleClosed latches the closed flag, failing every pending request
// with ClosedError, notifying close listeners, and cancelling the reap
// timer, per §4.5.
func (c *Connection) handleClosed() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for _, entry := range c.pending.drain() {
		entry.fut.Complete(nil, errs.ClosedErr(""))
	}
	c.metrics.SetPending(0)
	if c.reapSched != nil {
		c.reapSched.Cancel()
	}
	c.metrics.ConnectionClosed()
	cause := "peer"
	if f := c.failure.Load(); f != nil {
		cause = "exception"
	} else if c.userClosed.Load() {
		cause = "user"
	}
	c.metrics.RecordClose(cause)
	c.closeListeners.notify(nil)
	c.closeFuture.Complete(nil, nil)
}

// start launches the read loop. Called once the Connection has been fully
// wired (handshake complete, registered with its owning Server/Client).
func (c *Connection) start() {
	go c.readLoop()
}
