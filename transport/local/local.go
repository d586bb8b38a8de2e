package local

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/errs"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/iface"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
)

// LocalServer publishes an accept callback under id in a Registry, per
// spec.md §4.9. It presents the same Listen/Close surface as
// transport/conn.Server.
type LocalServer struct {
	id       string
	reg      *Registry
	ownerCtx *loop.Loop
	alloc    iface.Allocator
	ser      iface.Serializer
	metrics  *metrics.Recorder

	listenOnce sync.Once
	listenFut  *future.Future

	connsMu sync.Mutex
	conns   map[string]*conn.Connection

	closeOnce sync.Once
	closeFut  *future.Future
}

// NewLocalServer constructs a LocalServer that will publish itself under id
// in reg, owning every Connection it produces on ownerCtx.
func NewLocalServer(id string, reg *Registry, ownerCtx *loop.Loop, alloc iface.Allocator, ser iface.Serializer, rec *metrics.Recorder) *LocalServer {
	return &LocalServer{
		id:       id,
		reg:      reg,
		ownerCtx: ownerCtx,
		alloc:    alloc,
		ser:      ser,
		metrics:  rec,
		conns:    make(map[string]*conn.Connection),
	}
}

// Listen publishes accept under s.id. Idempotent, and fails if another
// LocalServer is already registered under the same id within the same
// Registry.
func (s *LocalServer) Listen(ctx context.Context, accept conn.AcceptFunc) (*future.Future, error) {
	callerLoop := loop.From(ctx)
	if callerLoop == nil {
		return nil, errs.New(errs.KindArgument, "Listen must be called from a context produced by a Loop")
	}
	s.listenOnce.Do(func() {
		s.listenFut = future.New(callerLoop)
		ok := s.reg.register(s.id, &registeredServer{
			accept: func(_ context.Context, c *conn.Connection) {
				callerLoop.Execute(func() { accept(callerLoop.Context(), c) })
			},
			owner:   s.ownerCtx,
			alloc:   s.alloc,
			ser:     s.ser,
			metrics: s.metrics,
			track:   s.trackConn,
		})
		if !ok {
			s.listenFut.Complete(nil, errs.New(errs.KindTransport, "local address "+s.id+" already in use"))
			return
		}
		s.listenFut.Complete(nil, nil)
	})
	return s.listenFut, nil
}

func (s *LocalServer) trackConn(c *conn.Connection) {
	s.connsMu.Lock()
	s.conns[c.ID()] = c
	s.connsMu.Unlock()
	c.CloseListener(func() {
		s.connsMu.Lock()
		delete(s.conns, c.ID())
		s.connsMu.Unlock()
	})
}

// Connections returns a point-in-time Stats snapshot for every connection
// currently accepted by this LocalServer, for the debug API.
func (s *LocalServer) Connections() []conn.Stats {
	conns := s.liveConns()
	out := make([]conn.Stats, len(conns))
	for i, c := range conns {
		out[i] = c.Stats()
	}
	return out
}

func (s *LocalServer) liveConns() []*conn.Connection {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]*conn.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Close removes s's Registry entry (so future Connects see it as absent)
// and closes every Connection it has accepted.
func (s *LocalServer) Close() *future.Future {
	s.closeOnce.Do(func() {
		s.reg.remove(s.id)
		s.closeFut = future.New(s.ownerCtx)
		conns := s.liveConns()
		if len(conns) == 0 {
			s.closeFut.Complete(nil, nil)
			return
		}
		var remaining atomic.Int64
		remaining.Store(int64(len(conns)))
		for _, c := range conns {
			c.Close().OnComplete(func(any, error) {
				if remaining.Add(-1) == 0 {
					s.closeFut.Complete(nil, nil)
				}
			})
		}
	})
	return s.closeFut
}

// LocalClient connects to LocalServers published in a Registry, per
// spec.md §4.9.
type LocalClient struct {
	reg      *Registry
	ownerCtx *loop.Loop
	alloc    iface.Allocator
	ser      iface.Serializer
	metrics  *metrics.Recorder

	mu    sync.Mutex
	conns []*conn.Connection
}

// NewLocalClient constructs a LocalClient resolving peers through reg, with
// Connections it produces owned by ownerCtx.
func NewLocalClient(reg *Registry, ownerCtx *loop.Loop, alloc iface.Allocator, ser iface.Serializer, rec *metrics.Recorder) *LocalClient {
	return &LocalClient{
		reg:      reg,
		ownerCtx: ownerCtx,
		alloc:    alloc,
		ser:      ser,
		metrics:  rec,
	}
}

// Connect looks up serverID in the Registry. On a hit, it pairs a
// server-side and client-side Connection over an in-process net.Pipe (the
// synchronous, in-memory net.Conn the standard library provides for exactly
// this kind of direct, buffer-for-buffer handoff) and hands the server-side
// Connection to the server's accept callback, which runs on the context
// that called the server's Listen, before resolving with the
// client-side Connection, per spec.md §4.9. A miss resolves the future with
// a TransportError; no handshake frame crosses the pipe since pairing is
// already authenticated by registry lookup.
func (cl *LocalClient) Connect(ctx context.Context, serverID string) (*future.Future, error) {
	callerLoop := loop.From(ctx)
	if callerLoop == nil {
		return nil, errs.New(errs.KindArgument, "Connect must be called from a context produced by a Loop")
	}
	fut := future.New(callerLoop)

	rs, ok := cl.reg.lookup(serverID)
	if !ok {
		fut.Complete(nil, errs.New(errs.KindTransport, "no local server registered for "+serverID))
		return fut, nil
	}

	serverSide, clientSide := net.Pipe()
	serverConn := conn.New(serverSide, "local:"+serverID, rs.owner, rs.alloc, rs.ser, rs.metrics)
	clientConn := conn.New(clientSide, "local:"+serverID, cl.ownerCtx, cl.alloc, cl.ser, cl.metrics)

	rs.track(serverConn)
	cl.track(clientConn)
	serverConn.start()
	clientConn.start()

	rs.owner.Execute(func() {
		rs.accept(rs.owner.Context(), serverConn)
	})

	fut.Complete(clientConn, nil)
	return fut, nil
}

func (cl *LocalClient) track(c *conn.Connection) {
	cl.mu.Lock()
	cl.conns = append(cl.conns, c)
	cl.mu.Unlock()
	c.CloseListener(func() {
		cl.mu.Lock()
		defer cl.mu.Unlock()
		for i, existing := range cl.conns {
			if existing == c {
				cl.conns = append(cl.conns[:i], cl.conns[i+1:]...)
				return
			}
		}
	})
}

// Close closes every Connection this LocalClient has produced.
func (cl *LocalClient) Close() *future.Future {
	cl.mu.Lock()
	conns := append([]*conn.Connection(nil), cl.conns...)
	cl.mu.Unlock()

	fut := future.New(cl.ownerCtx)
	if len(conns) == 0 {
		fut.Complete(nil, nil)
		return fut
	}
	remaining := len(conns)
	var mu sync.Mutex
	for _, c := range conns {
		c.Close().OnComplete(func(any, error) {
			mu.Lock()
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				fut.Complete(nil, nil)
			}
		})
	}
	return fut
}
