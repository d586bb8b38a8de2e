// Package transport implements the network transport factory described in
// spec.md §4.8: a shared pool of cooperative contexts backing memoized
// Clients and Servers.
package transport

import (
	"runtime"
	"sync"

	"github.com/hackshare/clustercomm/transport/bufpool"
	"github.com/hackshare/clustercomm/transport/codec"
	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/iface"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
)

// Option configures a NetworkTransport at construction.
type Option func(*config)

type config struct {
	poolSize int
	alloc    iface.Allocator
	ser      iface.Serializer
	metrics  *metrics.Recorder
}

// WithPoolSize overrides the number of cooperative contexts backing clients
// and servers. Defaults to the host's hardware parallelism.
func WithPoolSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithAllocator overrides the default pooled BufferAllocator.
func WithAllocator(a iface.Allocator) Option {
	return func(c *config) { c.alloc = a }
}

// WithSerializer overrides the default gob Serializer.
func WithSerializer(s iface.Serializer) Option {
	return func(c *config) { c.ser = s }
}

// WithMetrics attaches a Recorder every Client/Server this transport
// produces will report through.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *config) { c.metrics = rec }
}

// NetworkTransport is a factory for Clients and Servers sharing one pool of
// cooperative contexts, per spec.md §4.8.
type NetworkTransport struct {
	cfg config

	ctrl  *loop.Loop
	loops []*loop.Loop
	next  atomicCounter

	mu      sync.Mutex
	clients map[string]*conn.Client
	servers map[string]*conn.Server
}

// atomicCounter is a tiny round-robin cursor; it does not need to be exact,
// only to spread load across the pool.
type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicCounter) next(mod int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.n % mod
	c.n++
	return v
}

// NewNetworkTransport builds a transport with a pool of cooperative
// contexts sized to runtime.NumCPU() unless overridden by WithPoolSize.
func NewNetworkTransport(opts ...Option) *NetworkTransport {
	cfg := config{poolSize: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.alloc == nil {
		cfg.alloc = bufpool.NewAllocator()
	}
	if cfg.ser == nil {
		cfg.ser = codec.NewGobSerializer()
	}

	t := &NetworkTransport{
		cfg:     cfg,
		ctrl:    loop.New(16),
		loops:   make([]*loop.Loop, cfg.poolSize),
		clients: make(map[string]*conn.Client),
		servers: make(map[string]*conn.Server),
	}
	for i := range t.loops {
		t.loops[i] = loop.New(256)
	}
	return t
}

// Control returns the Loop whose Context() callers should use to invoke
// Client and Server operations this transport produces (it is not itself one of
// the pool loops handed out to clients/servers, so it stays responsive even
// while the pool is busy).
func (t *NetworkTransport) Control() *loop.Loop {
	return t.ctrl
}

// pick returns the next pool loop, round-robin.
func (t *NetworkTransport) pick() *loop.Loop {
	return t.loops[t.next.next(len(t.loops))]
}

// Client returns the memoized Client for id, creating it (bound to the next
// pool context) on first request.
func (t *NetworkTransport) Client(id string) *conn.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[id]; ok {
		return c
	}
	c := conn.NewClient(id, t.pick(), t.cfg.alloc, t.cfg.ser, t.cfg.metrics)
	t.clients[id] = c
	return c
}

// Server returns the memoized Server for id, creating it (bound to the next
// pool context) on first request.
func (t *NetworkTransport) Server(id string) *conn.Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.servers[id]; ok {
		return s
	}
	s := conn.NewServer(t.pick(), t.cfg.alloc, t.cfg.ser, t.cfg.metrics)
	t.servers[id] = s
	return s
}

// Close closes every Client and Server this transport has produced, then
// stops the pool, per spec.md §4.8.
func (t *NetworkTransport) Close() *future.Future {
	t.mu.Lock()
	clients := make([]*conn.Client, 0, len(t.clients))
	for _, c := range t.clients {
		clients = append(clients, c)
	}
	servers := make([]*conn.Server, 0, len(t.servers))
	for _, s := range t.servers {
		servers = append(servers, s)
	}
	t.mu.Unlock()

	fut := future.New(t.ctrl)
	go func() {
		var wg sync.WaitGroup
		done := make(chan struct{})
		for _, c := range clients {
			wg.Add(1)
			go func(c *conn.Client) { defer wg.Done(); c.Close().Wait(t.ctrl.Context()) }(c)
		}
		for _, s := range servers {
			wg.Add(1)
			go func(s *conn.Server) { defer wg.Done(); s.Close().Wait(t.ctrl.Context()) }(s)
		}
		go func() { wg.Wait(); close(done) }()
		<-done
		for _, l := range t.loops {
			l.Stop()
		}
		t.ctrl.Execute(func() { fut.Complete(nil, nil) })
	}()
	return fut
}
