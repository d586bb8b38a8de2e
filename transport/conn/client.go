package conn

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/hackshare/clustercomm/transport/addr"
	"github.com/hackshare/clustercomm/transport/errs"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/iface"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
	"github.com/hackshare/clustercomm/transport/wire"
)

// dialTimeout bounds Connect's underlying TCP handshake, per spec.md §4.7.
const dialTimeout = 5 * time.Second

// Client initiates outbound connections to peers that all identify
// themselves with the same clientID in the CONNECT handshake.
type Client struct {
	clientID string
	ownerCtx *loop.Loop
	alloc    iface.Allocator
	ser      iface.Serializer
	metrics  *metrics.Recorder

	mu    sync.Mutex
	conns []*Connection
}

// NewClient constructs a Client that presents clientID to every peer it
// dials. Connections it produces are owned by ownerCtx.
func NewClient(clientID string, ownerCtx *loop.Loop, alloc iface.Allocator, ser iface.Serializer, rec *metrics.Recorder) *Client {
	return &Client{
		clientID: clientID,
		ownerCtx: ownerCtx,
		alloc:    alloc,
		ser:      ser,
		metrics:  rec,
	}
}

// Connect dials address with a 5-second timeout, enables TCP_NODELAY and
// keepalive, sends the CONNECT handshake, and resolves with the resulting
// Connection, per spec.md §4.7.
func (cl *Client) Connect(ctx context.Context, address addr.Address) (*future.Future, error) {
	callerLoop := loop.From(ctx)
	if callerLoop == nil {
		return nil, errs.New(errs.KindArgument, "Connect must be called from a context produced by a Loop")
	}

	fut := future.New(callerLoop)

	go func() {
		d := net.Dialer{Timeout: dialTimeout}
		nc, err := d.DialContext(ctx, "tcp", address.String())
		if err != nil {
			fut.Complete(nil, errs.Wrap(errs.KindTransport, "dial "+address.String(), err))
			return
		}
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(30 * time.Second)
		}

		if err := wire.WriteFrame(nc, encodeConnect(cl.clientID)); err != nil {
			_ = nc.Close()
			fut.Complete(nil, errs.Wrap(errs.KindTransport, "send CONNECT handshake", err))
			return
		}

		c := New(nc, nc.RemoteAddr().String(), cl.ownerCtx, cl.alloc, cl.ser, cl.metrics)
		cl.track(c)
		c.start()
		fut.Complete(c, nil)
	}()

	return fut, nil
}

func (cl *Client) track(c *Connection) {
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

// Close closes every connection this Client has produced, completing once
// all of them report closed.
func (cl *Client) Close() *future.Future {
	cl.mu.Lock()
	conns := append([]*Connection(nil), cl.conns...)
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
