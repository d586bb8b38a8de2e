package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackshare/clustercomm/transport/addr"
	"github.com/hackshare/clustercomm/transport/codec"
	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/future"
	"github.com/hackshare/clustercomm/transport/loop"
)

// ============================================================================
// Memoization
// ============================================================================

func TestClientIsMemoizedByID(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(2))
	defer waitClose(t, tr)

	c1 := tr.Client("peer")
	c2 := tr.Client("peer")
	assert.Same(t, c1, c2)
}

func TestServerIsMemoizedByID(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(2))
	defer waitClose(t, tr)

	s1 := tr.Server("svc")
	s2 := tr.Server("svc")
	assert.Same(t, s1, s2)
}

func TestDistinctIDsGetDistinctClients(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(2))
	defer waitClose(t, tr)

	assert.NotSame(t, tr.Client("a"), tr.Client("b"))
}

// ============================================================================
// Control loop stays independent of the pool
// ============================================================================

func TestControlIsNotAPoolLoop(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(1))
	defer waitClose(t, tr)

	assert.NotSame(t, tr.Control(), tr.pick())
}

// ============================================================================
// End-to-end echo through the factory
// ============================================================================

func TestFactoryProducedServerAndClientEcho(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(2))
	defer waitClose(t, tr)

	srv := tr.Server("svc")
	ctrl := tr.Control()

	accepted := make(chan *conn.Connection, 1)
	listenFut, err := srv.Listen(ctrl.Context(), addr.New("127.0.0.1", 0), func(ctx context.Context, c *conn.Connection) {
		_, _ = c.Handler(ctx, codec.StringTypeKey, func(ctx context.Context, req any) *future.Future {
			fut := future.New(loop.From(ctx))
			fut.Complete(req, nil)
			return fut
		})
		accepted <- c
	})
	require.NoError(t, err)
	_, err = listenFut.Wait(context.Background())
	require.NoError(t, err)

	address := dialAddress(t, srv)
	cl := tr.Client("cli")
	connFut, err := cl.Connect(ctrl.Context(), address)
	require.NoError(t, err)
	v, err := connFut.Wait(context.Background())
	require.NoError(t, err)
	c := v.(*conn.Connection)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted the connection")
	}

	sendFut, err := c.Send(ctrl.Context(), "through the factory")
	require.NoError(t, err)
	result, err := sendFut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "through the factory", result)
}

// ============================================================================
// Close
// ============================================================================

func TestCloseStopsThePoolAndResolves(t *testing.T) {
	t.Parallel()

	tr := NewNetworkTransport(WithPoolSize(2))
	_ = tr.Client("a")
	_ = tr.Server("b")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := tr.Close().Wait(ctx)
	require.NoError(t, err)
}

func waitClose(t *testing.T, tr *NetworkTransport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := tr.Close().Wait(ctx)
	require.NoError(t, err)
}

func dialAddress(t *testing.T, srv *conn.Server) addr.Address {
	t.Helper()
	a, err := addr.Parse(srv.Addr().String())
	require.NoError(t, err)
	return a
}
