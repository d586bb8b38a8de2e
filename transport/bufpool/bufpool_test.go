package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackshare/clustercomm/transport/iface"
)

// ============================================================================
// Allocate / Write / Release
// ============================================================================

func TestAllocate(t *testing.T) {
	t.Parallel()

	t.Run("returns a zero-length buffer ready to write", func(t *testing.T) {
		t.Parallel()
		a := NewAllocator()
		buf := a.Allocate(64)
		assert.Empty(t, buf.Bytes())

		n, err := buf.Write([]byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, []byte("hello"), buf.Bytes())

		buf.Release()
	})

	t.Run("grows past the hinted capacity", func(t *testing.T) {
		t.Parallel()
		a := NewAllocator()
		buf := a.Allocate(4)
		big := make([]byte, 4096)
		_, err := buf.Write(big)
		require.NoError(t, err)
		assert.Len(t, buf.Bytes(), 4096)
		buf.Release()
	})
}

func TestRetainRelease(t *testing.T) {
	t.Parallel()

	t.Run("a Retain'd buffer survives one Release", func(t *testing.T) {
		t.Parallel()
		a := NewAllocator()
		buf := a.Allocate(16)
		_, _ = buf.Write([]byte("payload"))
		buf.Retain()

		buf.Release()
		assert.Equal(t, []byte("payload"), buf.Bytes(), "one outstanding ref should keep data alive")

		buf.Release()
	})
}

func TestAllocatorReusesReleasedBuffers(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	buf := a.Allocate(16)
	_, _ = buf.Write([]byte("x"))
	buf.Release()

	next := a.Allocate(16)
	assert.Empty(t, next.Bytes(), "a reused Buffer must come back zero-length")
	next.Release()
}

func TestAllocatorConcurrentUse(t *testing.T) {
	t.Parallel()

	a := NewAllocator()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := a.Allocate(32)
			_, _ = buf.Write([]byte("concurrent"))
			buf.Release()
		}()
	}
	wg.Wait()
}

// satisfiesAllocator is a compile-time reminder that NewAllocator's result
// must bind transport/iface.Allocator exactly.
var _ iface.Allocator = NewAllocator()
