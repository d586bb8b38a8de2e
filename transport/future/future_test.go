package future

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackshare/clustercomm/transport/loop"
)

// ============================================================================
// Complete / Wait
// ============================================================================

func TestWaitReturnsTheCompletedValue(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	f.Complete("result", nil)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "result", v)
}

func TestWaitReturnsTheCompletedError(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	sentinel := assert.AnError
	f.Complete(nil, sentinel)

	v, err := f.Wait(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, sentinel, err)
}

func TestCompleteIsFirstCallWins(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	f.Complete("first", nil)
	f.Complete("second", assert.AnError)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestWaitUnblocksOnContextCancel(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoneReflectsCompletion(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	assert.False(t, f.Done())
	f.Complete(1, nil)
	assert.True(t, f.Done())
}

// ============================================================================
// OnComplete
// ============================================================================

func TestOnCompleteRunsEvenWhenCompletedFromAnUnrelatedGoroutine(t *testing.T) {
	t.Parallel()

	consumer := loop.New(4)
	defer consumer.Stop()

	f := New(consumer)

	done := make(chan struct{})
	var val any
	f.OnComplete(func(v any, err error) {
		val = v
		close(done)
	})

	// Complete from a goroutine unrelated to consumer, mirroring an I/O
	// thread discovering a response.
	go f.Complete("done", nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnComplete callback never ran")
	}
	assert.Equal(t, "done", val)
}

func TestOnCompleteAfterResolutionRunsImmediately(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	f.Complete("already done", nil)

	done := make(chan struct{})
	var v any
	f.OnComplete(func(val any, err error) {
		v = val
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnComplete callback never ran")
	}
	assert.Equal(t, "already done", v)
}

func TestOnCompleteCalledByManyObservers(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		f.OnComplete(func(any, error) {
			count.Add(1)
			wg.Done()
		})
	}

	f.Complete(nil, nil)
	wg.Wait()
	assert.EqualValues(t, 20, count.Load())
}

// ============================================================================
// Concurrent completion attempts
// ============================================================================

func TestConcurrentCompleteIsRaceFree(t *testing.T) {
	t.Parallel()

	l := loop.New(4)
	defer l.Stop()

	f := New(l)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Complete(i, nil)
		}()
	}
	wg.Wait()

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.IsType(t, 0, v)
}
