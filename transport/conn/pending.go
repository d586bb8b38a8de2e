package conn

import (
	"container/list"
	"sync"
	"time"

	"github.com/hackshare/clustercomm/transport/future"
)

// pendingEntry is one in-flight request awaiting a response.
type pendingEntry struct {
	id       uint64
	fut      *future.Future
	enqueued time.Time
}

// pendingMap is an insertion-ordered id -> pendingEntry map. Because
// request-ids are assigned monotonically, insertion order equals
// enqueue-timestamp order, which is what lets the reaper stop scanning at
// the first non-expired entry. Written by the connection's owning
// context, read concurrently by the I/O goroutine delivering RESPONSE
// frames — every method is safe for concurrent use.
type pendingMap struct {
	mu    sync.Mutex
	order *list.List
	byID  map[uint64]*list.Element
}

func newPendingMap() *pendingMap {
	return &pendingMap{
		order: list.New(),
		byID:  make(map[uint64]*list.Element),
	}
}

// insert adds e. The caller must ensure e.id is not already present
// (invariant 1: a request-id appears at most once).
func (p *pendingMap) insert(e *pendingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := p.order.PushBack(e)
	p.byID[e.id] = el
}

// remove removes and returns the entry for id, if present.
func (p *pendingMap) remove(id uint64) (*pendingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	p.order.Remove(el)
	delete(p.byID, id)
	return el.Value.(*pendingEntry), true
}

// reapExpired removes and returns every entry older than timeout as of
// now, scanning from the oldest and stopping at the first entry still
// within the window.
func (p *pendingMap) reapExpired(now time.Time, timeout time.Duration) []*pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []*pendingEntry
	for {
		front := p.order.Front()
		if front == nil {
			break
		}
		e := front.Value.(*pendingEntry)
		if now.Sub(e.enqueued) <= timeout {
			break
		}
		p.order.Remove(front)
		delete(p.byID, e.id)
		expired = append(expired, e)
	}
	return expired
}

// drain removes and returns every entry, in insertion order, emptying the
// map. Used when latching failure or closed.
func (p *pendingMap) drain() []*pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := make([]*pendingEntry, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value.(*pendingEntry))
	}
	p.order.Init()
	p.byID = make(map[uint64]*list.Element)
	return all
}

func (p *pendingMap) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}
