// Package local implements the in-process transport of spec.md §4.9: a
// registry mapping server identifiers to accept callbacks, and Client/Server
// types presenting the same external contract as the network transport but
// wiring peers directly instead of over a socket.
package local

import (
	"sync"

	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/iface"
	"github.com/hackshare/clustercomm/transport/loop"
	"github.com/hackshare/clustercomm/transport/metrics"
)

// registeredServer is what a LocalServer publishes to the Registry while
// listening: everything a connecting LocalClient needs to build its half of
// the paired Connections.
type registeredServer struct {
	accept  conn.AcceptFunc
	owner   *loop.Loop
	alloc   iface.Allocator
	ser     iface.Serializer
	metrics *metrics.Recorder
	track   func(*conn.Connection)
}

// Registry maps a server identifier to its registeredServer entry. One
// Registry shared by every local server and client in a process models spec.md
// §4.9's "process-wide registry"; construct one NewRegistry() and pass it
// to every LocalServer/LocalClient that should be able to see each other.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*registeredServer
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{servers: make(map[string]*registeredServer)}
}

// register publishes rs under id. Returns false if id is already taken.
func (r *Registry) register(id string, rs *registeredServer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.servers[id]; exists {
		return false
	}
	r.servers[id] = rs
	return true
}

// lookup returns the registeredServer for id, if any.
func (r *Registry) lookup(id string) (*registeredServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.servers[id]
	return rs, ok
}

// remove deletes id's entry, if present.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, id)
}
