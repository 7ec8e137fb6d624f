package peer

import (
	"sync"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
)

// RemoteRoute is a local stand-in for a capability exported to us by a
// peer, identified by id in that peer's export-table namespace. Multiple
// process capability tables may each hold their own Handle wrapping the
// same *RemoteRoute; refcount tracks how many have not yet been dropped.
type RemoteRoute struct {
	peer *Peer
	id   uint32

	mu       sync.Mutex
	refcount int
	alive    bool
	watchers []func()
}

// Deliver sends a Message frame to the peer addressing id, exporting caps
// into this connection's export table first.
func (r *RemoteRoute) Deliver(payload []byte, caps []capability.Value) error {
	if !r.Alive() {
		return herr.RouteClosed
	}
	return r.peer.sendMessage(r.id, payload, caps)
}

// Terminate sends a Kill frame requesting the peer destroy the process
// backing this capability.
func (r *RemoteRoute) Terminate() error {
	if !r.Alive() {
		return herr.RouteClosed
	}
	return r.peer.sendKill(r.id)
}

// Watch registers onDown to fire when the peer reports this route dead
// (a Down frame) or the connection itself is lost. If already dead,
// onDown fires immediately.
func (r *RemoteRoute) Watch(onDown func()) {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		onDown()
		return
	}
	r.watchers = append(r.watchers, onDown)
	r.mu.Unlock()
}

// Alive reports whether the peer has not yet reported this route dead.
func (r *RemoteRoute) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

// Released is called by some process's capability.Table when its last
// handle referencing this stand-in is dropped. It tells the owning Peer
// one fewer local reference exists; once the shared count reaches zero, a
// Release frame is sent to the exporting peer.
func (r *RemoteRoute) Released() {
	r.peer.releaseImport(r.id)
}

// down marks the route dead and fires every watcher, used both when a Down
// frame arrives and when the connection is torn down.
func (r *RemoteRoute) down() {
	r.mu.Lock()
	if !r.alive {
		r.mu.Unlock()
		return
	}
	r.alive = false
	watchers := r.watchers
	r.watchers = nil
	r.mu.Unlock()

	for _, w := range watchers {
		w()
	}
}

var _ capability.Route = (*RemoteRoute)(nil)
