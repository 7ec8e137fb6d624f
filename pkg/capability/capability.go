package capability

import (
	"fmt"
	"sync"

	"github.com/cuemby/hearth/pkg/herr"
)

// Permission is a bitmask subset of {Send, Kill, Monitor, Link}.
type Permission uint8

const (
	Send Permission = 1 << iota
	Kill
	Monitor
	Link
)

// All is every permission bit, used by the factory when minting the owner's
// first capability to a freshly spawned process.
const All = Send | Kill | Monitor | Link

// Has reports whether p contains every bit in other.
func (p Permission) Has(other Permission) bool {
	return p&other == other
}

// String renders a permission set as e.g. "SEND|KILL".
func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}
	names := []struct {
		bit  Permission
		name string
	}{
		{Send, "SEND"},
		{Kill, "KILL"},
		{Monitor, "MONITOR"},
		{Link, "LINK"},
	}
	out := ""
	for _, n := range names {
		if p.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// Route is the destination a capability addresses: either a local mailbox
// or a remote proxy. Routes are implemented outside this package (by
// pkg/mailbox and pkg/peer) to avoid a dependency cycle; the table only
// needs to resolve, deliver, watch, and terminate them.
type Route interface {
	// Deliver enqueues a message at the route's target. caps are the
	// capability values accompanying the message, already exported from
	// the sender's table; the receiver re-keys them into its own table.
	Deliver(payload []byte, caps []Value) error
	// Terminate destroys the route's target, if permitted by the caller
	// (the Table has already checked the Kill bit before calling this).
	Terminate() error
	// Watch registers a one-shot callback fired when the route is
	// destroyed. If the route is already dead, onDown fires immediately,
	// synchronously, from within Watch.
	Watch(onDown func())
	// Alive reports whether the route's target still exists.
	Alive() bool
	// Released is called when the last Handle in some table that names
	// this route directly (not via a fresh Import) is dropped. Local
	// routes ignore this; remote routes use it to emit a Release frame.
	Released()
}

// Value is a capability in transferable form: a route plus the permission
// subset being granted. It carries no table-local handle integer; the
// wire carries permissions plus route identity, never the sender's handle
// integers.
type Value struct {
	Route       Route
	Permissions Permission
}

// Handle is a process-local, opaque reference into a capability Table.
type Handle uint32

type entry struct {
	route    Route
	perms    Permission
	refcount int
}

// Table is a per-process capability table: the only thing a process's code
// ever holds is a Handle, never a Route directly.
type Table struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]*entry
}

// NewTable creates an empty capability table.
func NewTable() *Table {
	return &Table{entries: make(map[Handle]*entry)}
}

// ImportOwned mints a handle directly from a route, bypassing the
// export/import dance. Used by the runtime when it owns the route outright
// (e.g. minting a process's first capability to itself at spawn).
func (t *Table) ImportOwned(route Route, perms Permission) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insert(route, perms)
}

func (t *Table) insert(route Route, perms Permission) Handle {
	t.next++
	h := t.next
	t.entries[h] = &entry{route: route, perms: perms, refcount: 1}
	return h
}

// Import introduces an externally obtained capability value, minting a
// fresh handle in this table with the permissions the value carries.
func (t *Table) Import(v Value) Handle {
	return t.ImportOwned(v.Route, v.Permissions)
}

// Export produces a transferable Value for handle, restricted to perms,
// which must be a subset of the handle's current permissions. Exporting
// never escalates.
func (t *Table) Export(h Handle, perms Permission) (Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return Value{}, fmt.Errorf("capability: export: %w", herr.RouteClosed)
	}
	if !e.perms.Has(perms) {
		return Value{}, fmt.Errorf("capability: export %s from %s: %w", perms, e.perms, herr.PermissionDenied)
	}
	return Value{Route: e.route, Permissions: perms}, nil
}

// Demote mints a new handle in t that addresses the same route as h with a
// subset of h's permissions; h itself keeps its permissions and stays valid.
// Demotion is monotonic; it can never add bits, and demote(h, perms(h))
// returns an equivalent handle.
func (t *Table) Demote(h Handle, perms Permission) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return 0, fmt.Errorf("capability: demote: %w", herr.RouteClosed)
	}
	if !e.perms.Has(perms) {
		return 0, fmt.Errorf("capability: demote %s from %s: %w", perms, e.perms, herr.PermissionDenied)
	}

	t.next++
	nh := t.next
	t.entries[nh] = &entry{route: e.route, perms: perms, refcount: 1}
	return nh, nil
}

// Duplicate mints a second handle sharing the same table entry (and
// refcount) as h, with identical permissions. Dropping either handle
// leaves the other valid; the route is only Released once both are
// dropped.
func (t *Table) Duplicate(h Handle) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return 0, fmt.Errorf("capability: duplicate: %w", herr.RouteClosed)
	}
	e.refcount++

	t.next++
	nh := t.next
	t.entries[nh] = e
	return nh, nil
}

// Drop releases a handle. If it was the last handle referencing its table
// entry, the entry is removed and the route's Released hook fires.
func (t *Table) Drop(h Handle) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.entries, h)
	e.refcount--
	last := e.refcount <= 0
	t.mu.Unlock()

	if last {
		e.route.Released()
	}
}

// Resolve looks up a handle's route and permissions for internal dispatch
// (e.g. by pkg/mailbox when servicing a send/kill/monitor call).
func (t *Table) Resolve(h Handle) (Route, Permission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return nil, 0, fmt.Errorf("capability: resolve: %w", herr.RouteClosed)
	}
	return e.route, e.perms, nil
}

// Len reports the number of live handles, for metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
