package capability

import (
	"errors"
	"testing"

	"github.com/cuemby/hearth/pkg/herr"
)

// fakeRoute is a minimal Route for table-level tests that don't need a real
// mailbox or peer connection.
type fakeRoute struct {
	alive    bool
	watchers []func()
	released int
}

func newFakeRoute() *fakeRoute { return &fakeRoute{alive: true} }

func (r *fakeRoute) Deliver(payload []byte, caps []Value) error { return nil }

func (r *fakeRoute) Terminate() error {
	r.alive = false
	for _, w := range r.watchers {
		w()
	}
	r.watchers = nil
	return nil
}

func (r *fakeRoute) Watch(onDown func()) {
	if !r.alive {
		onDown()
		return
	}
	r.watchers = append(r.watchers, onDown)
}

func (r *fakeRoute) Alive() bool { return r.alive }

func (r *fakeRoute) Released() { r.released++ }

func TestExportRequiresSubsetPermissions(t *testing.T) {
	table := NewTable()
	h := table.ImportOwned(newFakeRoute(), Send|Kill)

	if _, err := table.Export(h, Send); err != nil {
		t.Fatalf("Export(Send) from Send|Kill should succeed, got %v", err)
	}
	if _, err := table.Export(h, Monitor); !errors.Is(err, herr.PermissionDenied) {
		t.Errorf("Export(Monitor) from Send|Kill error = %v, want herr.PermissionDenied", err)
	}
}

func TestExportNeverEscalates(t *testing.T) {
	table := NewTable()
	h := table.ImportOwned(newFakeRoute(), Send)

	v, err := table.Export(h, Send)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if v.Permissions != Send {
		t.Errorf("Export() permissions = %s, want SEND", v.Permissions)
	}
}

func TestDemoteIsMonotonic(t *testing.T) {
	table := NewTable()
	h := table.ImportOwned(newFakeRoute(), Send|Kill|Monitor)

	h2, err := table.Demote(h, Send|Kill)
	if err != nil {
		t.Fatalf("Demote() error = %v", err)
	}
	h3, err := table.Demote(h2, Send)
	if err != nil {
		t.Fatalf("second Demote() error = %v", err)
	}

	if _, _, err := table.Resolve(h3); err != nil {
		t.Fatalf("Resolve(h3) error = %v", err)
	}
	if _, err := table.Demote(h3, Kill); !errors.Is(err, herr.PermissionDenied) {
		t.Errorf("Demote() escalation error = %v, want herr.PermissionDenied", err)
	}
}

func TestDemoteSamePermissionsIsEquivalent(t *testing.T) {
	table := NewTable()
	h := table.ImportOwned(newFakeRoute(), Send|Kill)

	h2, err := table.Demote(h, Send|Kill)
	if err != nil {
		t.Fatalf("Demote() error = %v", err)
	}

	_, perms, err := table.Resolve(h2)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if perms != Send|Kill {
		t.Errorf("Resolve() permissions = %s, want SEND|KILL", perms)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	table := NewTable()
	route := newFakeRoute()
	h := table.ImportOwned(route, Send|Monitor)

	v, err := table.Export(h, Send)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	h2 := table.Import(v)
	gotRoute, gotPerms, err := table.Resolve(h2)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if gotRoute != route {
		t.Error("Import() produced a handle pointing at a different route")
	}
	if gotPerms != Send {
		t.Errorf("Resolve() permissions = %s, want SEND", gotPerms)
	}
}

func TestDropReleasesRouteOnLastHandle(t *testing.T) {
	table := NewTable()
	route := newFakeRoute()
	h := table.ImportOwned(route, Send)

	h2, err := table.Duplicate(h)
	if err != nil {
		t.Fatalf("Duplicate() error = %v", err)
	}

	table.Drop(h)
	if route.released != 0 {
		t.Errorf("Released() called after first drop, want 0 calls")
	}

	table.Drop(h2)
	if route.released != 1 {
		t.Errorf("Released() called %d times, want 1", route.released)
	}
}

func TestResolveUnknownHandle(t *testing.T) {
	table := NewTable()
	if _, _, err := table.Resolve(Handle(999)); !errors.Is(err, herr.RouteClosed) {
		t.Errorf("Resolve() error = %v, want herr.RouteClosed", err)
	}
}

func TestWatchFiresImmediatelyOnDeadRoute(t *testing.T) {
	route := newFakeRoute()
	route.Terminate()

	fired := false
	route.Watch(func() { fired = true })
	if !fired {
		t.Error("Watch() on an already-dead route did not fire immediately")
	}
}
