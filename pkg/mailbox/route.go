package mailbox

import (
	"github.com/cuemby/hearth/pkg/capability"
)

// LocalRoute adapts a *Mailbox to capability.Route, so a capability can
// address a mailbox owned by this process.
type LocalRoute struct {
	mailbox *Mailbox
}

// Deliver imports caps into the mailbox's process table and enqueues a
// Message signal.
func (r *LocalRoute) Deliver(payload []byte, caps []capability.Value) error {
	return r.mailbox.deliver(payload, caps)
}

// Terminate destroys the mailbox's kill target: the owning process when
// one is installed, otherwise just the mailbox itself. Either way the
// mailbox stops accepting deliveries and every watcher registered against
// it fires.
func (r *LocalRoute) Terminate() error {
	r.mailbox.kill()
	return nil
}

// Watch registers onDown to fire when the mailbox is terminated. If it is
// already dead, onDown fires synchronously, before Watch returns.
func (r *LocalRoute) Watch(onDown func()) {
	r.mailbox.watch(onDown)
}

// Alive reports whether the mailbox still accepts deliveries.
func (r *LocalRoute) Alive() bool {
	return r.mailbox.isAlive()
}

// Released is a no-op for local routes: a mailbox's lifetime is bound to
// its owning process, not to how many capabilities happen to reference
// it. A local process ends only through Kill, a parent-down watch, or
// runtime shutdown; dropping the last handle to one of its routes never
// terminates it.
func (r *LocalRoute) Released() {}

var _ capability.Route = (*LocalRoute)(nil)
