package mailbox

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/metrics"
)

// Signal is either a Message or a Down, the two kinds of value a mailbox
// queue can hold.
type Signal interface {
	isSignal()
}

// Message carries a payload and any capabilities transferred alongside it.
// Caps have already been re-keyed into the receiving process's capability
// table by the time a Message reaches a queue; they are handles, not the
// sender's values.
type Message struct {
	Payload []byte
	Caps    []capability.Handle
}

func (Message) isSignal() {}

// Down is delivered when a capability installed via Monitor has its route
// destroyed: the mailbox closed, the process killed, or (for a remote
// subject) the peer connection lost.
type Down struct {
	Subject capability.Handle
}

func (Down) isSignal() {}

// Mailbox is a FIFO queue of signals with a single consumer. caps arriving
// in a Message are imported into table so the receiver can act on them
// immediately.
type Mailbox struct {
	table *capability.Table

	mu       sync.Mutex
	queue    []Signal
	alive    bool
	watchers []func()
	onKill   func()

	ding chan struct{}
}

// New creates a mailbox owned by the process whose capability table is
// table; incoming capabilities are imported into it.
func New(table *capability.Table) *Mailbox {
	return &Mailbox{
		table: table,
		alive: true,
		ding:  make(chan struct{}, 1),
	}
}

// MakeCapability produces a capability value addressing this mailbox with
// the given permission set.
func (mb *Mailbox) MakeCapability(perms capability.Permission) capability.Value {
	return capability.Value{Route: &LocalRoute{mailbox: mb}, Permissions: perms}
}

// Send resolves h in table, requires the Send bit, and delivers payload and
// caps to the target route. caps are handles held in table; each is
// exported with its current permissions before being handed to the route,
// which re-keys them into the receiver's own table.
func Send(table *capability.Table, h capability.Handle, payload []byte, caps []capability.Handle) error {
	route, perms, err := table.Resolve(h)
	if err != nil {
		return fmt.Errorf("mailbox: send: %w", err)
	}
	if !perms.Has(capability.Send) {
		metrics.PermissionDeniedTotal.Inc()
		return fmt.Errorf("mailbox: send: %w", herr.PermissionDenied)
	}
	if !route.Alive() {
		return fmt.Errorf("mailbox: send: %w", herr.RouteClosed)
	}

	values := make([]capability.Value, len(caps))
	for i, ch := range caps {
		cr, cperms, err := table.Resolve(ch)
		if err != nil {
			return fmt.Errorf("mailbox: send: capability %d: %w", i, err)
		}
		values[i] = capability.Value{Route: cr, Permissions: cperms}
	}

	if err := route.Deliver(payload, values); err != nil {
		return fmt.Errorf("mailbox: send: %w", err)
	}
	return nil
}

// Kill resolves h in table, requires the Kill bit, and terminates its
// target route. Destroying a local process's route fires every monitor
// installed on any capability to it; destroying a remote route sends a
// Kill frame to the owning peer.
func Kill(table *capability.Table, h capability.Handle) error {
	route, perms, err := table.Resolve(h)
	if err != nil {
		return fmt.Errorf("mailbox: kill: %w", err)
	}
	if !perms.Has(capability.Kill) {
		metrics.PermissionDeniedTotal.Inc()
		return fmt.Errorf("mailbox: kill: %w", herr.PermissionDenied)
	}
	if err := route.Terminate(); err != nil {
		return fmt.Errorf("mailbox: kill: %w", err)
	}
	return nil
}

// Monitor resolves subject in table, requires the Monitor bit, and installs
// a one-shot watch: when the subject's route is destroyed, a Down signal
// naming subject is enqueued on mb. If the route is already dead, the Down
// is enqueued immediately.
func Monitor(mb *Mailbox, table *capability.Table, subject capability.Handle) error {
	route, perms, err := table.Resolve(subject)
	if err != nil {
		return fmt.Errorf("mailbox: monitor: %w", err)
	}
	if !perms.Has(capability.Monitor) {
		metrics.PermissionDeniedTotal.Inc()
		return fmt.Errorf("mailbox: monitor: %w", herr.PermissionDenied)
	}

	route.Watch(func() {
		mb.enqueue(Down{Subject: subject})
	})
	return nil
}

// Recv blocks until a signal is available, the mailbox is terminated, or
// ctx is done.
func (mb *Mailbox) Recv(ctx context.Context) (Signal, error) {
	for {
		if sig, ok := mb.TryRecv(); ok {
			return sig, nil
		}
		mb.mu.Lock()
		alive := mb.alive
		mb.mu.Unlock()
		if !alive {
			return nil, fmt.Errorf("mailbox: recv: %w", herr.Closed)
		}

		select {
		case <-mb.ding:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryRecv returns the next signal without blocking, or ok=false if the
// queue is empty.
func (mb *Mailbox) TryRecv() (Signal, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if len(mb.queue) == 0 {
		return nil, false
	}
	sig := mb.queue[0]
	mb.queue = mb.queue[1:]
	return sig, true
}

// Poll waits for any one of mailboxes to have a ready signal, returning its
// index and the signal. It is a fan-in receive over many mailboxes of the
// same process.
func Poll(ctx context.Context, mailboxes []*Mailbox) (int, Signal, error) {
	for {
		for i, mb := range mailboxes {
			if sig, ok := mb.TryRecv(); ok {
				return i, sig, nil
			}
		}

		cases := make([]reflect.SelectCase, 0, len(mailboxes)+1)
		for _, mb := range mailboxes {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(mb.ding)})
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

		chosen, _, _ := reflect.Select(cases)
		if chosen == len(mailboxes) {
			return -1, nil, ctx.Err()
		}
	}
}

// SetKillTarget routes Terminate calls arriving through this mailbox's
// capabilities to fn, so a capability with the Kill bit destroys the
// owning process rather than just this one queue. Process.NewMailbox
// installs the process's Kill here; a standalone mailbox without a target
// tears down only itself.
func (mb *Mailbox) SetKillTarget(fn func()) {
	mb.mu.Lock()
	mb.onKill = fn
	mb.mu.Unlock()
}

func (mb *Mailbox) kill() {
	mb.mu.Lock()
	fn := mb.onKill
	mb.mu.Unlock()
	if fn != nil {
		fn()
		return
	}
	mb.terminate()
}

// Close terminates the mailbox directly, without going through a
// capability.Route. Process.Kill uses this to tear down every mailbox it
// owns.
func (mb *Mailbox) Close() {
	mb.terminate()
}

// terminate marks the mailbox dead, waking any blocked Recv/Poll callers,
// and fires every watcher registered against this mailbox's route (see
// LocalRoute.Watch). Draining the queue is the caller's responsibility; the
// signals already enqueued remain available to TryRecv until consumed.
func (mb *Mailbox) terminate() {
	mb.mu.Lock()
	if !mb.alive {
		mb.mu.Unlock()
		return
	}
	mb.alive = false
	watchers := mb.watchers
	mb.watchers = nil
	mb.mu.Unlock()

	mb.notify()
	for _, w := range watchers {
		w()
	}
}

func (mb *Mailbox) isAlive() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.alive
}

func (mb *Mailbox) watch(onDown func()) {
	mb.mu.Lock()
	if mb.alive {
		mb.watchers = append(mb.watchers, onDown)
		mb.mu.Unlock()
		return
	}
	mb.mu.Unlock()
	onDown()
}

func (mb *Mailbox) deliver(payload []byte, caps []capability.Value) error {
	mb.mu.Lock()
	if !mb.alive {
		mb.mu.Unlock()
		return fmt.Errorf("mailbox: deliver: %w", herr.RouteClosed)
	}
	mb.mu.Unlock()

	handles := make([]capability.Handle, len(caps))
	for i, v := range caps {
		handles[i] = mb.table.Import(v)
	}
	mb.enqueue(Message{Payload: payload, Caps: handles})
	return nil
}

func (mb *Mailbox) enqueue(sig Signal) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, sig)
	depth := len(mb.queue)
	mb.mu.Unlock()
	mb.notify()

	metrics.MailboxDepth.Observe(float64(depth))
	switch sig.(type) {
	case Message:
		metrics.MailboxSignalsTotal.WithLabelValues("message").Inc()
	case Down:
		metrics.MailboxSignalsTotal.WithLabelValues("down").Inc()
	}
}

func (mb *Mailbox) notify() {
	select {
	case mb.ding <- struct{}{}:
	default:
	}
}

// Len reports the number of signals currently queued, for metrics and
// tests.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}
