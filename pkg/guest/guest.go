package guest

import (
	"context"
	"fmt"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/mailbox"
	"github.com/cuemby/hearth/pkg/process"
)

// MailboxNew creates a mailbox owned by p, backing the guest's
// mailbox_new().
func MailboxNew(p *process.Process) *mailbox.Mailbox {
	return p.NewMailbox()
}

// MailboxRecv blocks until a signal is available on mb or ctx is done,
// backing mailbox_recv(mb).
func MailboxRecv(ctx context.Context, mb *mailbox.Mailbox) (mailbox.Signal, error) {
	return mb.Recv(ctx)
}

// MailboxTryRecv returns the next signal without blocking, backing
// mailbox_try_recv(mb).
func MailboxTryRecv(mb *mailbox.Mailbox) (mailbox.Signal, bool) {
	return mb.TryRecv()
}

// MailboxPoll fans in over mbs, backing mailbox_poll([mb]). An empty slice
// returns a well-defined "no mailboxes" error rather than blocking forever.
func MailboxPoll(ctx context.Context, mbs []*mailbox.Mailbox) (int, mailbox.Signal, error) {
	if len(mbs) == 0 {
		return -1, nil, fmt.Errorf("guest: poll: %w: no mailboxes given", herr.Closed)
	}
	return mailbox.Poll(ctx, mbs)
}

// MailboxMonitor installs a one-shot watch on subject, enqueuing a Down on
// mb when its route is destroyed, backing mailbox_monitor(mb, cap).
func MailboxMonitor(mb *mailbox.Mailbox, p *process.Process, subject capability.Handle) error {
	return mailbox.Monitor(mb, p.Table, subject)
}

// CapSend resolves cap in p's table and delivers payload plus caps to its
// target, backing cap_send(cap, payload, [cap]).
func CapSend(p *process.Process, cap capability.Handle, payload []byte, caps []capability.Handle) error {
	return mailbox.Send(p.Table, cap, payload, caps)
}

// CapKill resolves cap in p's table and terminates its target, backing
// cap_kill(cap).
func CapKill(p *process.Process, cap capability.Handle) error {
	return mailbox.Kill(p.Table, cap)
}

// CapDemote mints a new handle for cap with a narrower permission subset,
// backing cap_demote(cap, perms) -> cap.
func CapDemote(p *process.Process, cap capability.Handle, perms capability.Permission) (capability.Handle, error) {
	return p.Table.Demote(cap, perms)
}

// LumpLoad stores data in the lump store, backing lump_load(bytes) ->
// LumpId.
func LumpLoad(store lump.Store, data []byte) (lump.ID, error) {
	return store.Add(data)
}

// LumpGet retrieves the bytes for id, backing lump_get(LumpId) -> bytes.
func LumpGet(store lump.Store, id lump.ID) ([]byte, error) {
	return store.Get(id)
}

// RegistryGet looks up a named service, backing registry_get(name) -> cap.
func RegistryGet(dir process.Directory, name string) (capability.Value, error) {
	return dir.Get(name)
}

// RegistryList lists every registered service name, backing
// registry_list().
func RegistryList(dir process.Directory) []string {
	return dir.List()
}

// Log appends an entry to p's log ring buffer, backing log(level, module,
// text). Payloads are opaque to this boundary: module and text are
// whatever the guest chose to send.
func Log(p *process.Process, level process.LogLevel, module, text string) {
	p.Log(level, module, text)
}

// ThisLump returns the lump the calling process's code was loaded from, if
// the host recorded one, backing this_lump().
func ThisLump(p *process.Process) (lump.ID, bool) {
	return p.SourceLump()
}

// ProcessMetadata returns p's informational metadata, backing
// process_metadata(...).
func ProcessMetadata(p *process.Process) process.Metadata {
	return p.Meta
}
