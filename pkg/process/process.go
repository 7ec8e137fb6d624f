package process

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/mailbox"
	"github.com/google/uuid"
)

// LocalProcessId identifies a process uniquely within its peer, for the
// lifetime of the peer. Allocation is strictly increasing; a dead id is
// never reused.
type LocalProcessId uint64

// State is a point in the process lifecycle state machine.
type State int

const (
	StateSpawned State = iota
	StateLive
	StateTerminating
	StateDead
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateLive:
		return "live"
	case StateTerminating:
		return "terminating"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// LogLevel mirrors the severity levels exposed to guest code through the
// host-guest log(level, module, text) call.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarning
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "trace"
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarning:
		return "warning"
	case LogError:
		return "error"
	default:
		return "unknown"
	}
}

// LogEvent is one entry in a process's log ring buffer.
type LogEvent struct {
	Level   LogLevel
	Module  string
	Content string
}

// Metadata is informational data attached to a process at spawn time: it
// has no bearing on scheduling or permissions.
type Metadata struct {
	ID          uuid.UUID
	Name        string
	Description string
	Authorship  string
}

// defaultLogCapacity bounds the per-process log ring buffer.
const defaultLogCapacity = 256

// Process is a schedulable unit: an owned capability table, one or more
// mailboxes, and a lifecycle state machine.
type Process struct {
	ID   LocalProcessId
	Meta Metadata

	Table *capability.Table

	mu        sync.Mutex
	state     State
	mailboxes []*mailbox.Mailbox

	parent    capability.Handle
	hasParent bool

	logs    []LogEvent
	logCap  int

	sourceLump    lump.ID
	hasSourceLump bool

	store *Store
}

// Factory mints processes with strictly increasing LocalProcessIds,
// tracking each live one in its store.
type Factory struct {
	next  atomic.Uint64
	store *Store
}

// NewFactory creates a process factory inserting into store.
func NewFactory(store *Store) *Factory {
	return &Factory{store: store}
}

// Spawn allocates a fresh LocalProcessId and an empty capability table, and
// returns the new process in the spawned state. If parent is non-nil, it
// becomes the process's parent capability, and a monitor is installed on
// it at spawn time: when the parent's route is destroyed, the child is
// killed, passing through terminating to dead (the parent_down arc of the
// state machine).
// The watch needs the Monitor bit; a parent capability without it is held
// as an informational reference only. Spawn fails with herr.SpawnLimit
// once the store is at its live-process cap; the consumed id is not
// returned to the allocator (dead or never-born, an id is used exactly
// once).
func (f *Factory) Spawn(meta Metadata, parent *capability.Value) (*Process, error) {
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	p := &Process{
		ID:     LocalProcessId(f.next.Add(1)),
		Meta:   meta,
		Table:  capability.NewTable(),
		state:  StateSpawned,
		logCap: defaultLogCapacity,
		store:  f.store,
	}

	if err := f.store.insert(p); err != nil {
		return nil, err
	}

	if parent != nil {
		p.parent = p.Table.Import(*parent)
		p.hasParent = true
		if parent.Permissions.Has(capability.Monitor) {
			// Fires immediately if the parent is already dead; the
			// child is then returned already dead.
			parent.Route.Watch(p.Kill)
		}
	}

	p.appendLog(LogEvent{Level: LogInfo, Module: "process", Content: "spawned"})
	return p, nil
}

// Run transitions a spawned process to live. It is a no-op if the process
// has already left the spawned state.
func (p *Process) Run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateSpawned {
		p.state = StateLive
	}
}

// State reports the process's current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NewMailbox creates a mailbox owned by this process's capability table and
// tracks it for teardown on Kill.
func (p *Process) NewMailbox() *mailbox.Mailbox {
	mb := mailbox.New(p.Table)
	mb.SetKillTarget(p.Kill)
	p.mu.Lock()
	p.mailboxes = append(p.mailboxes, mb)
	p.mu.Unlock()
	return mb
}

// Kill transitions the process through terminating to dead: every mailbox
// is closed (waking blocked receivers and firing their monitors), and the
// capability table is left in place, unlocked and uncleared, so its
// handles still resolve. Kill is idempotent.
func (p *Process) Kill() {
	p.mu.Lock()
	if p.state == StateTerminating || p.state == StateDead {
		p.mu.Unlock()
		return
	}
	p.state = StateTerminating
	mailboxes := append([]*mailbox.Mailbox(nil), p.mailboxes...)
	p.mu.Unlock()

	for _, mb := range mailboxes {
		mb.Close()
	}

	p.mu.Lock()
	p.state = StateDead
	p.mu.Unlock()

	p.store.remove(p.ID)
	p.appendLog(LogEvent{Level: LogInfo, Module: "process", Content: "killed"})
}

// Alive reports whether the process still accepts messages.
func (p *Process) Alive() bool {
	return p.State() == StateLive || p.State() == StateSpawned
}

// ParentCapability returns the handle the process was spawned with, if
// any.
func (p *Process) ParentCapability() (capability.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent, p.hasParent
}

// SetSourceLump records the lump this process's code was loaded from,
// backing the host-guest this_lump() call.
func (p *Process) SetSourceLump(id lump.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceLump = id
	p.hasSourceLump = true
}

// SourceLump returns the lump this process's code was loaded from, if any.
func (p *Process) SourceLump() (lump.ID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourceLump, p.hasSourceLump
}

// Log appends an entry to the process's log ring buffer, evicting the
// oldest entry once the buffer is full, and writes it through the
// log.WithProcess child logger with the module as a field. This backs the
// host-guest log(level, module, text) call.
func (p *Process) Log(level LogLevel, module, content string) {
	p.appendLog(LogEvent{Level: level, Module: module, Content: content})

	plog := log.WithProcess(uint64(p.ID))
	switch level {
	case LogTrace:
		plog.Trace().Str("module", module).Msg(content)
	case LogDebug:
		plog.Debug().Str("module", module).Msg(content)
	case LogWarning:
		plog.Warn().Str("module", module).Msg(content)
	case LogError:
		plog.Error().Str("module", module).Msg(content)
	default:
		plog.Info().Str("module", module).Msg(content)
	}
}

func (p *Process) appendLog(ev LogEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, ev)
	if len(p.logs) > p.logCap {
		p.logs = p.logs[len(p.logs)-p.logCap:]
	}
}

// Logs returns a snapshot of the process's log ring buffer, oldest first.
func (p *Process) Logs() []LogEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LogEvent, len(p.logs))
	copy(out, p.logs)
	return out
}

// String renders a process for diagnostic logging.
func (p *Process) String() string {
	return fmt.Sprintf("process{id=%d, name=%q, state=%s}", p.ID, p.Meta.Name, p.State())
}
