package process

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/mailbox"
)

// storeOp tags a request sent to a served process store's mailbox. The
// request payload is the op byte followed by its operand; the first
// capability on the message is the reply route.
type storeOp byte

const (
	opList storeOp = iota
	opFind
	opKill
	opSpawn
)

// Reply status bytes. A statusErr reply carries the error text after the
// status byte, for diagnostics only; callers branch on the status.
const (
	statusOK byte = iota
	statusNotFound
	statusErr
)

// Summary is one process's row in a List reply: everything a remote caller
// may learn about a process without holding a capability to it.
type Summary struct {
	ID    LocalProcessId
	State State
	Name  string
}

// ServeStore answers List/Find/Kill/Spawn requests about store on mb until
// ctx is done or mb is closed. Spawned processes are given the request's
// second capability (if present) as their parent capability.
func ServeStore(ctx context.Context, mb *mailbox.Mailbox, table *capability.Table, store *Store, factory *Factory) {
	for {
		sig, err := mb.Recv(ctx)
		if err != nil {
			return
		}
		msg, ok := sig.(mailbox.Message)
		if !ok || len(msg.Payload) == 0 || len(msg.Caps) == 0 {
			continue
		}
		replyTo := msg.Caps[0]
		operand := msg.Payload[1:]

		switch storeOp(msg.Payload[0]) {
		case opList:
			_ = mailbox.Send(table, replyTo, encodeListReply(store.List()), nil)
		case opFind:
			p, err := store.Find(string(operand))
			if err != nil {
				_ = mailbox.Send(table, replyTo, statusReply(err), nil)
				continue
			}
			_ = mailbox.Send(table, replyTo, pidReply(p.ID), nil)
		case opKill:
			if len(operand) != 8 {
				_ = mailbox.Send(table, replyTo, statusReply(fmt.Errorf("malformed kill operand")), nil)
				continue
			}
			id := LocalProcessId(binary.BigEndian.Uint64(operand))
			p, err := store.Get(id)
			if err != nil {
				_ = mailbox.Send(table, replyTo, statusReply(err), nil)
				continue
			}
			p.Kill()
			_ = mailbox.Send(table, replyTo, []byte{statusOK}, nil)
		case opSpawn:
			var parent *capability.Value
			if len(msg.Caps) > 1 {
				// Prefer a Monitor-capable export so the spawn-time
				// parent watch can be installed; fall back to Send-only
				// when the caller's capability lacks the bit.
				if v, err := table.Export(msg.Caps[1], capability.Send|capability.Monitor); err == nil {
					parent = &v
				} else if v, err := table.Export(msg.Caps[1], capability.Send); err == nil {
					parent = &v
				}
			}
			p, err := factory.Spawn(Metadata{Name: string(operand)}, parent)
			if err != nil {
				_ = mailbox.Send(table, replyTo, statusReply(err), nil)
				continue
			}
			p.Run()
			_ = mailbox.Send(table, replyTo, pidReply(p.ID), nil)
		}
	}
}

func statusReply(err error) []byte {
	status := statusErr
	if errors.Is(err, herr.NotFound) {
		status = statusNotFound
	}
	return append([]byte{status}, err.Error()...)
}

func pidReply(id LocalProcessId) []byte {
	buf := make([]byte, 1+8)
	buf[0] = statusOK
	binary.BigEndian.PutUint64(buf[1:], uint64(id))
	return buf
}

func encodeListReply(procs []*Process) []byte {
	buf := make([]byte, 1+4, 1+4+len(procs)*16)
	buf[0] = statusOK
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(procs)))
	for _, p := range procs {
		row := make([]byte, 8+1+2+len(p.Meta.Name))
		binary.BigEndian.PutUint64(row[0:8], uint64(p.ID))
		row[8] = byte(p.State())
		binary.BigEndian.PutUint16(row[9:11], uint16(len(p.Meta.Name)))
		copy(row[11:], p.Meta.Name)
		buf = append(buf, row...)
	}
	return buf
}

func decodeListReply(payload []byte) ([]Summary, error) {
	if len(payload) < 5 || payload[0] != statusOK {
		return nil, fmt.Errorf("process: list reply: malformed or failed")
	}
	count := binary.BigEndian.Uint32(payload[1:5])
	rest := payload[5:]

	out := make([]Summary, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 11 {
			return nil, fmt.Errorf("process: list reply: truncated row %d", i)
		}
		nameLen := int(binary.BigEndian.Uint16(rest[9:11]))
		if len(rest) < 11+nameLen {
			return nil, fmt.Errorf("process: list reply: truncated name in row %d", i)
		}
		out = append(out, Summary{
			ID:    LocalProcessId(binary.BigEndian.Uint64(rest[0:8])),
			State: State(rest[8]),
			Name:  string(rest[11 : 11+nameLen]),
		})
		rest = rest[11+nameLen:]
	}
	return out, nil
}

func decodePidReply(payload []byte) (LocalProcessId, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("process: reply: empty payload")
	}
	switch payload[0] {
	case statusOK:
		if len(payload) != 9 {
			return 0, fmt.Errorf("process: reply: malformed pid")
		}
		return LocalProcessId(binary.BigEndian.Uint64(payload[1:])), nil
	case statusNotFound:
		return 0, fmt.Errorf("process: %s: %w", payload[1:], herr.NotFound)
	default:
		return 0, fmt.Errorf("process: remote store: %s", payload[1:])
	}
}

// StoreClient issues requests against a served process store through a
// capability, local or remote. Each call uses a scratch reply mailbox and
// blocks for the matching reply.
type StoreClient struct {
	table *capability.Table
	cap   capability.Handle
}

// NewStoreClient wraps the process-store capability a PeerApi or
// DaemonOffer handed out.
func NewStoreClient(table *capability.Table, cap capability.Handle) *StoreClient {
	return &StoreClient{table: table, cap: cap}
}

func (c *StoreClient) call(ctx context.Context, op storeOp, operand []byte, extra []capability.Handle) ([]byte, error) {
	mb := mailbox.New(c.table)
	defer mb.Close()
	replyCap := c.table.Import(mb.MakeCapability(capability.Send))

	payload := append([]byte{byte(op)}, operand...)
	caps := append([]capability.Handle{replyCap}, extra...)
	if err := mailbox.Send(c.table, c.cap, payload, caps); err != nil {
		return nil, fmt.Errorf("process: store client: %w", err)
	}

	sig, err := mb.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("process: store client: %w", err)
	}
	msg, ok := sig.(mailbox.Message)
	if !ok {
		return nil, fmt.Errorf("process: store client: unexpected signal")
	}
	return msg.Payload, nil
}

// List retrieves a summary of every live process on the store's peer.
func (c *StoreClient) List(ctx context.Context) ([]Summary, error) {
	payload, err := c.call(ctx, opList, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeListReply(payload)
}

// Find resolves a process name to its pid.
func (c *StoreClient) Find(ctx context.Context, name string) (LocalProcessId, error) {
	payload, err := c.call(ctx, opFind, []byte(name), nil)
	if err != nil {
		return 0, err
	}
	return decodePidReply(payload)
}

// Kill terminates the process with the given pid on the store's peer.
func (c *StoreClient) Kill(ctx context.Context, id LocalProcessId) error {
	operand := make([]byte, 8)
	binary.BigEndian.PutUint64(operand, uint64(id))
	payload, err := c.call(ctx, opKill, operand, nil)
	if err != nil {
		return err
	}
	switch {
	case len(payload) == 0:
		return fmt.Errorf("process: kill: empty reply")
	case payload[0] == statusOK:
		return nil
	case payload[0] == statusNotFound:
		return fmt.Errorf("process: kill: %s: %w", payload[1:], herr.NotFound)
	default:
		return fmt.Errorf("process: kill: %s", payload[1:])
	}
}

// Spawn asks the store's peer to spawn a named process, optionally handing
// it parent as its parent capability, and returns the new pid.
func (c *StoreClient) Spawn(ctx context.Context, name string, parent *capability.Handle) (LocalProcessId, error) {
	var extra []capability.Handle
	if parent != nil {
		extra = append(extra, *parent)
	}
	payload, err := c.call(ctx, opSpawn, []byte(name), extra)
	if err != nil {
		return 0, err
	}
	return decodePidReply(payload)
}
