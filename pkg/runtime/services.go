package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/mailbox"
)

// lumpOp tags a request sent to a served lump store's mailbox. The request
// payload is the op byte followed by its operand; the first capability on
// the message is the reply route.
type lumpOp byte

const (
	lumpOpAdd lumpOp = iota
	lumpOpGet
)

const (
	lumpStatusOK byte = iota
	lumpStatusNotFound
	lumpStatusErr
)

// ServeLumpStore answers Add/Get requests about lumps on mb until ctx is
// done or mb is closed. This is what a PeerApi.GetLumpStore or
// DaemonOffer capability ultimately addresses.
func ServeLumpStore(ctx context.Context, mb *mailbox.Mailbox, table *capability.Table, lumps lump.Store) {
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

		switch lumpOp(msg.Payload[0]) {
		case lumpOpAdd:
			id, err := lumps.Add(operand)
			if err != nil {
				_ = mailbox.Send(table, replyTo, lumpStatusReply(err), nil)
				continue
			}
			_ = mailbox.Send(table, replyTo, append([]byte{lumpStatusOK}, id[:]...), nil)
		case lumpOpGet:
			if len(operand) != lump.IDSize {
				_ = mailbox.Send(table, replyTo, lumpStatusReply(fmt.Errorf("malformed lump id")), nil)
				continue
			}
			data, err := lumps.Get(lump.ID(operand))
			if err != nil {
				_ = mailbox.Send(table, replyTo, lumpStatusReply(err), nil)
				continue
			}
			_ = mailbox.Send(table, replyTo, append([]byte{lumpStatusOK}, data...), nil)
		}
	}
}

func lumpStatusReply(err error) []byte {
	status := lumpStatusErr
	if errors.Is(err, herr.LumpNotFound) {
		status = lumpStatusNotFound
	}
	return append([]byte{status}, err.Error()...)
}

// LumpClient issues Add/Get requests against a served lump store through a
// capability, local or remote.
type LumpClient struct {
	table *capability.Table
	cap   capability.Handle
}

// NewLumpClient wraps the lump-store capability a PeerApi or DaemonOffer
// handed out.
func NewLumpClient(table *capability.Table, cap capability.Handle) *LumpClient {
	return &LumpClient{table: table, cap: cap}
}

func (c *LumpClient) call(ctx context.Context, op lumpOp, operand []byte) ([]byte, error) {
	mb := mailbox.New(c.table)
	defer mb.Close()
	replyCap := c.table.Import(mb.MakeCapability(capability.Send))

	if err := mailbox.Send(c.table, c.cap, append([]byte{byte(op)}, operand...), []capability.Handle{replyCap}); err != nil {
		return nil, fmt.Errorf("runtime: lump client: %w", err)
	}

	sig, err := mb.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("runtime: lump client: %w", err)
	}
	msg, ok := sig.(mailbox.Message)
	if !ok {
		return nil, fmt.Errorf("runtime: lump client: unexpected signal")
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("runtime: lump client: empty reply")
	}
	switch msg.Payload[0] {
	case lumpStatusOK:
		return msg.Payload[1:], nil
	case lumpStatusNotFound:
		return nil, fmt.Errorf("runtime: lump client: %s: %w", msg.Payload[1:], herr.LumpNotFound)
	default:
		return nil, fmt.Errorf("runtime: lump client: %s", msg.Payload[1:])
	}
}

// Add stores data in the remote lump store and returns its id.
func (c *LumpClient) Add(ctx context.Context, data []byte) (lump.ID, error) {
	reply, err := c.call(ctx, lumpOpAdd, data)
	if err != nil {
		return lump.ID{}, err
	}
	if len(reply) != lump.IDSize {
		return lump.ID{}, fmt.Errorf("runtime: lump client: malformed id reply")
	}
	return lump.ID(reply), nil
}

// Get retrieves the bytes for id from the remote lump store.
func (c *LumpClient) Get(ctx context.Context, id lump.ID) ([]byte, error) {
	return c.call(ctx, lumpOpGet, id[:])
}
