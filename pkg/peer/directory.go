package peer

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/mailbox"
)

// PeerInfo is the informational metadata a PeerApi.GetInfo() call
// returns: nickname and whatever else identifies the peer to a human.
type PeerInfo struct {
	ID       PeerId
	Nickname string
}

// apiKind tags a request sent to a PeerApiServer's mailbox.
type apiKind byte

const (
	apiGetInfo apiKind = iota
	apiGetProcessStore
	apiGetLumpStore
)

// Lookup is the minimal registry contract Directory needs to answer
// find_peer: the capability each connected peer advertised as its own
// PeerApi during the offer handshake (ClientOffer.PeerAPI /
// ServerOffer.PeerProvider's counterpart). *runtime.Runtime satisfies this
// without pkg/peer importing pkg/runtime (which already imports pkg/peer).
type Lookup interface {
	FindPeerCapability(id PeerId) (capability.Value, bool)
}

// Directory answers find_peer queries for every peer currently reachable
// through lookup. It is not itself a capability.Route:
// ServeDirectory adapts one onto a mailbox so it can be addressed across
// the wire as the ServerOffer/DaemonOffer's peer_provider capability.
type Directory struct {
	lookup Lookup
}

// NewDirectory creates a directory backed by lookup.
func NewDirectory(lookup Lookup) *Directory {
	return &Directory{lookup: lookup}
}

// FindPeer resolves id to its advertised PeerApi capability, or
// herr.NotFound if unreachable.
func (d *Directory) FindPeer(id PeerId) (capability.Value, error) {
	cap, ok := d.lookup.FindPeerCapability(id)
	if !ok {
		return capability.Value{}, fmt.Errorf("peer: find_peer %d: %w", id, herr.NotFound)
	}
	return cap, nil
}

// EncodeFindPeerRequest builds the payload for a find_peer(id) request.
func EncodeFindPeerRequest(id PeerId) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(id))
	return buf
}

// DecodeFindPeerRequest parses a find_peer(id) request payload.
func DecodeFindPeerRequest(payload []byte) (PeerId, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("peer: find_peer request: malformed payload (%d bytes)", len(payload))
	}
	return PeerId(binary.BigEndian.Uint32(payload)), nil
}

// ServeDirectory runs dir's request loop against mb until ctx is done or mb
// is closed. Each incoming message is decoded as a find_peer request; the
// first accompanying capability is treated as the reply route. A found
// peer's PeerApi capability rides back in the reply's Caps behind the
// payload [1]; an unreachable one gets the payload [0] and no Caps.
func ServeDirectory(ctx context.Context, mb *mailbox.Mailbox, table *capability.Table, dir *Directory) {
	for {
		sig, err := mb.Recv(ctx)
		if err != nil {
			return
		}
		msg, ok := sig.(mailbox.Message)
		if !ok || len(msg.Caps) == 0 {
			continue
		}
		replyTo := msg.Caps[0]

		id, err := DecodeFindPeerRequest(msg.Payload)
		if err != nil {
			continue
		}

		api, err := dir.FindPeer(id)
		if err != nil {
			_ = mailbox.Send(table, replyTo, []byte{0}, nil)
			continue
		}
		replyCap := table.Import(api)
		_ = mailbox.Send(table, replyTo, []byte{1}, []capability.Handle{replyCap})
	}
}

// FindPeerVia queries a peer_provider capability for id's PeerApi,
// returning the capability handle riding in the reply, or herr.NotFound if
// the provider reports the peer unreachable.
func FindPeerVia(ctx context.Context, table *capability.Table, provider capability.Handle, id PeerId) (capability.Handle, error) {
	mb := mailbox.New(table)
	defer mb.Close()
	replyCap := table.Import(mb.MakeCapability(capability.Send))

	if err := mailbox.Send(table, provider, EncodeFindPeerRequest(id), []capability.Handle{replyCap}); err != nil {
		return 0, fmt.Errorf("peer: find_peer: %w", err)
	}

	sig, err := mb.Recv(ctx)
	if err != nil {
		return 0, fmt.Errorf("peer: find_peer: %w", err)
	}
	msg, ok := sig.(mailbox.Message)
	if !ok {
		return 0, fmt.Errorf("peer: find_peer: unexpected signal")
	}
	if len(msg.Payload) == 0 || msg.Payload[0] == 0 || len(msg.Caps) == 0 {
		return 0, fmt.Errorf("peer: find_peer %d: %w", id, herr.NotFound)
	}
	return msg.Caps[0], nil
}

// PeerApiServer answers GetInfo/GetProcessStore/GetLumpStore requests about
// this peer on behalf of whoever holds the capability ServeDirectory or a
// ClientOffer handed them.
type PeerApiServer struct {
	Info         PeerInfo
	ProcessStore capability.Value
	LumpStore    capability.Value
}

// ServePeerApi runs srv's request loop against mb until ctx is done or mb
// is closed. Each message's first byte selects the request kind; the reply
// route is the message's first capability.
func ServePeerApi(ctx context.Context, mb *mailbox.Mailbox, table *capability.Table, srv *PeerApiServer) {
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

		switch apiKind(msg.Payload[0]) {
		case apiGetInfo:
			_ = mailbox.Send(table, replyTo, encodePeerInfo(srv.Info), nil)
		case apiGetProcessStore:
			h := table.Import(srv.ProcessStore)
			_ = mailbox.Send(table, replyTo, nil, []capability.Handle{h})
		case apiGetLumpStore:
			h := table.Import(srv.LumpStore)
			_ = mailbox.Send(table, replyTo, nil, []capability.Handle{h})
		}
	}
}

func encodePeerInfo(info PeerInfo) []byte {
	nick := []byte(info.Nickname)
	buf := make([]byte, 4+2+len(nick))
	binary.BigEndian.PutUint32(buf[0:4], uint32(info.ID))
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(nick)))
	copy(buf[6:], nick)
	return buf
}

func decodePeerInfo(payload []byte) (PeerInfo, error) {
	if len(payload) < 6 {
		return PeerInfo{}, fmt.Errorf("peer: get_info reply: truncated payload")
	}
	id := PeerId(binary.BigEndian.Uint32(payload[0:4]))
	nickLen := int(binary.BigEndian.Uint16(payload[4:6]))
	if len(payload) < 6+nickLen {
		return PeerInfo{}, fmt.Errorf("peer: get_info reply: truncated nickname")
	}
	return PeerInfo{ID: id, Nickname: string(payload[6 : 6+nickLen])}, nil
}

// PeerApi is the client-side handle a Directory.FindPeer caller uses to
// query a remote peer's info, process store, and lump store capabilities.
// It issues one request at a time over a scratch mailbox
// and blocks for the matching reply.
type PeerApi struct {
	table *capability.Table
	cap   capability.Handle
}

// NewPeerApi wraps the capability a Directory.FindPeer lookup returned.
func NewPeerApi(table *capability.Table, cap capability.Handle) *PeerApi {
	return &PeerApi{table: table, cap: cap}
}

func (a *PeerApi) call(ctx context.Context, kind apiKind) (mailbox.Message, error) {
	mb := mailbox.New(a.table)
	replyCap := mb.MakeCapability(capability.Send)

	if err := mailbox.Send(a.table, a.cap, []byte{byte(kind)}, []capability.Handle{a.table.Import(replyCap)}); err != nil {
		return mailbox.Message{}, fmt.Errorf("peer: peer api call: %w", err)
	}

	sig, err := mb.Recv(ctx)
	if err != nil {
		return mailbox.Message{}, fmt.Errorf("peer: peer api call: %w", err)
	}
	msg, ok := sig.(mailbox.Message)
	if !ok {
		return mailbox.Message{}, fmt.Errorf("peer: peer api call: unexpected signal")
	}
	return msg, nil
}

// GetInfo retrieves the peer's informational metadata.
func (a *PeerApi) GetInfo(ctx context.Context) (PeerInfo, error) {
	msg, err := a.call(ctx, apiGetInfo)
	if err != nil {
		return PeerInfo{}, err
	}
	return decodePeerInfo(msg.Payload)
}

// GetProcessStore retrieves a capability to the peer's process registry.
func (a *PeerApi) GetProcessStore(ctx context.Context) (capability.Handle, error) {
	msg, err := a.call(ctx, apiGetProcessStore)
	if err != nil {
		return 0, err
	}
	if len(msg.Caps) == 0 {
		return 0, fmt.Errorf("peer: get_process_store: reply carried no capability")
	}
	return msg.Caps[0], nil
}

// GetLumpStore retrieves a capability to the peer's lump store.
func (a *PeerApi) GetLumpStore(ctx context.Context) (capability.Handle, error) {
	msg, err := a.call(ctx, apiGetLumpStore)
	if err != nil {
		return 0, err
	}
	if len(msg.Caps) == 0 {
		return 0, fmt.Errorf("peer: get_lump_store: reply carried no capability")
	}
	return msg.Caps[0], nil
}
