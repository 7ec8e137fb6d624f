package peer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hearth/pkg/capability"
)

// ServerOffer is the first message a server sends after the encrypted
// stream is established: the PeerId it assigns the connecting client, and
// a capability to the server's peer-directory service.
type ServerOffer struct {
	NewID        PeerId
	PeerProvider capability.Value
}

// ClientOffer is the client's reply: a capability exposing its own local
// peer API (info, process store) to the server.
type ClientOffer struct {
	PeerAPI capability.Value
}

// SendServerOffer exports offer.PeerProvider into p's export table and
// writes the offer to w.
func SendServerOffer(w io.Writer, p *Peer, offer ServerOffer) error {
	cd := p.Export(offer.PeerProvider.Route, offer.PeerProvider.Permissions)

	buf := make([]byte, 4+4+1)
	binary.BigEndian.PutUint32(buf[0:4], uint32(offer.NewID))
	binary.BigEndian.PutUint32(buf[4:8], cd.ID)
	buf[8] = byte(cd.Perms)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("peer: send server offer: %w", err)
	}
	return nil
}

// RecvServerOffer reads a ServerOffer from r, importing its capability
// through p's import table.
func RecvServerOffer(r io.Reader, p *Peer) (ServerOffer, error) {
	buf := make([]byte, 4+4+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ServerOffer{}, fmt.Errorf("peer: recv server offer: %w", err)
	}

	newID := PeerId(binary.BigEndian.Uint32(buf[0:4]))
	cd := CapDescriptor{ID: binary.BigEndian.Uint32(buf[4:8]), Perms: capability.Permission(buf[8])}

	return ServerOffer{NewID: newID, PeerProvider: p.Import(cd)}, nil
}

// SendClientOffer exports offer.PeerAPI into p's export table and writes
// the offer to w.
func SendClientOffer(w io.Writer, p *Peer, offer ClientOffer) error {
	cd := p.Export(offer.PeerAPI.Route, offer.PeerAPI.Permissions)

	buf := make([]byte, 4+1)
	binary.BigEndian.PutUint32(buf[0:4], cd.ID)
	buf[4] = byte(cd.Perms)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("peer: send client offer: %w", err)
	}
	return nil
}

// RecvClientOffer reads a ClientOffer from r, importing its capability
// through p's import table.
func RecvClientOffer(r io.Reader, p *Peer) (ClientOffer, error) {
	buf := make([]byte, 4+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ClientOffer{}, fmt.Errorf("peer: recv client offer: %w", err)
	}

	cd := CapDescriptor{ID: binary.BigEndian.Uint32(buf[0:4]), Perms: capability.Permission(buf[4])}
	return ClientOffer{PeerAPI: p.Import(cd)}, nil
}
