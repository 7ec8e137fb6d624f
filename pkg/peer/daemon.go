package peer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/hearth/pkg/capability"
)

// DaemonOffer is what a local IPC client receives on connecting to the
// daemon's Unix socket: the daemon's own peer id, a capability to its
// peer directory, and a capability to its process factory/store. This is
// the same capability graph a remote peer gets, minus the PAKE and
// encryption a trusted local socket doesn't need.
type DaemonOffer struct {
	PeerID         PeerId
	PeerProvider   capability.Value
	ProcessFactory capability.Value
}

// SendDaemonOffer exports the offer's capabilities into p's export table
// and writes the offer to w as the connection's first bytes.
func SendDaemonOffer(w io.Writer, p *Peer, offer DaemonOffer) error {
	provider := p.Export(offer.PeerProvider.Route, offer.PeerProvider.Permissions)
	factory := p.Export(offer.ProcessFactory.Route, offer.ProcessFactory.Permissions)

	buf := make([]byte, 4+4+1+4+1)
	binary.BigEndian.PutUint32(buf[0:4], uint32(offer.PeerID))
	binary.BigEndian.PutUint32(buf[4:8], provider.ID)
	buf[8] = byte(provider.Perms)
	binary.BigEndian.PutUint32(buf[9:13], factory.ID)
	buf[13] = byte(factory.Perms)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("peer: send daemon offer: %w", err)
	}
	return nil
}

// RecvDaemonOffer reads a DaemonOffer from r, importing its capabilities
// through p's import table.
func RecvDaemonOffer(r io.Reader, p *Peer) (DaemonOffer, error) {
	buf := make([]byte, 4+4+1+4+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return DaemonOffer{}, fmt.Errorf("peer: recv daemon offer: %w", err)
	}

	provider := CapDescriptor{ID: binary.BigEndian.Uint32(buf[4:8]), Perms: capability.Permission(buf[8])}
	factory := CapDescriptor{ID: binary.BigEndian.Uint32(buf[9:13]), Perms: capability.Permission(buf[13])}

	return DaemonOffer{
		PeerID:         PeerId(binary.BigEndian.Uint32(buf[0:4])),
		PeerProvider:   p.Import(provider),
		ProcessFactory: p.Import(factory),
	}, nil
}
