package runtime

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/cuemby/hearth/pkg/auth"
	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/cuemby/hearth/pkg/peer"
	"github.com/cuemby/hearth/pkg/transport"
)

// HandshakeServer runs the server side of the wire protocol on conn: PAKE
// login, directional cipher setup, ServerOffer out, ClientOffer in. On
// success the peer is registered with the runtime and its advertised
// PeerApi capability recorded for directory lookups. The returned Peer is
// not yet serving; the caller owns its Serve loop and must ForgetPeer when
// it returns.
func (rt *Runtime) HandshakeServer(ctx context.Context, conn io.ReadWriter, authn *auth.ServerAuthenticator, provider capability.Value) (*peer.Peer, error) {
	sessionKey, err := authn.Login(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("runtime: server handshake: %w", err)
	}

	enc, err := transport.NewEncryptor(transport.FromServerSession(sessionKey), conn)
	if err != nil {
		return nil, fmt.Errorf("runtime: server handshake: %w", err)
	}
	dec, err := transport.NewDecryptor(transport.FromClientSession(sessionKey), conn)
	if err != nil {
		return nil, fmt.Errorf("runtime: server handshake: %w", err)
	}

	id := rt.AllocatePeerID()
	p := peer.New(id, dec, enc)

	if err := peer.SendServerOffer(enc, p, peer.ServerOffer{NewID: id, PeerProvider: provider}); err != nil {
		return nil, fmt.Errorf("runtime: server handshake: %w", err)
	}
	clientOffer, err := peer.RecvClientOffer(dec, p)
	if err != nil {
		return nil, fmt.Errorf("runtime: server handshake: %w", err)
	}

	rt.RegisterPeer(p)
	rt.SetPeerAPI(id, clientOffer.PeerAPI)
	return p, nil
}

// HandshakeClient runs the client side of the wire protocol on conn: PAKE
// login with password, directional cipher setup, ServerOffer in,
// ClientOffer out advertising api as this runtime's peer API. The returned
// Peer carries the id the server assigned us; the caller owns its Serve
// loop.
func HandshakeClient(ctx context.Context, conn io.ReadWriter, password []byte, api capability.Value) (*peer.Peer, peer.ServerOffer, error) {
	sessionKey, err := auth.Login(ctx, conn, password)
	if err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: client handshake: %w", err)
	}

	enc, err := transport.NewEncryptor(transport.FromClientSession(sessionKey), conn)
	if err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: client handshake: %w", err)
	}
	dec, err := transport.NewDecryptor(transport.FromServerSession(sessionKey), conn)
	if err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: client handshake: %w", err)
	}

	p := peer.New(0, dec, enc)
	offer, err := peer.RecvServerOffer(dec, p)
	if err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: client handshake: %w", err)
	}
	p.ID = offer.NewID

	if err := peer.SendClientOffer(enc, p, peer.ClientOffer{PeerAPI: api}); err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: client handshake: %w", err)
	}
	return p, offer, nil
}

// JoinPeer dials addr, authenticates with password, and runs the joined
// connection's Serve loop in a background goroutine until ctx is done or
// the transport fails. The server's peer_provider capability from its
// offer is returned so the caller can seed its directory lookups.
func (rt *Runtime) JoinPeer(ctx context.Context, addr string, password []byte, api capability.Value) (*peer.Peer, peer.ServerOffer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, peer.ServerOffer{}, fmt.Errorf("runtime: joining %s: %w", addr, err)
	}

	p, offer, err := HandshakeClient(ctx, conn, password, api)
	if err != nil {
		conn.Close()
		return nil, peer.ServerOffer{}, err
	}

	rt.RegisterPeer(p)
	go func() {
		defer conn.Close()
		defer rt.ForgetPeer(p.ID)
		if err := p.Serve(ctx); err != nil {
			plog := log.WithPeer(uint32(p.ID))
			plog.Warn().Err(err).Str("addr", addr).Msg("joined peer connection ended")
		}
	}()
	return p, offer, nil
}
