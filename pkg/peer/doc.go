/*
Package peer implements Hearth's peer plane: turning an
authenticated, encrypted duplex stream (pkg/auth + pkg/transport) into a
bidirectional flow of framed messages addressing capabilities across
hosts.

	ServerOffer{ NewID, PeerProvider } ──▶  (server assigns the client a
	                                         PeerId and a capability to its
	                                         peer-directory service)
	ClientOffer{ PeerAPI }            ──▶  (client hands back a capability
	                                         to its own local peer API)

	Frame{ Kind, Target, Payload, Caps } is the unit exchanged after the
	offer handshake. Target is always a numeric capability id shared by
	both sides; which of a Peer's two tables resolves it depends on Kind:

	  Message, Kill, Release  →  resolved against the receiver's EXPORT
	                             table (the receiver owns the object)
	  Down                    →  resolved against the receiver's IMPORT
	                             table (the sender owns the object and is
	                             reporting that it died)

Each connection runs one read goroutine decoding frames and dispatching
them, and one write goroutine serializing outgoing frames onto the
encrypted stream.

RemoteRoute adapts an imported capability id to capability.Route, the
remote-plane counterpart of pkg/mailbox.LocalRoute. Its Released hook is
where this package differs from a local route: dropping the last local
reference to a RemoteRoute sends a Release frame upstream instead of
tearing anything down directly.
*/
package peer
