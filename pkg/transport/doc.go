/*
Package transport wraps an authenticated duplex byte pipe in a ChaCha20
stream cipher, consuming the session key pkg/auth's handshake produced.

	auth.SessionKey (64 bytes)
	  ├─ [0:32)  Key          (shared cipher key, both directions)
	  ├─ [32:44) client→server nonce
	  └─ [44:56) server→client nonce

	FromClientSession(session) ─┐
	FromServerSession(session) ─┴─▶ Cipher (golang.org/x/crypto/chacha20)

	AsyncEncryptor wraps an io.Writer: every Write XORs with the keystream
	  before handing bytes to the underlying transport.
	AsyncDecryptor wraps an io.Reader: every Read XORs with the keystream
	  after bytes arrive from the underlying transport.

The cipher is stateful and stream-synchronized: it assumes the underlying
transport delivers bytes in order, exactly once, with no gaps. A dropped or
reordered byte desynchronizes the keystream permanently for the rest of
the connection; there is no recovery but tearing the connection down.
*/
package transport
