package transport

import (
	"fmt"

	"github.com/cuemby/hearth/pkg/auth"
	"golang.org/x/crypto/chacha20"
)

// keySize and nonceSize match golang.org/x/crypto/chacha20's requirements:
// a 32-byte key and a 12-byte nonce (the IETF variant).
const (
	keySize   = chacha20.KeySize
	nonceSize = chacha20.NonceSize
)

// Key is a cipher key and directional nonce derived from an
// auth.SessionKey, ready to construct a Cipher.
type Key struct {
	key   [keySize]byte
	nonce [nonceSize]byte
}

// FromClientSession derives the client→server Key from session: the
// shared key at [0:32) and the client→server nonce at [32:44).
func FromClientSession(session auth.SessionKey) Key {
	var k Key
	copy(k.key[:], session[0:32])
	copy(k.nonce[:], session[32:44])
	return k
}

// FromServerSession derives the server→client Key from session: the
// shared key at [0:32) and the server→client nonce at [44:56).
func FromServerSession(session auth.SessionKey) Key {
	var k Key
	copy(k.key[:], session[0:32])
	copy(k.nonce[:], session[44:56])
	return k
}

// Cipher is the stream cipher instantiated from a Key; both AsyncEncryptor
// and AsyncDecryptor wrap one.
type Cipher = chacha20.Cipher

// NewCipher constructs the stream cipher for this key and nonce. Called
// once per direction per connection: a Cipher carries mutable keystream
// state and must not be reused or shared between directions.
func (k Key) NewCipher() (*Cipher, error) {
	c, err := chacha20.NewUnauthenticatedCipher(k.key[:], k.nonce[:])
	if err != nil {
		return nil, fmt.Errorf("transport: constructing cipher: %w", err)
	}
	return c, nil
}
