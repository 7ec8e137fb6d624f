package transport

import (
	"io"
)

// AsyncEncryptor wraps an io.Writer, XORing every write with its cipher's
// keystream before forwarding the bytes. Despite the name, Write itself is
// synchronous; the wrapped transport is typically a net.Conn used from its
// own goroutine.
type AsyncEncryptor struct {
	cipher    *Cipher
	transport io.Writer
}

// NewEncryptor constructs an AsyncEncryptor from key, wrapping transport.
func NewEncryptor(key Key, transport io.Writer) (*AsyncEncryptor, error) {
	cipher, err := key.NewCipher()
	if err != nil {
		return nil, err
	}
	return &AsyncEncryptor{cipher: cipher, transport: transport}, nil
}

// Write encrypts p into a scratch buffer, leaving p unchanged, and forwards it to the
// underlying transport. The keystream advances regardless of whether the
// underlying write fully succeeds, matching the cipher's stateful,
// stream-synchronized contract: a partial write still desynchronizes the
// connection, so callers must treat any error here as fatal.
func (e *AsyncEncryptor) Write(p []byte) (int, error) {
	encrypted := make([]byte, len(p))
	e.cipher.XORKeyStream(encrypted, p)
	return e.transport.Write(encrypted)
}

// AsyncDecryptor wraps an io.Reader, XORing every read with its cipher's
// keystream after bytes arrive from the underlying transport.
type AsyncDecryptor struct {
	cipher    *Cipher
	transport io.Reader
}

// NewDecryptor constructs an AsyncDecryptor from key, wrapping transport.
func NewDecryptor(key Key, transport io.Reader) (*AsyncDecryptor, error) {
	cipher, err := key.NewCipher()
	if err != nil {
		return nil, err
	}
	return &AsyncDecryptor{cipher: cipher, transport: transport}, nil
}

// Read fills p from the underlying transport, then decrypts in place.
func (d *AsyncDecryptor) Read(p []byte) (int, error) {
	n, err := d.transport.Read(p)
	if n > 0 {
		d.cipher.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

var (
	_ io.Writer = (*AsyncEncryptor)(nil)
	_ io.Reader = (*AsyncDecryptor)(nil)
)
