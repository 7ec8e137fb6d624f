package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/bytemare/opaque"
	"github.com/cuemby/hearth/pkg/herr"
)

// SessionKey is the 64-byte key both sides derive from a successful
// handshake. See pkg/transport.Key for how it is split into a cipher key
// and two directional nonces.
type SessionKey [64]byte

// credentialIdentifier is a fixed, non-secret label distinguishing the
// record this authenticator protects; Hearth has exactly one password per
// listener, so the identifier carries no information.
var credentialIdentifier = []byte("hearth-peer")

// ServerAuthenticator holds a server's view of a single registered
// password: enough to run the login half of the OPAQUE protocol against
// any number of connecting clients, without ever storing the password
// itself.
type ServerAuthenticator struct {
	conf   *opaque.Configuration
	server *opaque.Server
	record *opaque.RegistrationRecord

	serverPublicKey  []byte
	serverPrivateKey []byte
	oprfSeed         []byte
}

// FromPassword registers pw against a fresh, in-process OPAQUE exchange:
// the server and client halves of registration run locally, synchronously,
// producing a RegistrationRecord the server can check future logins
// against. The password itself is discarded once this returns.
func FromPassword(pw []byte) (*ServerAuthenticator, error) {
	conf := opaque.DefaultConfiguration()

	client, err := conf.Client()
	if err != nil {
		return nil, fmt.Errorf("auth: from password: %w: %v", herr.AuthenticationFailed, err)
	}
	server, err := conf.Server()
	if err != nil {
		return nil, fmt.Errorf("auth: from password: %w: %v", herr.AuthenticationFailed, err)
	}

	serverPrivateKey, serverPublicKey := conf.KeyGen()
	oprfSeed := make([]byte, conf.Hash.Size())
	if _, err := io.ReadFull(rand.Reader, oprfSeed); err != nil {
		return nil, fmt.Errorf("auth: from password: generating oprf seed: %w: %v", herr.AuthenticationFailed, err)
	}

	regReq := client.RegistrationInit(pw)
	regResp, err := server.RegistrationResponse(regReq, serverPublicKey, credentialIdentifier, oprfSeed)
	if err != nil {
		return nil, fmt.Errorf("auth: from password: registration response: %w: %v", herr.AuthenticationFailed, err)
	}
	record, _, err := client.RegistrationFinalize(regResp)
	if err != nil {
		return nil, fmt.Errorf("auth: from password: registration finalize: %w: %v", herr.AuthenticationFailed, err)
	}

	return &ServerAuthenticator{
		conf:             conf,
		server:           server,
		record:           record,
		serverPublicKey:  serverPublicKey,
		serverPrivateKey: serverPrivateKey,
		oprfSeed:         oprfSeed,
	}, nil
}

// Login runs the server side of one login handshake over conn: read a
// credential request, write a credential response, read a credential
// finalization. On success both sides hold the same SessionKey. A received
// finalization that does not deserialize or verify is surfaced as
// herr.InvalidLogin. A client with a wrong password sends no finalization
// (see Login), so here that case fails reading it, as herr.TransportFailure,
// once the connection is closed.
func (a *ServerAuthenticator) Login(ctx context.Context, conn io.ReadWriter) (SessionKey, error) {
	requestBytes, err := readExact(ctx, conn, opaque.CredentialRequestLength(a.conf))
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: reading credential request: %w: %v", herr.TransportFailure, err)
	}
	request, err := opaque.DeserializeCredentialRequest(a.conf, requestBytes)
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}

	response, loginState, err := a.server.LoginInit(request, a.serverPrivateKey, a.serverPublicKey, a.record, credentialIdentifier, a.oprfSeed)
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}
	if _, err := conn.Write(response.Serialize()); err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: writing credential response: %w: %v", herr.TransportFailure, err)
	}

	finalizeBytes, err := readExact(ctx, conn, opaque.CredentialFinalizationLength(a.conf))
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: reading credential finalization: %w: %v", herr.TransportFailure, err)
	}
	finalization, err := opaque.DeserializeCredentialFinalization(a.conf, finalizeBytes)
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}

	if err := a.server.LoginFinish(loginState, finalization); err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}

	var key SessionKey
	copy(key[:], loginState.SessionKey())
	return key, nil
}

// Login runs the client side of one login handshake against server over
// conn, using pw. On password mismatch this returns herr.InvalidLogin
// without writing a finalization to conn.
func Login(ctx context.Context, conn io.ReadWriter, pw []byte) (SessionKey, error) {
	conf := opaque.DefaultConfiguration()
	client, err := conf.Client()
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.AuthenticationFailed, err)
	}

	request, loginState := client.LoginInit(pw)
	if _, err := conn.Write(request.Serialize()); err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: writing credential request: %w: %v", herr.TransportFailure, err)
	}

	responseBytes, err := readExact(ctx, conn, opaque.CredentialResponseLength(conf))
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: reading credential response: %w: %v", herr.TransportFailure, err)
	}
	response, err := opaque.DeserializeCredentialResponse(conf, responseBytes)
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}

	finalization, err := client.LoginFinish(loginState, response)
	if err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: %w: %v", herr.InvalidLogin, err)
	}
	if _, err := conn.Write(finalization.Serialize()); err != nil {
		return SessionKey{}, fmt.Errorf("auth: login: writing credential finalization: %w: %v", herr.TransportFailure, err)
	}

	var key SessionKey
	copy(key[:], loginState.SessionKey())
	return key, nil
}

// readExact reads exactly n bytes from r, honoring ctx cancellation by
// racing the blocking read against ctx.Done in a background goroutine. The
// protocol's messages are fixed-length per the configured cipher suite, so
// short reads are always "more is coming," never "message truncated."
func readExact(ctx context.Context, r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(r, buf)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
