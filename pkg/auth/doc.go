/*
Package auth implements Hearth's handshake authentication: a
password-authenticated key exchange
that produces a 64-byte session key without either side ever transmitting
or learning the peer's password.

	auth.FromPassword(pw)                     seed a server with a password
	  ServerAuthenticator.Login(ctx, conn)    server side of one handshake
	  auth.Login(ctx, conn, pw)               client side of one handshake

Both sides exchange three fixed-length messages over conn (credential
request, credential response, credential finalization) and derive the same
SessionKey; transport.Key splits that key into the cipher key and the two
directional nonces used by the stream cipher in pkg/transport.

On a wrong password the client's finish step fails: auth.Login returns
herr.InvalidLogin without sending a finalization, and the server's Login
then fails reading the finalization (herr.TransportFailure) once the
connection is torn down. The server returns herr.InvalidLogin only for a
finalization it receives that does not verify. Neither side's password is
ever exposed to the other, and on the client a bad password and a
malformed response both surface as herr.InvalidLogin, so the caller cannot
tell which one occurred.
*/
package auth
