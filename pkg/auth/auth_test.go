package auth

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cuemby/hearth/pkg/herr"
)

func pipeConns(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestFromPassword(t *testing.T) {
	if _, err := FromPassword([]byte("deadbeef")); err != nil {
		t.Fatalf("FromPassword() error = %v", err)
	}
}

func TestLoginWithCorrectPasswordMatches(t *testing.T) {
	password := []byte("deadbeef")
	a, err := FromPassword(password)
	if err != nil {
		t.Fatalf("FromPassword() error = %v", err)
	}

	client, server := pipeConns(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverKeyCh := make(chan SessionKey, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		key, err := a.Login(ctx, server)
		serverKeyCh <- key
		serverErrCh <- err
	}()

	clientKey, clientErr := Login(ctx, client, password)
	if clientErr != nil {
		t.Fatalf("client Login() error = %v", clientErr)
	}

	serverKey := <-serverKeyCh
	if serverErr := <-serverErrCh; serverErr != nil {
		t.Fatalf("server Login() error = %v", serverErr)
	}

	if serverKey != clientKey {
		t.Error("client and server derived different session keys")
	}
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	a, err := FromPassword([]byte("deadbeef"))
	if err != nil {
		t.Fatalf("FromPassword() error = %v", err)
	}

	client, server := pipeConns(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go a.Login(ctx, server)

	_, err = Login(ctx, client, []byte("bingus_love"))
	if !errors.Is(err, herr.InvalidLogin) {
		t.Errorf("Login() with wrong password error = %v, want herr.InvalidLogin", err)
	}
}

func TestLoginTornConnectionSurfacesTransportFailure(t *testing.T) {
	a, err := FromPassword([]byte("deadbeef"))
	if err != nil {
		t.Fatalf("FromPassword() error = %v", err)
	}

	_, server := pipeConns(t)
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = a.Login(ctx, server)
	if err == nil {
		t.Fatal("Login() on a closed connection returned nil error")
	}
	if !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, herr.TransportFailure) {
		t.Errorf("Login() on closed connection error = %v", err)
	}
}
