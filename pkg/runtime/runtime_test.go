package runtime

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/cuemby/hearth/pkg/asset"
	"github.com/cuemby/hearth/pkg/auth"
	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/mailbox"
	"github.com/cuemby/hearth/pkg/peer"
	"github.com/cuemby/hearth/pkg/process"
	"github.com/stretchr/testify/require"
)

const fedPassword = "deadbeef"

func memRuntime(t *testing.T) *Runtime {
	t.Helper()
	return NewRuntimeBuilder(lump.NewStore(lump.NewMemBacking())).Run()
}

// federation holds both ends of an authenticated, encrypted, serving peer
// connection between a server runtime and a client capability table.
type federation struct {
	server      *Runtime
	serverPeer  *peer.Peer
	clientPeer  *peer.Peer
	offer       peer.ServerOffer
	clientTable *capability.Table
	clientConn  net.Conn
	serverConn  net.Conn
}

// federate runs the full wire protocol from §6 over an in-memory pipe:
// PAKE, directional ciphers, both offers, then both Serve loops.
func federate(t *testing.T, server *Runtime, provider capability.Value) *federation {
	t.Helper()

	sconn, cconn := net.Pipe()
	t.Cleanup(func() {
		sconn.Close()
		cconn.Close()
	})

	authn, err := auth.FromPassword([]byte(fedPassword))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	type serverResult struct {
		p   *peer.Peer
		err error
	}
	serverCh := make(chan serverResult, 1)
	go func() {
		p, err := server.HandshakeServer(ctx, sconn, authn, provider)
		serverCh <- serverResult{p, err}
		if p != nil {
			_ = p.Serve(ctx)
		}
	}()

	clientTable := capability.NewTable()
	apiMB := mailbox.New(clientTable)
	cp, offer, err := HandshakeClient(ctx, cconn, []byte(fedPassword), apiMB.MakeCapability(capability.Send))
	require.NoError(t, err)
	go func() { _ = cp.Serve(ctx) }()

	sr := <-serverCh
	require.NoError(t, sr.err)

	return &federation{
		server:      server,
		serverPeer:  sr.p,
		clientPeer:  cp,
		offer:       offer,
		clientTable: clientTable,
		clientConn:  cconn,
		serverConn:  sconn,
	}
}

func recvMessage(t *testing.T, mb *mailbox.Mailbox) mailbox.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := mb.Recv(ctx)
	require.NoError(t, err)
	msg, ok := sig.(mailbox.Message)
	require.True(t, ok, "expected Message, got %T", sig)
	return msg
}

func TestHandshakeDeliversMessagesAcrossPeers(t *testing.T) {
	server := memRuntime(t)
	serverTable := capability.NewTable()
	svcMB := mailbox.New(serverTable)

	fed := federate(t, server, svcMB.MakeCapability(capability.Send))
	require.Equal(t, peer.PeerId(1), fed.offer.NewID)

	h := fed.clientTable.Import(fed.offer.PeerProvider)
	require.NoError(t, mailbox.Send(fed.clientTable, h, []byte("hello fleet"), nil))

	msg := recvMessage(t, svcMB)
	require.Equal(t, "hello fleet", string(msg.Payload))
}

func TestCapabilityForwardingRoundTrip(t *testing.T) {
	server := memRuntime(t)
	serverTable := capability.NewTable()
	reflectorMB := mailbox.New(serverTable)

	// The reflector sends whatever capability it receives straight back
	// through the accompanying reply capability.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sig, err := reflectorMB.Recv(ctx)
		if err != nil {
			return
		}
		msg, ok := sig.(mailbox.Message)
		if !ok || len(msg.Caps) < 2 {
			return
		}
		_ = mailbox.Send(serverTable, msg.Caps[0], []byte("returned"), []capability.Handle{msg.Caps[1]})
	}()

	fed := federate(t, server, reflectorMB.MakeCapability(capability.Send))
	reflector := fed.clientTable.Import(fed.offer.PeerProvider)

	target := mailbox.New(fed.clientTable)
	replies := mailbox.New(fed.clientTable)
	replyCap := fed.clientTable.Import(replies.MakeCapability(capability.Send))
	targetCap := fed.clientTable.Import(target.MakeCapability(capability.Send))

	require.NoError(t, mailbox.Send(fed.clientTable, reflector, nil, []capability.Handle{replyCap, targetCap}))

	reply := recvMessage(t, replies)
	require.Equal(t, "returned", string(reply.Payload))
	require.Len(t, reply.Caps, 1)

	// The returned capability must still route to the original mailbox,
	// and its permissions must not exceed what was sent.
	_, perms, err := fed.clientTable.Resolve(reply.Caps[0])
	require.NoError(t, err)
	require.Equal(t, capability.Send, perms)

	require.NoError(t, mailbox.Send(fed.clientTable, reply.Caps[0], []byte("full circle"), nil))
	msg := recvMessage(t, target)
	require.Equal(t, "full circle", string(msg.Payload))
}

func TestRemoteKillFiresMonitor(t *testing.T) {
	server := memRuntime(t)
	p, err := server.Processes.Spawn(process.Metadata{Name: "victim"}, nil)
	require.NoError(t, err)
	p.Run()
	victimMB := p.NewMailbox()

	fed := federate(t, server, victimMB.MakeCapability(capability.Send|capability.Kill|capability.Monitor))
	subject := fed.clientTable.Import(fed.offer.PeerProvider)

	sibling := mailbox.New(fed.clientTable)
	require.NoError(t, mailbox.Monitor(sibling, fed.clientTable, subject))

	require.NoError(t, mailbox.Kill(fed.clientTable, subject))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := sibling.Recv(ctx)
	require.NoError(t, err)
	down, ok := sig.(mailbox.Down)
	require.True(t, ok, "expected Down, got %T", sig)
	require.Equal(t, subject, down.Subject)

	require.Eventually(t, func() bool {
		return p.State() == process.StateDead
	}, 5*time.Second, 10*time.Millisecond, "remote kill did not reach the process")
}

func TestConnectionLossFiresDownOnRemoteCaps(t *testing.T) {
	server := memRuntime(t)
	serverTable := capability.NewTable()
	svcMB := mailbox.New(serverTable)

	fed := federate(t, server, svcMB.MakeCapability(capability.Send|capability.Monitor))
	subject := fed.clientTable.Import(fed.offer.PeerProvider)

	sibling := mailbox.New(fed.clientTable)
	require.NoError(t, mailbox.Monitor(sibling, fed.clientTable, subject))

	fed.serverConn.Close()
	fed.clientConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := sibling.Recv(ctx)
	require.NoError(t, err)
	_, ok := sig.(mailbox.Down)
	require.True(t, ok, "expected Down after transport loss, got %T", sig)
}

func TestHandshakeWrongPassword(t *testing.T) {
	sconn, cconn := net.Pipe()
	t.Cleanup(func() {
		sconn.Close()
		cconn.Close()
	})

	server := memRuntime(t)
	authn, err := auth.FromPassword([]byte(fedPassword))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		_, err := server.HandshakeServer(ctx, sconn, authn, capability.Value{})
		serverErrCh <- err
	}()

	clientTable := capability.NewTable()
	apiMB := mailbox.New(clientTable)
	_, _, clientErr := HandshakeClient(ctx, cconn, []byte("bingus_love"), apiMB.MakeCapability(capability.Send))
	require.ErrorIs(t, clientErr, herr.InvalidLogin)

	// The client aborts without sending its finalization, so the server
	// observes either the failed ceremony or the torn connection; either
	// way the handshake must fail and the connection die.
	cconn.Close()
	require.Error(t, <-serverErrCh)
}

func TestDemotedCapabilityCannotKill(t *testing.T) {
	store := process.NewStore(0)
	factory := process.NewFactory(store)
	p, err := factory.Spawn(process.Metadata{Name: "target"}, nil)
	require.NoError(t, err)
	p.Run()
	mb := p.NewMailbox()

	table := capability.NewTable()
	full := table.Import(mb.MakeCapability(capability.Send | capability.Kill))

	demoted, err := table.Demote(full, capability.Send)
	require.NoError(t, err)

	err = mailbox.Kill(table, demoted)
	require.ErrorIs(t, err, herr.PermissionDenied)
	require.NotEqual(t, process.StateDead, p.State())

	require.NoError(t, mailbox.Send(table, demoted, []byte("still works"), nil))
	msg := recvMessage(t, mb)
	require.Equal(t, "still works", string(msg.Payload))
}

type countingPlugin struct {
	builds *int
}

func (p countingPlugin) Build(b *RuntimeBuilder) {
	*p.builds++
}

func TestAddPluginRejectsDuplicateType(t *testing.T) {
	b := NewRuntimeBuilder(lump.NewStore(lump.NewMemBacking()))

	builds := 0
	b.AddPlugin(countingPlugin{builds: &builds})
	b.AddPlugin(countingPlugin{builds: &builds})

	if builds != 1 {
		t.Fatalf("Build() called %d times, want 1", builds)
	}
}

func TestBuilderAssetLoadersReachRuntime(t *testing.T) {
	lumps := lump.NewStore(lump.NewMemBacking())
	b := NewRuntimeBuilder(lumps)
	b.AddAssetLoader("text", func(_ *asset.Store, data []byte) (any, error) {
		return string(data), nil
	})
	rt := b.Run()

	id, err := lumps.Add([]byte("decoded artifact"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	artifact, err := rt.Assets.Load("text", id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if artifact != "decoded artifact" {
		t.Errorf("Load() = %v, want decoded artifact", artifact)
	}
}

func TestBuilderServicesFreezeIntoRegistry(t *testing.T) {
	lumps := lump.NewStore(lump.NewMemBacking())
	b := NewRuntimeBuilder(lumps)

	table := capability.NewTable()
	mb := mailbox.New(table)
	b.AddService("hearth.directory", mb.MakeCapability(capability.Send))

	rt := b.Run()

	got, err := rt.Registry.Get("hearth.directory")
	if err != nil {
		t.Fatalf("Registry.Get() error = %v", err)
	}
	if !got.Permissions.Has(capability.Send) {
		t.Error("registered service lost its SEND bit")
	}

	err = rt.Registry.Register("late", mb.MakeCapability(capability.Send))
	if !errors.Is(err, herr.RegistryImmutable) {
		t.Errorf("Register() after Run error = %v, want RegistryImmutable", err)
	}
}

func TestSpawnLimitFlowsFromBuilder(t *testing.T) {
	b := NewRuntimeBuilder(lump.NewStore(lump.NewMemBacking()))
	b.SetSpawnLimit(1)
	rt := b.Run()

	if _, err := rt.Processes.Spawn(process.Metadata{Name: "one"}, nil); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if _, err := rt.Processes.Spawn(process.Metadata{Name: "two"}, nil); !errors.Is(err, herr.SpawnLimit) {
		t.Fatalf("Spawn() over limit error = %v, want SpawnLimit", err)
	}
}

func TestAllocatePeerIDIsStrictlyIncreasing(t *testing.T) {
	rt := memRuntime(t)
	prev := rt.AllocatePeerID()
	for i := 0; i < 100; i++ {
		next := rt.AllocatePeerID()
		if next <= prev {
			t.Fatalf("AllocatePeerID() went backwards: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestServedLumpStoreAddGet(t *testing.T) {
	lumps := lump.NewStore(lump.NewMemBacking())
	table := capability.NewTable()
	mb := mailbox.New(table)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go ServeLumpStore(ctx, mb, table, lumps)

	clientTable := capability.NewTable()
	client := NewLumpClient(clientTable, clientTable.Import(mb.MakeCapability(capability.Send)))

	data := []byte("content-addressed bytes")
	id, err := client.Add(ctx, data)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id != lump.Digest(data) {
		t.Error("Add() returned a different digest than Digest()")
	}

	got, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}

	var missing lump.ID
	missing[0] = 0xff
	if _, err := client.Get(ctx, missing); !errors.Is(err, herr.LumpNotFound) {
		t.Errorf("Get(missing) error = %v, want LumpNotFound", err)
	}
}

func TestShutdownClosesPeers(t *testing.T) {
	server := memRuntime(t)
	serverTable := capability.NewTable()
	svcMB := mailbox.New(serverTable)

	fed := federate(t, server, svcMB.MakeCapability(capability.Send|capability.Monitor))
	subject := fed.clientTable.Import(fed.offer.PeerProvider)

	sibling := mailbox.New(fed.clientTable)
	require.NoError(t, mailbox.Monitor(sibling, fed.clientTable, subject))

	server.Shutdown()
	fed.serverConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sig, err := sibling.Recv(ctx)
	require.NoError(t, err)
	if _, ok := sig.(mailbox.Down); !ok {
		t.Fatalf("expected Down after shutdown, got %T", sig)
	}
}
