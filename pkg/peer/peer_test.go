package peer

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/mailbox"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{
		Kind:    FrameMessage,
		Target:  42,
		Payload: []byte("hello peer"),
		Caps:    []CapDescriptor{{ID: 7, Perms: capability.Send | capability.Kill}},
	}

	if err := EncodeFrame(&buf, want); err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	got, err := DecodeFrame(&buf)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}

	if got.Kind != want.Kind || got.Target != want.Target || string(got.Payload) != string(want.Payload) {
		t.Fatalf("DecodeFrame() = %+v, want %+v", got, want)
	}
	if len(got.Caps) != 1 || got.Caps[0] != want.Caps[0] {
		t.Fatalf("DecodeFrame() caps = %+v, want %+v", got.Caps, want.Caps)
	}
}

func TestFrameRoundTripEmptyPayloadAndCaps(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Kind: FrameRelease, Target: 3}

	if err := EncodeFrame(&buf, want); err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	got, err := DecodeFrame(&buf)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if got.Kind != FrameRelease || got.Target != 3 || len(got.Payload) != 0 || len(got.Caps) != 0 {
		t.Fatalf("DecodeFrame() = %+v, want empty release frame", got)
	}
}

func newConnectedPeers(t *testing.T) (*Peer, *Peer) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return New(1, a, a), New(2, b, b)
}

func TestExportIsStableAcrossRepeatedExports(t *testing.T) {
	p, _ := newConnectedPeers(t)

	table := capability.NewTable()
	mb := mailbox.New(table)
	route := mb.MakeCapability(capability.Send).Route

	id1 := p.exportRoute(route, capability.Send)
	id2 := p.exportRoute(route, capability.Send)

	if id1 != id2 {
		t.Errorf("exportRoute() gave different ids for the same route: %d, %d", id1, id2)
	}

	entry := p.lookupExport(id1)
	if entry == nil {
		t.Fatal("lookupExport() returned nil for a freshly exported id")
	}
	if entry.refcount != 2 {
		t.Errorf("export refcount = %d, want 2", entry.refcount)
	}
}

func TestReleaseExportRemovesEntryAtZero(t *testing.T) {
	p, _ := newConnectedPeers(t)

	table := capability.NewTable()
	mb := mailbox.New(table)
	route := mb.MakeCapability(capability.Send).Route
	id := p.exportRoute(route, capability.Send)

	p.releaseExport(id)
	if p.lookupExport(id) == nil {
		t.Fatal("export entry removed too early")
	}
	p.releaseExport(id)
	if p.lookupExport(id) != nil {
		t.Error("export entry still present after refcount reached zero")
	}
}

func TestImportValueReusesStandInForSameID(t *testing.T) {
	p, _ := newConnectedPeers(t)

	r1 := p.importValue(5)
	r2 := p.importValue(5)

	if r1 != r2 {
		t.Error("importValue() created two stand-ins for the same id")
	}
	if r1.refcount != 2 {
		t.Errorf("import refcount = %d, want 2", r1.refcount)
	}
}

func TestOfferHandshakeRoundTrip(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})

	server := New(0, serverSide, serverSide)
	client := New(0, clientSide, clientSide)

	table := capability.NewTable()
	mb := mailbox.New(table)
	providerCap := mb.MakeCapability(capability.Send)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- SendServerOffer(serverSide, server, ServerOffer{NewID: 99, PeerProvider: providerCap})
	}()

	offer, err := RecvServerOffer(clientSide, client)
	if err != nil {
		t.Fatalf("RecvServerOffer() error = %v", err)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("SendServerOffer() error = %v", err)
	}

	if offer.NewID != 99 {
		t.Errorf("offer.NewID = %d, want 99", offer.NewID)
	}
	if _, ok := offer.PeerProvider.Route.(*RemoteRoute); !ok {
		t.Errorf("offer.PeerProvider.Route type = %T, want *RemoteRoute", offer.PeerProvider.Route)
	}
}

func TestDownFrameMarksImportDead(t *testing.T) {
	p, _ := newConnectedPeers(t)
	route := p.importValue(11)

	fired := make(chan struct{}, 1)
	route.Watch(func() { fired <- struct{}{} })

	p.dispatch(Frame{Kind: FrameDown, Target: 11})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Down frame did not fire the route's watchers")
	}
	if route.Alive() {
		t.Error("route still reports alive after a Down frame")
	}
}

func TestServeReturnsOnReadError(t *testing.T) {
	r, w := io.Pipe()
	p := New(1, r, w)
	w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := p.Serve(ctx); err == nil {
		t.Fatal("Serve() on a closed reader returned nil error")
	}
}
