package peer

import (
	"net"
	"testing"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/mailbox"
)

func TestDaemonOfferRoundTrip(t *testing.T) {
	daemonSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		daemonSide.Close()
		clientSide.Close()
	})

	daemon := New(0, daemonSide, daemonSide)
	client := New(0, clientSide, clientSide)

	table := capability.NewTable()
	dirMB := mailbox.New(table)
	storeMB := mailbox.New(table)

	sent := DaemonOffer{
		PeerID:         7,
		PeerProvider:   dirMB.MakeCapability(capability.Send | capability.Monitor),
		ProcessFactory: storeMB.MakeCapability(capability.Send),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- SendDaemonOffer(daemonSide, daemon, sent)
	}()

	got, err := RecvDaemonOffer(clientSide, client)
	if err != nil {
		t.Fatalf("RecvDaemonOffer() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("SendDaemonOffer() error = %v", err)
	}

	if got.PeerID != 7 {
		t.Errorf("PeerID = %d, want 7", got.PeerID)
	}
	if got.PeerProvider.Permissions != capability.Send|capability.Monitor {
		t.Errorf("PeerProvider perms = %s", got.PeerProvider.Permissions)
	}
	if got.ProcessFactory.Permissions != capability.Send {
		t.Errorf("ProcessFactory perms = %s", got.ProcessFactory.Permissions)
	}
	if got.PeerProvider.Route == got.ProcessFactory.Route {
		t.Error("both offer capabilities imported onto the same stand-in")
	}
}
