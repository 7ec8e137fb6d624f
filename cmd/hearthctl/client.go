package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/peer"
	"github.com/cuemby/hearth/pkg/process"
)

// daemonClient is one hearthctl invocation's connection to the daemon: the
// Unix socket, the frame-serving Peer over it, and a capability table
// holding the DaemonOffer's handles.
type daemonClient struct {
	conn  net.Conn
	peer  *peer.Peer
	table *capability.Table

	provider capability.Handle
	factory  capability.Handle
	peerID   peer.PeerId
}

// dialDaemon connects to the daemon socket, receives the DaemonOffer, and
// starts the connection's frame loop. Callers must Close when done.
func dialDaemon(ctx context.Context, path string) (*daemonClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon at %s: %w", path, err)
	}

	p := peer.New(0, conn, conn)
	offer, err := peer.RecvDaemonOffer(conn, p)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("receiving daemon offer: %w", err)
	}

	go func() { _ = p.Serve(ctx) }()

	table := capability.NewTable()
	return &daemonClient{
		conn:     conn,
		peer:     p,
		table:    table,
		provider: table.Import(offer.PeerProvider),
		factory:  table.Import(offer.ProcessFactory),
		peerID:   offer.PeerID,
	}, nil
}

func (c *daemonClient) Close() {
	c.peer.Close()
	c.conn.Close()
}

// processStoreFor resolves the process-store capability for target: the
// daemon's own store when target names the local peer, otherwise a
// find_peer lookup through the daemon's directory followed by a
// get_process_store call on the found PeerApi.
func (c *daemonClient) processStoreFor(ctx context.Context, target peer.PeerId) (*process.StoreClient, error) {
	if target == c.peerID {
		return process.NewStoreClient(c.table, c.factory), nil
	}

	apiCap, err := peer.FindPeerVia(ctx, c.table, c.provider, target)
	if err != nil {
		return nil, fmt.Errorf("resolving peer %d: %w", target, err)
	}
	storeCap, err := peer.NewPeerApi(c.table, apiCap).GetProcessStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching peer %d process store: %w", target, err)
	}
	return process.NewStoreClient(c.table, storeCap), nil
}

// parsePid parses "local" or "peer:local" process-id syntax.
func parsePid(s string) (peer.PeerId, process.LocalProcessId, error) {
	var peerPart, localPart string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		peerPart, localPart = s[:i], s[i+1:]
	} else {
		localPart = s
	}

	var pid peer.PeerId
	if peerPart != "" {
		n, err := strconv.ParseUint(peerPart, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid peer id %q: %w", peerPart, err)
		}
		pid = peer.PeerId(n)
	}

	n, err := strconv.ParseUint(localPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid process id %q: %w", localPart, err)
	}
	return pid, process.LocalProcessId(n), nil
}
