package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/hearth/pkg/log"
)

// WaitForInterrupt blocks until SIGINT or SIGTERM arrives, or ctx is
// cancelled. It only waits; the shutdown steps that follow are the
// caller's (see Shutdown).
func WaitForInterrupt(ctx context.Context) {
	log.Debug("waiting for interrupt signal")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case <-ch:
		log.Info("interrupt signal received")
	case <-ctx.Done():
		log.Debug("interrupt wait cancelled")
	}
}

// Shutdown closes every registered peer: capabilities imported over those
// connections are marked dead and their monitors fire Down. It does not
// reject new spawns (the process factory keeps accepting Spawn calls),
// kill local processes, or drain workers. Individual process teardown is
// the caller's responsibility (it knows which top-level processes to
// kill); this only tears down the peer plane.
func (rt *Runtime) Shutdown() {
	rt.peersMu.Lock()
	peers := make([]interface{ Close() }, 0, len(rt.peers))
	for _, p := range rt.peers {
		peers = append(peers, p)
	}
	rt.peersMu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}
