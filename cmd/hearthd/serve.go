package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/cuemby/hearth/pkg/auth"
	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/config"
	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/log"
	"github.com/cuemby/hearth/pkg/lump"
	"github.com/cuemby/hearth/pkg/mailbox"
	"github.com/cuemby/hearth/pkg/metrics"
	"github.com/cuemby/hearth/pkg/peer"
	"github.com/cuemby/hearth/pkg/process"
	"github.com/cuemby/hearth/pkg/runtime"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hearthd runtime: peer listener, IPC socket, metrics",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a hearthd YAML config file")
}

// daemon bundles the runtime with the capabilities to its always-on
// services: the peer directory, the process store, and the lump store.
// Every peer connection and IPC client is offered capabilities minted from
// these mailboxes.
type daemon struct {
	rt *runtime.Runtime

	dirMB   *mailbox.Mailbox
	storeMB *mailbox.Mailbox
	lumpMB  *mailbox.Mailbox
	apiMB   *mailbox.Mailbox
}

func newDaemon(ctx context.Context, cfg config.Config, lumps lump.Store) *daemon {
	builder := runtime.NewRuntimeBuilder(lumps)
	builder.SetSpawnLimit(cfg.MaxProcesses)

	svcTable := capability.NewTable()
	dirMB := mailbox.New(svcTable)
	storeMB := mailbox.New(svcTable)
	lumpMB := mailbox.New(svcTable)
	apiMB := mailbox.New(svcTable)

	builder.AddService("hearth.directory", dirMB.MakeCapability(capability.Send|capability.Monitor))
	builder.AddService("hearth.process-store", storeMB.MakeCapability(capability.Send|capability.Monitor))
	builder.AddService("hearth.lump-store", lumpMB.MakeCapability(capability.Send|capability.Monitor))

	rt := builder.Run()

	go peer.ServeDirectory(ctx, dirMB, svcTable, peer.NewDirectory(rt))
	go process.ServeStore(ctx, storeMB, svcTable, rt.Store, rt.Processes)
	go runtime.ServeLumpStore(ctx, lumpMB, svcTable, lumps)

	apiSrv := &peer.PeerApiServer{
		Info:         peer.PeerInfo{ID: 0, Nickname: cfg.Nickname},
		ProcessStore: storeMB.MakeCapability(capability.Send),
		LumpStore:    lumpMB.MakeCapability(capability.Send),
	}
	go peer.ServePeerApi(ctx, apiMB, svcTable, apiSrv)

	return &daemon{rt: rt, dirMB: dirMB, storeMB: storeMB, lumpMB: lumpMB, apiMB: apiMB}
}

func (d *daemon) providerCap() capability.Value {
	return d.dirMB.MakeCapability(capability.Send | capability.Monitor)
}

func (d *daemon) apiCap() capability.Value {
	return d.apiMB.MakeCapability(capability.Send | capability.Monitor)
}

func (d *daemon) factoryCap() capability.Value {
	return d.storeMB.MakeCapability(capability.Send | capability.Monitor)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	configPath, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("hearthd: %w", err)
		}
		cfg = loaded
	}

	password, err := cfg.ResolvePassword()
	if err != nil {
		return fmt.Errorf("hearthd: %w", err)
	}

	backing, err := lump.NewBoltBacking(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("hearthd: opening lump store: %w", err)
	}
	defer backing.Close()
	lumps := lump.NewStore(backing)

	d := newDaemon(ctx, cfg, lumps)

	authn, err := auth.FromPassword(password)
	if err != nil {
		return fmt.Errorf("hearthd: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("hearthd: listening on %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Close()
	log.Info(fmt.Sprintf("hearthd: peer listener on %s", cfg.ListenAddr))

	ipcLn, err := runtime.NewIPCListener(cfg.IPCSocketPath)
	if err != nil {
		return fmt.Errorf("hearthd: %w", err)
	}
	defer ipcLn.Close()
	log.Info(fmt.Sprintf("hearthd: ipc listener on %s", cfg.IPCSocketPath))
	go d.serveIPC(ctx, ipcLn)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Errorf("hearthd: metrics server: %v", err)
			}
		}()
		log.Info(fmt.Sprintf("hearthd: metrics on %s", cfg.Metrics.Addr))
	}

	go d.acceptPeers(ctx, ln, authn)

	for _, addr := range cfg.Peers {
		if _, _, err := d.rt.JoinPeer(ctx, addr, password, d.apiCap()); err != nil {
			log.Errorf(fmt.Sprintf("hearthd: joining peer %s", addr), err)
			continue
		}
		log.Info(fmt.Sprintf("hearthd: joined peer %s", addr))
	}

	runtime.WaitForInterrupt(ctx)
	log.Info("hearthd: shutting down")
	cancel()
	d.rt.Shutdown()
	return nil
}

// acceptPeers runs the peer listener's accept loop: every incoming TCP
// connection gets its own authentication handshake and, on success, its
// own *peer.Peer serving the framed RPC protocol in a goroutine.
func (d *daemon) acceptPeers(ctx context.Context, ln net.Listener, authn *auth.ServerAuthenticator) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Errorf("hearthd: accept: %v", err)
			return
		}
		go d.handlePeerConn(ctx, conn, authn)
	}
}

func (d *daemon) handlePeerConn(ctx context.Context, conn net.Conn, authn *auth.ServerAuthenticator) {
	defer conn.Close()

	p, err := d.rt.HandshakeServer(ctx, conn, authn, d.providerCap())
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues(authOutcome(err)).Inc()
		log.Errorf("hearthd: peer handshake failed: %v", err)
		return
	}
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

	defer d.rt.ForgetPeer(p.ID)
	metrics.PeersConnected.Set(float64(d.rt.PeerCount()))
	defer func() { metrics.PeersConnected.Set(float64(d.rt.PeerCount())) }()

	log.Info(fmt.Sprintf("hearthd: peer %d connected", p.ID))
	if err := p.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("hearthd: peer connection ended: %v", err)
	}
}

func authOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, herr.InvalidLogin):
		return "invalid_login"
	default:
		return "error"
	}
}

// serveIPC accepts local client connections on the daemon's Unix socket and
// hands each one a DaemonOffer: the same capability graph a
// remote peer receives, without the PAKE/encryption overhead of a network
// connection.
func (d *daemon) serveIPC(ctx context.Context, ln *runtime.IPCListener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Errorf("hearthd: ipc accept: %v", err)
			return
		}
		go d.handleIPCConn(ctx, conn)
	}
}

func (d *daemon) handleIPCConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	p := peer.New(0, conn, conn)
	offer := peer.DaemonOffer{
		PeerID:         0,
		PeerProvider:   d.providerCap(),
		ProcessFactory: d.factoryCap(),
	}
	if err := peer.SendDaemonOffer(conn, p, offer); err != nil {
		log.Errorf("hearthd: ipc: send daemon offer: %v", err)
		return
	}

	if err := p.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Debug(fmt.Sprintf("hearthd: ipc client disconnected: %v", err))
	}
}
