/*
Package runtime assembles the layers beneath it (lump store, asset store,
capability/process machinery, peer plane) into one running Hearth peer.

A RuntimeBuilder collects plugins (each contributing asset loaders, runners,
or other setup) and, once Run is called, produces the Runtime: the single
process-wide object holding the lump store, asset store, process factory,
service registry, and peer-id allocator. Nothing here is a package-level
global; everything is constructed once and handed out through the Runtime
value.

	┌────────────────────── RuntimeBuilder ───────────────────────┐
	│  AddPlugin(p)       → p.Build(builder) wires loaders/runners │
	│  AddAssetLoader(..) → registered into the pending AssetStore │
	│  AddRunner(fn)      → queued, invoked with *Runtime on Run() │
	│  Run() *Runtime     → freezes the registry, starts runners   │
	└────────────────────────────────────────────────────────────┘

HandshakeServer, HandshakeClient, and JoinPeer carry the full wire
sequence for federating two runtimes: password-authenticated key exchange,
directional stream ciphers, the ServerOffer/ClientOffer exchange, then the
connection's frame loops.

WaitForInterrupt blocks until SIGINT/SIGTERM arrives or ctx is done.
Runtime.Shutdown then closes every registered peer connection, so the
capabilities imported over them die and their monitors receive Down.
Shutdown does not reject new spawns, kill local processes, or drain
workers.
*/
package runtime
