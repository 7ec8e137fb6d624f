/*
Package log provides structured logging for Hearth using zerolog.

The log package wraps zerolog to give every layer of the runtime a
JSON-structured, leveled logger without threading a *Logger through every
constructor. A package-level Logger is configured once via Init, and
call sites derive child loggers tagged with the dimension that matters to
them:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│  Logger (global, set by Init)                             │
	│    │                                                      │
	│    ├─ WithComponent("mailbox")   → component=mailbox      │
	│    ├─ WithPeer(peerID)           → peer_id=3               │
	│    └─ WithProcess(pid)           → process_id=482          │
	└─────────────────────────────────────────────────────────┘

WithProcess backs the host-guest log(level, module, text) call (§6):
each process gets a child logger carrying its process id, and guest code
supplies the module name and message text per call.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("runtime started")

	peerLog := log.WithPeer(peerID)
	peerLog.Info().Msg("handshake complete")
*/
package log
