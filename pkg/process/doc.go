/*
Package process implements Hearth's process factory and lifecycle state
machine: spawning, killing, and naming the schedulable units that own a
capability table and one or more mailboxes.

	spawned ── run ──▶ live ── kill|parent_down|peer_lost ──▶ terminating
	                                                             │
	                                                        drain mailboxes
	                                                        fire monitors
	                                                        release cap table
	                                                             │
	                                                             ▼
	                                                           dead

A dead LocalProcessId is never reused in the lifetime of a Factory: the
allocator is a strictly increasing counter (github.com/google/uuid names
the informational Metadata.ID; a plain counter allocates the
scheduling-critical LocalProcessId).

Store tracks the live processes behind a peer's process-store capability
and enforces the per-peer spawn limit; ServeStore/StoreClient carry its
List/Find/Kill/Spawn operations over mailboxes so the same surface works
locally, over the daemon's IPC socket, and across the peer plane.

Registry is the per-peer named-service directory. The canonical registry
is immutable: names are seeded once at construction and later Register
calls are rejected.
*/
package process
