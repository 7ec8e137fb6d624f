/*
Package lump implements Hearth's content-addressed blob store.

A lump is an immutable byte blob identified by the BLAKE2b-256 digest of
its content. Two blobs with identical bytes share one stored copy: Add is
idempotent, and Get(Add(b)) always returns exactly b.

	┌──────────────────── LUMP STORE ───────────────────────────┐
	│  Add(bytes) → ID     hash, write-if-absent, return digest  │
	│  Get(ID)    → bytes  read by digest                        │
	│  Loan(ID)   → Loan   refcounted handle keeping a lump alive│
	└────────────────────────────────────────────────────────────┘

Storage is BoltDB-backed (one bucket, "lumps", keyed by digest), the same
embedded-database idiom the rest of the runtime's ambient stack uses for
durable state. Loan refcounts live in memory only: a lump with an
outstanding loan is never deleted from the bucket, but the refcount itself
does not survive a restart (by the time the process restarts, nothing
holds an in-memory loan anyway).
*/
package lump
