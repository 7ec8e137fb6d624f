/*
Package capability implements Hearth's capability table: per-process
translation between opaque integer handles and (route,
permission-set) pairs, with safe import/export/demote across tables.

	┌──────────────────── CAPABILITY TABLE ─────────────────────┐
	│  Handle (uint32, process-local) ──▶ entry{Route, Perms}    │
	│                                                             │
	│  ImportOwned(route, perms) → Handle    mint from a route   │
	│  Export(handle, perms)     → Value      for transfer        │
	│  Import(value)             → Handle     accept a transfer  │
	│  Demote(handle, perms)     → Handle     shrink, stay local  │
	│  Drop(handle)                           release + decref    │
	└────────────────────────────────────────────────────────────┘

A Handle can never grant more permissions than the table entry it names;
Export and Demote both fail a subset check rather than silently clamping.
Routes are owned by their host process, not by the capabilities pointing
at it: a capability's refcount
only keeps the table *entry* reachable for lookup, so killing a process
tears down its routes regardless of outstanding remote references,
breaking any reference cycle.
*/
package capability
