/*
Package asset implements Hearth's typed, cached, asynchronous asset
loader: decode lumps into in-memory artifacts via registered loader
classes, with at-most-one-decode-in-flight-per-key coalescing.

	┌──────────────────── ASSET STORE ──────────────────────────┐
	│  RegisterLoader(class, fn)                                 │
	│  Load(class, lumpID) ─┬─ cache hit  → return cached value  │
	│                       └─ cache miss → singleflight.Do(key) │
	│                                         fn(store, bytes)    │
	└──────────────────────────────────────────────────────────┘

Key is (class, lumpID): at most one decode runs per key at any time,
concurrent Load calls for the same key rendezvous on the same decode via
golang.org/x/sync/singleflight. A failed decode is never cached; the next
Load for that key retries the loader rather than returning a poisoned
result.
*/
package asset
