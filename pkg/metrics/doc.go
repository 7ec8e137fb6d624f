/*
Package metrics exposes Hearth's runtime state as Prometheus gauges,
counters, and histograms: mailbox depth, capability table size (declared
and registered, but not set by any package), peer connection count, asset
cache hit/miss, and lump store size.

# Architecture

	┌──────────────────── HEARTH METRICS ───────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐         │
	│  │              Process metrics                  │         │
	│  │  - Live processes, spawned/killed totals      │         │
	│  └──────────────────┬───────────────────────────┘         │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐         │
	│  │              Mailbox metrics                  │         │
	│  │  - Queue depth histogram, signals by kind     │         │
	│  └──────────────────┬───────────────────────────┘         │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐         │
	│  │           Capability table metrics            │         │
	│  │  - Live handle count, permission denials      │         │
	│  └──────────────────┬───────────────────────────┘         │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐         │
	│  │             Peer plane metrics                │         │
	│  │  - Connected peers, frames by kind, auth      │         │
	│  │    attempts by outcome                        │         │
	│  └──────────────────┬───────────────────────────┘         │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐         │
	│  │        Asset + lump store metrics             │         │
	│  │  - Cache hit/miss, load duration, store bytes │         │
	│  └────────────────────────────────────────────────┘        │
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

All metrics are package-level prometheus.Collectors, registered once in
init() and scraped via metrics.Handler() mounted by cmd/hearthd.

# Usage

	import "github.com/cuemby/hearth/pkg/metrics"

	metrics.ProcessesLive.Inc()
	timer := metrics.NewTimer()
	// ... decode an asset ...
	timer.ObserveDurationVec(metrics.AssetLoadDuration, class)

	http.Handle("/metrics", metrics.Handler())

# Naming

All metric names are prefixed hearth_ and grouped by the subsystem they
describe (process, mailbox, capability, peer, auth, asset, lump).

# See Also

  - pkg/process for the process lifecycle these metrics observe
  - pkg/mailbox for mailbox depth and signal counting
  - pkg/peer for peer/frame/auth counters
  - pkg/asset and pkg/lump for the decode cache and blob store metrics
*/
package metrics
