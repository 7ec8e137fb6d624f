package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Process metrics
	ProcessesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_processes_live",
			Help: "Number of live processes on this peer",
		},
	)

	ProcessesSpawnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_processes_spawned_total",
			Help: "Total number of processes spawned since startup",
		},
	)

	ProcessesKilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_processes_killed_total",
			Help: "Total number of processes killed since startup",
		},
	)

	// Mailbox metrics
	MailboxDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hearth_mailbox_depth",
			Help:    "Number of queued signals observed in a mailbox at send time",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	MailboxSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_mailbox_signals_total",
			Help: "Total signals enqueued by kind (message, down)",
		},
		[]string{"kind"},
	)

	// Capability table metrics. CapabilityTableSize is registered, but no
	// package in this module sets it, so it reads 0.
	CapabilityTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_capability_table_entries",
			Help: "Sum of live handles across all capability tables on this peer",
		},
	)

	PermissionDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_permission_denied_total",
			Help: "Total number of send/kill/monitor calls rejected for lacking the required bit",
		},
	)

	// Peer plane metrics
	PeersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_peers_connected",
			Help: "Number of currently connected peer runtimes",
		},
	)

	PeerFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_peer_frames_total",
			Help: "Total frames exchanged by kind and direction",
		},
		[]string{"kind", "direction"},
	)

	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_auth_attempts_total",
			Help: "Total PAKE handshake attempts by outcome (success, invalid_login, error)",
		},
		[]string{"outcome"},
	)

	// Asset store metrics
	AssetCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_asset_cache_hits_total",
			Help: "Total asset Load calls served from cache",
		},
	)

	AssetCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_asset_cache_misses_total",
			Help: "Total asset Load calls that triggered a decode",
		},
	)

	AssetLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hearth_asset_load_duration_seconds",
			Help:    "Time taken to decode an asset, by loader class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	// Lump store metrics
	LumpStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_lump_store_bytes",
			Help: "Approximate total bytes held by the lump store's backing database",
		},
	)

	LumpsAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_lumps_added_total",
			Help: "Total lumps newly stored (excludes deduplicated adds of existing content)",
		},
	)
)

func init() {
	prometheus.MustRegister(ProcessesLive)
	prometheus.MustRegister(ProcessesSpawnedTotal)
	prometheus.MustRegister(ProcessesKilledTotal)

	prometheus.MustRegister(MailboxDepth)
	prometheus.MustRegister(MailboxSignalsTotal)

	prometheus.MustRegister(CapabilityTableSize)
	prometheus.MustRegister(PermissionDeniedTotal)

	prometheus.MustRegister(PeersConnected)
	prometheus.MustRegister(PeerFramesTotal)
	prometheus.MustRegister(AuthAttemptsTotal)

	prometheus.MustRegister(AssetCacheHitsTotal)
	prometheus.MustRegister(AssetCacheMissesTotal)
	prometheus.MustRegister(AssetLoadDuration)

	prometheus.MustRegister(LumpStoreBytes)
	prometheus.MustRegister(LumpsAddedTotal)
}

// Handler returns the Prometheus scrape handler, mounted by cmd/hearthd
// alongside the peer listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for later observation against a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
