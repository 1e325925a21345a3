package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CertStore metrics

	CertificatesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_certificates_ingested_total",
			Help: "Total number of certificates ingested, by batch outcome",
		},
		[]string{"outcome"},
	)

	CertIngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parsec_cert_ingest_duration_seconds",
			Help:    "Time taken to ingest a certificate batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CertStoreCachedDevicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsec_certstore_cached_devices_total",
			Help: "Number of device verify keys held in the hot cache",
		},
	)

	ServerPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_server_polls_total",
			Help: "Total number of certificate polls against the server, by result",
		},
		[]string{"result"},
	)

	// ManifestCache metrics

	ManifestCacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsec_manifest_cache_entries_total",
			Help: "Number of manifests currently held in the in-memory cache",
		},
	)

	ManifestCachePendingLocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsec_manifest_cache_pending_locks_total",
			Help: "Number of update-lock waiters currently parked across all entries",
		},
	)

	ManifestCacheHeldLocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parsec_manifest_cache_held_locks_total",
			Help: "Number of entry update locks currently held",
		},
	)

	ManifestCacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_manifest_cache_results_total",
			Help: "Total number of cache lookups, by hit or miss",
		},
		[]string{"result"},
	)

	ManifestPopulateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parsec_manifest_populate_duration_seconds",
			Help:    "Time taken to populate a manifest into the cache, by source",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// PathResolver metrics

	PathResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_path_resolutions_total",
			Help: "Total number of path resolutions, by outcome",
		},
		[]string{"outcome"},
	)

	PathResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parsec_path_resolution_duration_seconds",
			Help:    "Time taken to resolve a path to a manifest in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReparentResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_reparent_resolutions_total",
			Help: "Total number of reparent resolutions, by outcome",
		},
		[]string{"outcome"},
	)

	ReparentRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parsec_reparent_retries_total",
			Help: "Total number of reparent resolution attempts restarted after a lock wait",
		},
	)

	ReverseResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parsec_reverse_resolutions_total",
			Help: "Total number of id-to-path resolutions, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(CertificatesIngestedTotal)
	prometheus.MustRegister(CertIngestDuration)
	prometheus.MustRegister(CertStoreCachedDevicesTotal)
	prometheus.MustRegister(ServerPollsTotal)

	prometheus.MustRegister(ManifestCacheEntriesTotal)
	prometheus.MustRegister(ManifestCachePendingLocksTotal)
	prometheus.MustRegister(ManifestCacheHeldLocksTotal)
	prometheus.MustRegister(ManifestCacheResultsTotal)
	prometheus.MustRegister(ManifestPopulateDuration)

	prometheus.MustRegister(PathResolutionsTotal)
	prometheus.MustRegister(PathResolutionDuration)
	prometheus.MustRegister(ReparentResolutionsTotal)
	prometheus.MustRegister(ReparentRetriesTotal)
	prometheus.MustRegister(ReverseResolutionsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
