package metrics

import (
	"time"
)

// CertStoreStats is the snapshot certstore.Store.Stats returns.
type CertStoreStats struct {
	CachedDevices int
}

// ManifestCacheStats is the snapshot manifestcache.Cache.Stats returns.
type ManifestCacheStats struct {
	Entries      int
	HeldLocks    int
	PendingLocks int
}

// Collector polls CertStore and ManifestCache for the gauge-shaped
// metrics neither component can sensibly push inline (cache sizes, lock
// table occupancy), the way the teacher's Collector polls
// *manager.Manager for node/service/task counts on the same ticker
// shape. It takes plain stat-producing closures rather than the
// concrete *certstore.Store/*manifestcache.Cache types so that metrics,
// a leaf package both of those already import for inline counters,
// never imports them back.
type Collector struct {
	certStats  func() CertStoreStats
	cacheStats func() ManifestCacheStats
	stopCh     chan struct{}
	interval   time.Duration
}

// NewCollector constructs a Collector. Either stat function may be nil
// if only the other component's gauges are wanted.
func NewCollector(certStats func() CertStoreStats, cacheStats func() ManifestCacheStats) *Collector {
	return &Collector{
		certStats:  certStats,
		cacheStats: cacheStats,
		stopCh:     make(chan struct{}),
		interval:   15 * time.Second,
	}
}

// Start begins polling on a 15-second ticker, collecting once
// immediately so the gauges aren't empty until the first tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the polling goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.certStats != nil {
		stats := c.certStats()
		CertStoreCachedDevicesTotal.Set(float64(stats.CachedDevices))
	}
	if c.cacheStats != nil {
		stats := c.cacheStats()
		ManifestCacheEntriesTotal.Set(float64(stats.Entries))
		ManifestCacheHeldLocksTotal.Set(float64(stats.HeldLocks))
		ManifestCachePendingLocksTotal.Set(float64(stats.PendingLocks))
	}
}
