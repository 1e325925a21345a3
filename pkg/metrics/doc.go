/*
Package metrics defines and registers this core's Prometheus metrics
and exposes them over HTTP for scraping, the way the teacher's own
pkg/metrics does for its cluster. The metric catalog is renamed to this
core's domain — certificate ingestion, manifest caching, and path
resolution — rather than the teacher's nodes/services/tasks/Raft
catalog, but the shapes carry over directly:

  - Gauges for instantaneous state that Collector polls on a ticker
    (cached device-key count, cache size, pending/held update locks),
    grounded on the teacher's NodesTotal/ServicesTotal poll loop in
    collector.go.
  - Counters and histograms updated inline by the component that just
    did the work (IngestBatch, Cache.Get, Resolver.Resolve and
    friends), grounded on the teacher's APIRequestsTotal/
    ServiceCreateDuration call sites, which are never polled — they're
    incremented at the point of the operation.
  - Timer, a small start/ObserveDuration helper, carried over verbatim
    since it's domain-agnostic.

Handler exposes the registry at /metrics via promhttp.Handler(), the
same endpoint shape the teacher wires into its HTTP server.
*/
package metrics
