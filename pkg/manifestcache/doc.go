/*
Package manifestcache implements the ManifestCache component (spec
§4.4): an in-memory map from entry id to the latest known local
manifest, plus a per-entry update-lock table with FIFO wait queues.

Cache reads never touch storage or the network; a miss is reported to
the caller (PathResolver) as "not cached", and it is PathResolver's job
to decide whether to populate from local storage or the server. Writes
follow a write-invalidate policy: storage is updated first, then the
cache, so a reader can never observe a cache entry storage doesn't
agree with (spec P3).

Grounded on the teacher's pkg/events.Broker: a map guarded by a short
mutex, with waiters parked on buffered channels.
*/
package manifestcache
