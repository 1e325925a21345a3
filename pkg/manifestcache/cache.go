package manifestcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/metrics"
	"github.com/cuemby/parsec-core/pkg/types"
)

// Config supplies Cache's dependencies: a storage handle for the
// write-invalidate persistence path and the device's at-rest key for
// encrypting/decrypting cached manifest blobs. Bus is optional; when
// set, every Put publishes EventManifestInvalidated.
type Config struct {
	Storage   localdb.Store
	DeviceKey types.SymmetricKey
	Bus       *events.Broker
}

// Cache is the ManifestCache component.
type Cache struct {
	mu      sync.RWMutex
	entries map[types.EntryID]*types.LocalManifest

	storage   localdb.Store
	deviceKey types.SymmetricKey
	bus       *events.Broker

	locks *lockTable
}

// New constructs an empty Cache. The workspace root is not synthesized
// here; call EnsureRoot once the realm id is known.
func New(cfg Config) *Cache {
	return &Cache{
		entries:   make(map[types.EntryID]*types.LocalManifest),
		storage:   cfg.Storage,
		deviceKey: cfg.DeviceKey,
		bus:       cfg.Bus,
		locks:     newLockTable(),
	}
}

// Get returns id's manifest if already cached. ok is false when a
// populate is required — PathResolver's NeedPopulate(id) outcome.
func (c *Cache) Get(id types.EntryID) (*types.LocalManifest, bool) {
	c.mu.RLock()
	m, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		metrics.ManifestCacheResultsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.ManifestCacheResultsTotal.WithLabelValues("miss").Inc()
	}
	return m, ok
}

// Stats reports the snapshot metrics.Collector polls.
func (c *Cache) Stats() metrics.ManifestCacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	held, pending := c.locks.stats()
	return metrics.ManifestCacheStats{Entries: entries, HeldLocks: held, PendingLocks: pending}
}

// Insert records a manifest already obtained from local storage or
// the server directly into the cache, without itself writing to
// storage. Used by PathResolver after a server fetch it has already
// persisted through Put, or after PopulateFromStorage's own storage
// round trip.
func (c *Cache) Insert(m *types.LocalManifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.ID()] = m
}

// PopulateFromStorage loads id's manifest from local storage and
// inserts it into the cache if found. Returns localdb.ErrNonExisting
// unwrapped (so callers can errors.Is against it directly) when
// nothing is stored locally for id, leaving a server fetch to
// PathResolver.
func (c *Cache) PopulateFromStorage(id types.EntryID) (*types.LocalManifest, error) {
	timer := metrics.NewTimer()
	blob, err := c.storage.GetManifestEncrypted(id)
	if err != nil {
		return nil, err
	}
	manifest, err := c.decode(blob)
	if err != nil {
		return nil, coreerrors.Internal("decoding cached manifest", err)
	}
	c.Insert(manifest)
	timer.ObserveDurationVec(metrics.ManifestPopulateDuration, "storage")
	return manifest, nil
}

// Put persists manifest to local storage, then updates the cache —
// the write-invalidate order spec §4.4 requires. Any prior cached
// value for this id is replaced atomically from a reader's
// perspective (readers only ever see the pre-write or post-write
// value, never a torn one, since Insert takes the write lock).
func (c *Cache) Put(manifest *types.LocalManifest) error {
	blob, err := c.encode(manifest)
	if err != nil {
		return coreerrors.Internal("encoding manifest for storage", err)
	}
	if err := c.storage.PutManifestEncrypted(manifest.ID(), blob); err != nil {
		return coreerrors.Internal("writing manifest blob", err)
	}
	c.Insert(manifest)

	if c.bus != nil {
		c.bus.Publish(&events.Event{
			Type:    events.EventManifestInvalidated,
			Message: fmt.Sprintf("manifest %s updated", manifest.ID()),
		})
	}
	return nil
}

// EnsureRoot guarantees realm's workspace root manifest is present in
// the cache, synthesizing and persisting a speculative one (spec
// §4.4's "root manifest is always present") if neither the cache nor
// local storage has it yet. The root is the only manifest whose id is
// derived deterministically from realm rather than assigned by the
// server, which is what makes it safe to synthesize offline.
func (c *Cache) EnsureRoot(realm types.RealmID, now types.DateTime) (*types.LocalManifest, error) {
	rootID := types.RealmRootEntryID(realm)

	if m, ok := c.Get(rootID); ok {
		return m, nil
	}

	m, err := c.PopulateFromStorage(rootID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, localdb.ErrNonExisting) {
		return nil, err
	}

	root := types.NewSpeculativeRoot(realm, now)
	if err := c.Put(root); err != nil {
		return nil, err
	}
	return root, nil
}

// TakeUpdateLock attempts to acquire id's update lock (spec §4.4's
// {Taken, NeedWait} outcome). When wait is non-nil, it fires with the
// caller's own guard once ownership has been handed to it, strictly
// FIFO per id (spec P5); a caller that was waiting must still re-walk
// from the cache afterward, since intervening mutations may have
// changed what id refers to.
func (c *Cache) TakeUpdateLock(id types.EntryID) (guard *UpdateGuard, wait <-chan *UpdateGuard) {
	return c.locks.Take(id)
}

// TryTakeUpdateLock never blocks: it returns coreerrors.WouldBlock
// instead of enqueuing a waiter, for callers that asked for a
// non-blocking lock.
func (c *Cache) TryTakeUpdateLock(id types.EntryID) (*UpdateGuard, error) {
	g, ok := c.locks.TryTake(id)
	if !ok {
		return nil, coreerrors.WouldBlock
	}
	return g, nil
}

func (c *Cache) encode(m *types.LocalManifest) ([]byte, error) {
	plain, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return cryptocore.EncryptBlob(c.deviceKey, plain)
}

func (c *Cache) decode(blob []byte) (*types.LocalManifest, error) {
	plain, err := cryptocore.DecryptBlob(c.deviceKey, blob)
	if err != nil {
		return nil, err
	}
	var m types.LocalManifest
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
