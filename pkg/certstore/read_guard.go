package certstore

import (
	"github.com/cuemby/parsec-core/pkg/certvalidator"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/types"
)

// ReadGuard is handed to the callback passed to Store.ForRead. It is
// only valid for the duration of that callback: topology_lock and
// storage_lock are released as soon as it returns.
type ReadGuard struct {
	store *Store
}

// ensureCache rebuilds Store.cache from storage if a prior ForWrite
// invalidated it, then returns it. Guarded by cache_lock so concurrent
// readers that raced into an empty cache only rebuild it once.
func (g *ReadGuard) ensureCache() (*aggregateState, error) {
	g.store.cacheMu.Lock()
	defer g.store.cacheMu.Unlock()

	if g.store.cache != nil {
		return g.store.cache, nil
	}
	agg, err := g.store.rebuildFrom(g.store.storage)
	if err != nil {
		return nil, err
	}
	g.store.cache = agg
	return agg, nil
}

// StateView exposes the current aggregate for callers (CertValidator,
// PathResolver) that need a read-only view of organization state
// without going through one of ReadGuard's narrower accessors.
func (g *ReadGuard) StateView() (certvalidator.StateView, error) {
	return g.ensureCache()
}

// LastTimestamps returns the most recent timestamp observed per topic.
func (g *ReadGuard) LastTimestamps() (types.PerTopicLastTimestamps, error) {
	agg, err := g.ensureCache()
	if err != nil {
		return types.PerTopicLastTimestamps{}, err
	}
	return agg.lastTopic.Clone(), nil
}

// DeviceVerifyKey looks up a device's current verify key, consulting
// the advisory LRU hot-cache first. A miss (or a cache built under a
// stale aggregate generation) always falls through to the
// authoritative aggregate, so the hot-cache can never serve a wrong
// answer, only a slow one.
func (g *ReadGuard) DeviceVerifyKey(deviceID types.DeviceID) (types.VerifyKey, bool, error) {
	if key, ok := g.store.hotKeys.Get(deviceID); ok {
		agg, err := g.ensureCache()
		if err != nil {
			return types.VerifyKey{}, false, err
		}
		if have, ok := agg.DeviceVerifyKeyAtIndex(deviceID, agg.lastGlobalIndex); ok && have == key {
			return key, true, nil
		}
	}

	agg, err := g.ensureCache()
	if err != nil {
		return types.VerifyKey{}, false, err
	}
	key, ok := agg.DeviceVerifyKeyAtIndex(deviceID, agg.lastGlobalIndex)
	if ok {
		g.store.hotKeys.Add(deviceID, key)
	}
	return key, ok, nil
}

// GetCertificateEncrypted is a thin pass-through to storage, for
// callers (ServerClient sync, debugging tools) that need the raw
// still-encrypted bytes rather than a decoded Certificate.
func (g *ReadGuard) GetCertificateEncrypted(query localdb.CertificateQuery, upTo localdb.UpTo) (types.DateTime, []byte, error) {
	return g.store.storage.GetCertificateEncrypted(query, upTo)
}

// GetMultipleCertificatesEncrypted is a thin pass-through to storage.
func (g *ReadGuard) GetMultipleCertificatesEncrypted(query localdb.CertificateQuery, upTo localdb.UpTo, offset, limit *int) ([]localdb.EncryptedCertificate, error) {
	return g.store.storage.GetMultipleCertificatesEncrypted(query, upTo, offset, limit)
}

// GetManifestEncrypted is a thin pass-through to storage, used by
// PathResolver and ManifestCache to fetch a manifest's stored blob.
func (g *ReadGuard) GetManifestEncrypted(id types.EntryID) ([]byte, error) {
	return g.store.storage.GetManifestEncrypted(id)
}
