package pathresolver

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/cuemby/parsec-core/pkg/certstore"
	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/manifestcache"
	"github.com/cuemby/parsec-core/pkg/metrics"
	"github.com/cuemby/parsec-core/pkg/serverclient"
	"github.com/cuemby/parsec-core/pkg/types"
)

// Config supplies Resolver's dependencies. PreventSyncPattern is the
// user-configured prevent-sync regex (spec §4.5.4, glossary); a nil
// pattern confines nothing.
type Config struct {
	Cache              *manifestcache.Cache
	Certs              *certstore.Store
	Client             serverclient.Client
	DeviceKey          types.SymmetricKey
	PreventSyncPattern *regexp.Regexp
}

// Resolver is the PathResolver component.
type Resolver struct {
	cache       *manifestcache.Cache
	certs       *certstore.Store
	client      serverclient.Client
	deviceKey   types.SymmetricKey
	preventSync *regexp.Regexp
}

func New(cfg Config) *Resolver {
	return &Resolver{
		cache:       cfg.Cache,
		certs:       cfg.Certs,
		client:      cfg.Client,
		deviceKey:   cfg.DeviceKey,
		preventSync: cfg.PreventSyncPattern,
	}
}

// Resolved is the successful outcome of Resolve.
type Resolved struct {
	Manifest      *types.LocalManifest
	Confined      bool
	ConfinementID types.EntryID
	// Guard is non-nil only when Resolve was called with
	// lockForUpdate.
	Guard *manifestcache.UpdateGuard
}

// remoteManifestEnvelope is what a server's FetchManifest blob
// decrypts to: a detached-signature envelope (same wire shape
// cryptocore uses for certificates) naming which device produced it,
// so the signature can be checked against that device's verify key at
// the requirements' certificate view.
type remoteManifestEnvelope struct {
	AuthorDevice types.DeviceID
	Kind         types.ManifestKind
	File         *types.FileManifest
	Folder       *types.FolderManifest
}

// Resolve translates path into a manifest, following spec §4.5.1's
// fixed-point loop: walk the cache, and on a populate-miss or a
// lock-wait, retry from the top.
func (r *Resolver) Resolve(ctx context.Context, realm types.RealmID, path types.FsPath, lockForUpdate bool) (*Resolved, error) {
	timer := metrics.NewTimer()
	resolved, err := r.resolve(ctx, realm, path, lockForUpdate)
	timer.ObserveDuration(metrics.PathResolutionDuration)
	if err != nil {
		metrics.PathResolutionsTotal.WithLabelValues(resolutionOutcomeLabel(err)).Inc()
		return nil, err
	}
	metrics.PathResolutionsTotal.WithLabelValues("done").Inc()
	return resolved, nil
}

func resolutionOutcomeLabel(err error) string {
	if errors.Is(err, coreerrors.EntryNotFound) {
		return "not_found"
	}
	return "error"
}

func (r *Resolver) resolve(ctx context.Context, realm types.RealmID, path types.FsPath, lockForUpdate bool) (*Resolved, error) {
	root, err := r.cache.EnsureRoot(realm, types.Now())
	if err != nil {
		return nil, err
	}

	for {
		outcome := r.walk(root, path, lockForUpdate)
		switch outcome.kind {
		case walkDone:
			return &Resolved{
				Manifest:      outcome.manifest,
				Confined:      outcome.confined,
				ConfinementID: outcome.confinementID,
				Guard:         outcome.guard,
			}, nil
		case walkNotFound:
			return nil, coreerrors.EntryNotFound
		case walkNeedPopulate:
			if _, err := r.populate(ctx, realm, outcome.populateID); err != nil {
				return nil, err
			}
		case walkNeedWait:
			<-outcome.wait
		}
	}
}

type walkOutcomeKind int

const (
	walkDone walkOutcomeKind = iota
	walkNotFound
	walkNeedPopulate
	walkNeedWait
)

type walkOutcome struct {
	kind          walkOutcomeKind
	manifest      *types.LocalManifest
	confined      bool
	confinementID types.EntryID
	guard         *manifestcache.UpdateGuard
	populateID    types.EntryID
	wait          <-chan *manifestcache.UpdateGuard
}

// walk runs entirely against the cache: it never populates or blocks
// itself, only reports what the caller needs to do next (spec
// §4.5.1's "outcome" match). Root-most confinement wins: once an
// ancestor is confined, later ancestors never override it.
func (r *Resolver) walk(root *types.LocalManifest, path types.FsPath, lockForUpdate bool) walkOutcome {
	current := root
	confined := false
	var confinementID types.EntryID

	for _, name := range path {
		if current.Kind == types.ManifestKindFile {
			return walkOutcome{kind: walkNotFound}
		}

		childID, ok := current.Folder.Base.Children[name]
		if !ok {
			return walkOutcome{kind: walkNotFound}
		}

		childManifest, ok := r.cache.Get(childID)
		if !ok {
			return walkOutcome{kind: walkNeedPopulate, populateID: childID}
		}

		// Protects against a stale child claimed by a folder whose
		// children table was rewritten, or an injected orphan/cycle
		// (spec S6): a valid manifest's Parent always points back to
		// the folder that's actually walking to it right now.
		if childManifest.Parent() != current.ID() {
			return walkOutcome{kind: walkNotFound}
		}

		if !confined {
			if _, isConfinementPoint := current.Folder.LocalConfinementPoints[childID]; isConfinementPoint {
				confined = true
				confinementID = childID
			}
		}

		current = childManifest
	}

	if !lockForUpdate {
		return walkOutcome{kind: walkDone, manifest: current, confined: confined, confinementID: confinementID}
	}

	guard, wait := r.cache.TakeUpdateLock(current.ID())
	if guard == nil {
		return walkOutcome{kind: walkNeedWait, wait: wait}
	}
	return walkOutcome{kind: walkDone, manifest: current, confined: confined, confinementID: confinementID, guard: guard}
}

// ensureCached returns id's manifest from the cache, populating it
// (local storage first, then the server) if necessary.
func (r *Resolver) ensureCached(ctx context.Context, realm types.RealmID, id types.EntryID) (*types.LocalManifest, error) {
	if m, ok := r.cache.Get(id); ok {
		return m, nil
	}
	return r.populate(ctx, realm, id)
}

// populate fetches id's manifest from local storage, falling back to
// the server on a local miss, and inserts the result into the cache
// via Cache.Put (so the fetched copy is durably persisted, not merely
// cached in memory).
func (r *Resolver) populate(ctx context.Context, realm types.RealmID, id types.EntryID) (*types.LocalManifest, error) {
	local, err := r.cache.PopulateFromStorage(id)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, localdb.ErrNonExisting) {
		return nil, err
	}
	return r.populateFromServer(ctx, realm, id)
}

func (r *Resolver) populateFromServer(ctx context.Context, realm types.RealmID, id types.EntryID) (*types.LocalManifest, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ManifestPopulateDuration, "server")

	encrypted, requirements, err := r.client.FetchManifest(ctx, id)
	if err != nil {
		return nil, err
	}

	plain, err := cryptocore.DecryptBlob(r.deviceKey, encrypted)
	if err != nil {
		return nil, &coreerrors.CoreError{Kind: coreerrors.KindInvalidManifest, Message: "decrypting fetched manifest", Err: err}
	}
	payload, sig, err := cryptocore.Decode(plain)
	if err != nil {
		return nil, &coreerrors.CoreError{Kind: coreerrors.KindInvalidManifest, Message: "decoding fetched manifest envelope", Err: err}
	}

	var env remoteManifestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &coreerrors.CoreError{Kind: coreerrors.KindInvalidManifest, Message: "decoding fetched manifest payload", Err: err}
	}

	var verifyKey types.VerifyKey
	var found bool
	err = r.certs.ForReadWithRequirements(ctx, requirements, func(g *certstore.ReadGuard) error {
		var readErr error
		verifyKey, found, readErr = g.DeviceVerifyKey(env.AuthorDevice)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &coreerrors.CoreError{Kind: coreerrors.KindInvalidManifest, Message: "fetched manifest's author device is unknown"}
	}
	if !cryptocore.VerifyDetached(payload, sig, verifyKey) {
		return nil, &coreerrors.CoreError{Kind: coreerrors.KindInvalidManifest, Message: "fetched manifest's signature does not match its author device"}
	}

	manifest := r.toLocalManifest(env)
	if err := r.cache.Put(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// toLocalManifest wraps a just-verified remote manifest with local
// bookkeeping: need_sync=false (it matches the server exactly, by
// definition of having just been fetched), and for folders, every
// child name matching the prevent-sync pattern is recorded as a
// confinement point (spec §4.5.4: confinement is computed when a
// folder is fetched).
func (r *Resolver) toLocalManifest(env remoteManifestEnvelope) *types.LocalManifest {
	now := types.Now()
	if env.Kind == types.ManifestKindFile {
		return &types.LocalManifest{
			Kind: types.ManifestKindFile,
			File: &types.LocalFileManifest{
				Base:      *env.File,
				NeedSync:  false,
				UpdatedAt: now,
			},
		}
	}

	local := &types.LocalFolderManifest{
		Base:                    *env.Folder,
		NeedSync:                false,
		UpdatedAt:               now,
		LocalConfinementPoints:  map[types.EntryID]struct{}{},
		RemoteConfinementPoints: map[types.EntryID]struct{}{},
	}
	if r.preventSync != nil {
		for name, id := range env.Folder.Children {
			if r.preventSync.MatchString(string(name)) {
				local.LocalConfinementPoints[id] = struct{}{}
			}
		}
	}
	return &types.LocalManifest{Kind: types.ManifestKindFolder, Folder: local}
}
