package pathresolver

import (
	"context"
	"errors"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/manifestcache"
	"github.com/cuemby/parsec-core/pkg/metrics"
	"github.com/cuemby/parsec-core/pkg/types"
)

// ReverseOutcomeKind classifies ResolveReverse's result, per spec
// §4.5.3.
type ReverseOutcomeKind int

const (
	// ReverseMissing means entryID isn't known locally and populating
	// it failed (not present on the server either).
	ReverseMissing ReverseOutcomeKind = iota
	// ReverseUnreachable means entryID itself resolved, but a parent
	// in its chain is a file, re-seen (a cycle), or didn't populate.
	ReverseUnreachable
	// ReverseReachable means the full path to root was reconstructed.
	ReverseReachable
)

// ReverseResult is the outcome of ResolveReverse.
type ReverseResult struct {
	Kind ReverseOutcomeKind

	// Manifest is set for Unreachable (the last manifest reached
	// before the walk gave up) and Reachable (entryID's own
	// manifest).
	Manifest *types.LocalManifest

	// Path, Confined, ConfinementID, and Guard are only set when Kind
	// == ReverseReachable.
	Path          types.FsPath
	Confined      bool
	ConfinementID types.EntryID
	Guard         *manifestcache.UpdateGuard
}

// ResolveReverse computes entryID's path by walking parent pointers up
// to the workspace root (spec §4.5.3), optionally locking entryID for
// update once the walk succeeds.
func (r *Resolver) ResolveReverse(ctx context.Context, realm types.RealmID, entryID types.EntryID, lockForUpdate bool) (*ReverseResult, error) {
	for {
		result, wait, err := r.walkReverse(ctx, realm, entryID, lockForUpdate)
		if err != nil {
			metrics.ReverseResolutionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if wait != nil {
			guard := <-wait
			guard.Release()
			continue
		}
		metrics.ReverseResolutionsTotal.WithLabelValues(result.Kind.metricLabel()).Inc()
		return result, nil
	}
}

func (k ReverseOutcomeKind) metricLabel() string {
	switch k {
	case ReverseReachable:
		return "reachable"
	case ReverseUnreachable:
		return "unreachable"
	default:
		return "missing"
	}
}

func (r *Resolver) walkReverse(ctx context.Context, realm types.RealmID, entryID types.EntryID, lockForUpdate bool) (*ReverseResult, <-chan *manifestcache.UpdateGuard, error) {
	rootID := types.RealmRootEntryID(realm)
	if _, err := r.cache.EnsureRoot(realm, types.Now()); err != nil {
		return nil, nil, err
	}

	entry, err := r.ensureCached(ctx, realm, entryID)
	if err != nil {
		if errors.Is(err, coreerrors.EntryNotFound) {
			return &ReverseResult{Kind: ReverseMissing}, nil, nil
		}
		return nil, nil, err
	}

	// chainLeafToRoot accumulates ancestors in leaf-to-root order as
	// the walk climbs, then is reversed into chainRootToLeaf once the
	// root is reached.
	chainLeafToRoot := []*types.LocalManifest{entry}
	visited := map[types.EntryID]struct{}{entry.ID(): {}}

	// lastFailedPopulate compares against the id currently being
	// populated at each step (the corrected comparison from spec §9 —
	// the source reportedly compared against a stale outer id
	// instead), so a parent that fails to populate once is never
	// retried within the same walk.
	var lastFailedPopulate *types.EntryID

	current := entry
	for current.ID() != rootID {
		if current.Kind == types.ManifestKindFile && current.ID() != entryID {
			return &ReverseResult{Kind: ReverseUnreachable, Manifest: current}, nil, nil
		}

		parentID := current.Parent()
		if _, seen := visited[parentID]; seen {
			return &ReverseResult{Kind: ReverseUnreachable, Manifest: current}, nil, nil
		}

		parent, ok := r.cache.Get(parentID)
		if !ok {
			if lastFailedPopulate != nil && *lastFailedPopulate == parentID {
				return &ReverseResult{Kind: ReverseUnreachable, Manifest: current}, nil, nil
			}
			populated, err := r.populate(ctx, realm, parentID)
			if err != nil {
				if errors.Is(err, coreerrors.EntryNotFound) {
					lastFailedPopulate = &parentID
					return &ReverseResult{Kind: ReverseUnreachable, Manifest: current}, nil, nil
				}
				return nil, nil, err
			}
			parent = populated
		}

		visited[parentID] = struct{}{}
		chainLeafToRoot = append(chainLeafToRoot, parent)
		current = parent
	}

	chainRootToLeaf := reverseChain(chainLeafToRoot)

	path := make(types.FsPath, 0, len(chainRootToLeaf)-1)
	for i := 0; i < len(chainRootToLeaf)-1; i++ {
		name, ok := childNameOf(chainRootToLeaf[i], chainRootToLeaf[i+1].ID())
		if !ok {
			// The parent pointer agreed, but the claimed parent's
			// children table no longer names this child: treat as
			// the same defense spec S6 exercises for forward
			// resolution.
			return &ReverseResult{Kind: ReverseUnreachable, Manifest: current}, nil, nil
		}
		path = append(path, name)
	}

	confined, confinementID := confinementAlongChain(chainRootToLeaf)

	if !lockForUpdate {
		return &ReverseResult{Kind: ReverseReachable, Manifest: entry, Path: path, Confined: confined, ConfinementID: confinementID}, nil, nil
	}

	guard, wait := r.cache.TakeUpdateLock(entryID)
	if guard == nil {
		return nil, wait, nil
	}
	return &ReverseResult{Kind: ReverseReachable, Manifest: entry, Path: path, Confined: confined, ConfinementID: confinementID, Guard: guard}, nil, nil
}

func reverseChain(leafToRoot []*types.LocalManifest) []*types.LocalManifest {
	out := make([]*types.LocalManifest, len(leafToRoot))
	for i, m := range leafToRoot {
		out[len(leafToRoot)-1-i] = m
	}
	return out
}

func childNameOf(parent *types.LocalManifest, childID types.EntryID) (types.EntryName, bool) {
	if parent.Kind != types.ManifestKindFolder {
		return "", false
	}
	for name, id := range parent.Folder.Base.Children {
		if id == childID {
			return name, true
		}
	}
	return "", false
}

// confinementAlongChain replays the root-most-wins confinement rule
// (spec §4.5.1) over an already-resolved root-to-leaf chain.
func confinementAlongChain(rootToLeaf []*types.LocalManifest) (confined bool, confinementID types.EntryID) {
	for i := 0; i < len(rootToLeaf)-1; i++ {
		parent := rootToLeaf[i]
		childID := rootToLeaf[i+1].ID()
		if parent.Kind != types.ManifestKindFolder {
			continue
		}
		if _, ok := parent.Folder.LocalConfinementPoints[childID]; ok {
			return true, childID
		}
	}
	return false, types.EntryID{}
}
