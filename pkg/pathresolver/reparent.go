package pathresolver

import (
	"context"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/manifestcache"
	"github.com/cuemby/parsec-core/pkg/metrics"
	"github.com/cuemby/parsec-core/pkg/types"
)

// autoRelease accumulates update-lock guards acquired during one
// reparenting attempt. Close releases every guard still held; Defuse
// hands them out without releasing, for the all-success path. This is
// the move-only accumulator spec §4.5.2/§9 calls for, so a half-done
// attempt never leaks a lock across an early return.
type autoRelease struct {
	guards []*manifestcache.UpdateGuard
	closed bool
}

func (a *autoRelease) add(g *manifestcache.UpdateGuard) {
	a.guards = append(a.guards, g)
}

func (a *autoRelease) Close() {
	if a.closed {
		return
	}
	a.closed = true
	for _, g := range a.guards {
		if g != nil {
			g.Release()
		}
	}
}

func (a *autoRelease) Defuse() []*manifestcache.UpdateGuard {
	a.closed = true
	return a.guards
}

// ReparentGuards carries the four locks a reparenting resolution
// acquires. DstChild is nil when the caller didn't name a destination
// child (no exchange semantics requested).
type ReparentGuards struct {
	DstParent *manifestcache.UpdateGuard
	SrcParent *manifestcache.UpdateGuard
	SrcChild  *manifestcache.UpdateGuard
	DstChild  *manifestcache.UpdateGuard
}

// Release releases every guard this result holds. Safe to call
// multiple times.
func (g *ReparentGuards) Release() {
	if g.DstParent != nil {
		g.DstParent.Release()
	}
	if g.SrcParent != nil {
		g.SrcParent.Release()
	}
	if g.SrcChild != nil {
		g.SrcChild.Release()
	}
	if g.DstChild != nil {
		g.DstChild.Release()
	}
}

// ReparentResult is the successful outcome of ResolveForReparent.
// DstChild is nil exactly when the caller didn't name a destination
// child.
type ReparentResult struct {
	DstParent *types.LocalManifest
	SrcParent *types.LocalManifest
	SrcChild  *types.LocalManifest
	DstChild  *types.LocalManifest
	Guards    *ReparentGuards
}

// ResolveForReparent resolves and locks the (up to) four manifests a
// rename/move needs, in the fixed order dst_parent -> src_parent ->
// src_child -> dst_child (spec §4.5.2), restarting the whole
// resolution from scratch whenever any acquisition can't succeed
// synchronously (intervening mutations may have changed children
// tables, so a resumed resolution could act on stale data).
//
// dstChildName is nil when no destination child is being replaced
// (plain move rather than an exchange).
func (r *Resolver) ResolveForReparent(ctx context.Context, realm types.RealmID, srcParentPath types.FsPath, srcChildName types.EntryName, dstParentPath types.FsPath, dstChildName *types.EntryName) (*ReparentResult, error) {
	for {
		result, wait, err := r.tryReparent(ctx, realm, srcParentPath, srcChildName, dstParentPath, dstChildName)
		if err != nil {
			metrics.ReparentResolutionsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if wait != nil {
			// The wait channel already carries a granted guard for
			// whatever id we were blocked on; this attempt's entire
			// view is stale regardless, so hand it straight back and
			// restart the walk from the top.
			guard := <-wait
			guard.Release()
			metrics.ReparentRetriesTotal.Inc()
			continue
		}
		metrics.ReparentResolutionsTotal.WithLabelValues("done").Inc()
		return result, nil
	}
}

func (r *Resolver) tryReparent(ctx context.Context, realm types.RealmID, srcParentPath types.FsPath, srcChildName types.EntryName, dstParentPath types.FsPath, dstChildName *types.EntryName) (*ReparentResult, <-chan *manifestcache.UpdateGuard, error) {
	acc := &autoRelease{}
	defer acc.Close()

	dstParent, err := r.resolveUnlocked(ctx, realm, dstParentPath)
	if err != nil {
		return nil, nil, err
	}
	if dstParent.Kind != types.ManifestKindFolder {
		return nil, nil, coreerrors.DestinationNotFound
	}

	dstParentGuard, wait := r.cache.TakeUpdateLock(dstParent.ID())
	if dstParentGuard == nil {
		return nil, wait, nil
	}
	acc.add(dstParentGuard)

	srcParent, err := r.resolveUnlocked(ctx, realm, srcParentPath)
	if err != nil {
		return nil, nil, err
	}
	if srcParent.Kind != types.ManifestKindFolder {
		return nil, nil, coreerrors.SourceNotFound
	}

	srcParentGuard, wait := r.cache.TakeUpdateLock(srcParent.ID())
	if srcParentGuard == nil {
		return nil, wait, nil
	}
	acc.add(srcParentGuard)

	srcChildID, ok := srcParent.Folder.Base.Children[srcChildName]
	if !ok {
		return nil, nil, coreerrors.SourceNotFound
	}
	srcChild, err := r.ensureCached(ctx, realm, srcChildID)
	if err != nil {
		return nil, nil, err
	}
	if srcChild.Parent() != srcParent.ID() {
		return nil, nil, coreerrors.SourceNotFound
	}

	srcChildGuard, wait := r.cache.TakeUpdateLock(srcChildID)
	if srcChildGuard == nil {
		return nil, wait, nil
	}
	acc.add(srcChildGuard)

	var dstChild *types.LocalManifest
	var dstChildGuard *manifestcache.UpdateGuard
	if dstChildName != nil {
		dstChildID, ok := dstParent.Folder.Base.Children[*dstChildName]
		if !ok {
			return nil, nil, coreerrors.DestinationNotFound
		}
		dstChild, err = r.ensureCached(ctx, realm, dstChildID)
		if err != nil {
			return nil, nil, err
		}
		if dstChild.Parent() != dstParent.ID() {
			return nil, nil, coreerrors.DestinationNotFound
		}

		dstChildGuard, wait = r.cache.TakeUpdateLock(dstChildID)
		if dstChildGuard == nil {
			return nil, wait, nil
		}
		acc.add(dstChildGuard)
	}

	guards := acc.Defuse()
	return &ReparentResult{
		DstParent: dstParent,
		SrcParent: srcParent,
		SrcChild:  srcChild,
		DstChild:  dstChild,
		Guards: &ReparentGuards{
			DstParent: guards[0],
			SrcParent: guards[1],
			SrcChild:  guards[2],
			DstChild:  dstChildGuard,
		},
	}, nil, nil
}

// resolveUnlocked resolves path to its manifest without taking an
// update lock, reusing Resolve's own populate-and-retry loop.
func (r *Resolver) resolveUnlocked(ctx context.Context, realm types.RealmID, path types.FsPath) (*types.LocalManifest, error) {
	resolved, err := r.Resolve(ctx, realm, path, false)
	if err != nil {
		return nil, err
	}
	return resolved.Manifest, nil
}
