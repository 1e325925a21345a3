/*
Package pathresolver implements the PathResolver component (spec
§4.5): translating a workspace-relative FsPath into a manifest, a
confinement point, and (optionally) an update lock, lazily populating
ManifestCache from local storage or the server as it walks.

Three resolution modes are exposed:

  - Resolve: single-path resolution (§4.5.1), a fixed-point loop around
    a cache-only walk.
  - ResolveForReparent: the four-lock rename/move resolution (§4.5.2),
    acquiring dst_parent, src_parent, src_child, dst_child in that
    fixed order via an AutoRelease accumulator so a failed attempt
    never leaks a partially acquired lock.
  - ResolveReverse: id-to-path resolution (§4.5.3) by walking parent
    pointers to the root, with cycle detection and the
    last-failed-populate guard against infinite retry loops.

Grounded on the teacher's pkg/scheduler/pkg/reconciler retry-loop
shape (ticker-driven "try, and on a recoverable miss, loop" pattern),
generalized from "retry on a schedule" to "retry once the awaited
cache-populate or lock-wait event fires".

Simplification recorded in DESIGN.md: manifest bytes fetched from the
server are decrypted with the same per-device symmetric key
ManifestCache uses for local storage, rather than modeling the full
realm-key-rotation bundle (RealmKeyRotation certificates are still
validated and stored by CertValidator/CertStore; only the "which key
encrypts this workspace's manifests right now" bookkeeping is out of
this package's scope, as the Crypto collaborator's contract in spec §6
is bytes-in/bytes-out and doesn't mandate a particular key-management
layering).
*/
package pathresolver
