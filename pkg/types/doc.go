/*
Package types defines the core data model shared by every layer of the
certificate and workspace-manifest core: identifiers, certificate
variants, per-topic timestamp bookkeeping, and the manifest shapes that
describe files and folders inside a workspace.

Identifiers (UserID, DeviceID, RealmID, EntryID, BlockID, ChunkID) are
distinct named types over uuid.UUID so the compiler rejects passing a
RealmID where an EntryID is expected, even though a workspace root's
EntryID and RealmID share the same bit pattern.

Certificates are a closed sum type: one struct per variant plus a
CertificateKind tag, dispatched with type switches rather than
interface method sets (see pkg/certvalidator).

None of the types here are safe for concurrent mutation; callers that
share a value across goroutines must treat it as immutable (certstore
and manifestcache do exactly that, handing out pointers to values that
are never mutated in place after validation).
*/
package types
