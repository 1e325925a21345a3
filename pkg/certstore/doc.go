/*
Package certstore implements the CertStore component (spec §4.1): the
three-lock discipline (topology_lock, storage_lock, cache_lock) that
gates every read and write of the certificate log, plus the
write-through, invalidate-on-abort in-memory cache consulted by
pkg/certvalidator during validation.

Grounded on pkg/security/ca.go's RWMutex-guarded state-plus-cache shape
and pkg/manager/fsm.go's guarded store access, both from the teacher
repository. topology_lock uses the ticket-queue fairRWMutex from
fairlock.go rather than sync.RWMutex, since spec §5 requires that a
writer never starve behind a steady stream of readers.
*/
package certstore
