/*
Package localdb specifies the LocalDB collaborator (spec §6.1) and
ships one concrete, bbolt-backed implementation of it. The real
on-disk schema is collaborator-owned per spec §1's Non-goals; this
core only ever touches storage through the Store interface below, the
way the teacher repo's pkg/storage.Store interface is the only thing
pkg/manager ever talks to.

Blobs handed to AddCertificate/PutManifestEncrypted are opaque, already
encrypted by the caller (see pkg/cryptocore) — the store never
decrypts anything itself.
*/
package localdb

import (
	"errors"
	"fmt"

	"github.com/cuemby/parsec-core/pkg/types"
)

// ErrNonExisting means the query matched nothing in storage at all.
var ErrNonExisting = errors.New("certificate does not exist")

// ErrTooRecent means storage has an entry for the query, but not as
// of the requested UpTo bound — the caller asked "as it stood at
// index N" and the only matching record was added later.
type ErrTooRecent struct {
	CertificateTimestamp types.DateTime
}

func (e *ErrTooRecent) Error() string {
	return fmt.Sprintf("certificate exists but is too recent (timestamp %s)", e.CertificateTimestamp)
}

// UpTo bounds a point query to a snapshot of the log. A nil Index
// means "as of the latest certificate known to storage".
type UpTo struct {
	Index *types.IndexInt
}

func UpToLatest() UpTo { return UpTo{} }
func UpToIndex(idx types.IndexInt) UpTo {
	return UpTo{Index: &idx}
}

// CertificateQuery selects which certificate(s) AddCertificate's
// records should be matched against. Exactly one selector field
// should be set; Topic always narrows the search.
type CertificateQuery struct {
	Topic    types.Topic
	Index    *types.IndexInt
	DeviceID *types.DeviceID
	UserID   *types.UserID
}

func ByIndex(topic types.Topic, index types.IndexInt) CertificateQuery {
	return CertificateQuery{Topic: topic, Index: &index}
}

func ByDevice(device types.DeviceID) CertificateQuery {
	return CertificateQuery{Topic: types.CommonTopic(), DeviceID: &device}
}

func ByUser(user types.UserID) CertificateQuery {
	return CertificateQuery{Topic: types.CommonTopic(), UserID: &user}
}

// EncryptedCertificate is one stored certificate, still encrypted.
type EncryptedCertificate struct {
	Index     types.IndexInt
	Timestamp types.DateTime
	Blob      []byte
}

// LogEntry is one stored certificate alongside every piece of
// unencrypted indexing metadata recorded for it, returned by
// GetAllCertificatesEncrypted so a caller can rebuild an aggregate
// view of the whole organization without issuing one topic-scoped
// query per known realm.
type LogEntry struct {
	Index     types.IndexInt
	Topic     types.Topic
	Timestamp types.DateTime
	Meta      CertificateMeta
	Blob      []byte
}

// CertificateMeta is the (unencrypted) indexing metadata AddCertificate
// records alongside the opaque blob, so later point queries don't need
// to decrypt+decode every candidate.
type CertificateMeta struct {
	Kind     types.CertificateKind
	Author   types.CertificateAuthor
	DeviceID *types.DeviceID
	UserID   *types.UserID
}

// Store is the LocalDB collaborator contract from spec §6.1, plus the
// manifest-storage operations referenced by the Lifecycle table in
// spec §3 (manifests are persisted by the same per-device store; the
// shipped BoltStore keeps them in their own bucket of the same single
// database file that holds the certificate log).
type Store interface {
	// AddCertificate appends one certificate to the log at index,
	// recording indexing metadata alongside the opaque blob.
	AddCertificate(index types.IndexInt, topic types.Topic, timestamp types.DateTime, meta CertificateMeta, encryptedBlob []byte) error

	// GetCertificateEncrypted returns the single certificate matching
	// query, as it stood at upTo. Returns ErrNonExisting or
	// *ErrTooRecent on miss.
	GetCertificateEncrypted(query CertificateQuery, upTo UpTo) (types.DateTime, []byte, error)

	// GetMultipleCertificatesEncrypted returns every certificate
	// matching query (typically a topic-only query enumerating a
	// whole topic), as of upTo, newest constraints applied via
	// offset/limit (either may be nil for "no bound").
	GetMultipleCertificatesEncrypted(query CertificateQuery, upTo UpTo, offset, limit *int) ([]EncryptedCertificate, error)

	// GetLastTimestamps returns the most recent timestamp stored on
	// every topic this store has ever seen a certificate for.
	GetLastTimestamps() (types.PerTopicLastTimestamps, error)

	// LastIndex returns the highest certificate index stored in the
	// log, or 0 if the log is empty (the first certificate of an
	// organization has index 1, per types.IndexInt).
	LastIndex() (types.IndexInt, error)

	// GetAllCertificatesEncrypted returns the whole log, across every
	// topic, in index order, as of upTo. Used to rebuild CertStore's
	// in-memory aggregate from scratch.
	GetAllCertificatesEncrypted(upTo UpTo) ([]LogEntry, error)

	// ForgetAllCertificates wipes the certificate log. Used by
	// CertIngestor on a redacted-flavor switch (spec §4.3).
	ForgetAllCertificates() error

	// GetManifestEncrypted returns the stored blob for id, or
	// ErrNonExisting.
	GetManifestEncrypted(id types.EntryID) ([]byte, error)

	// PutManifestEncrypted writes (or overwrites) the stored blob for
	// id.
	PutManifestEncrypted(id types.EntryID, encryptedBlob []byte) error

	// Close releases the underlying handle. After Close, every method
	// returns an error.
	Close() error
}

// Transactor is implemented by stores whose writes must be grouped
// into a single atomic unit, matching spec §6.1's
// "for_update(&Storage) -> Transaction with commit()/implicit
// rollback-on-drop". CertStore.ForWrite uses this to guarantee a
// batch of certificates commits all-or-nothing.
type Transactor interface {
	BeginWrite() (Transaction, error)
}

// Transaction scopes a group of writes. Callers must defer
// Rollback(); calling Commit first makes the deferred Rollback a
// no-op, mirroring bbolt's own *bolt.Tx contract.
type Transaction interface {
	Store
	Commit() error
	Rollback() error
}
