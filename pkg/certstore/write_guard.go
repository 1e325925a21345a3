package certstore

import (
	"github.com/cuemby/parsec-core/pkg/certvalidator"
	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/types"
)

// WriteGuard is handed to the callback passed to Store.ForWrite. Its
// state is a private aggregateState, seeded from committed storage at
// BeginWrite time and updated incrementally as certificates are added,
// so that certificate N of a batch validates against certificates
// 1..N-1 of the same batch before any of them commit. It is discarded
// once the callback returns, whether or not the transaction commits.
type WriteGuard struct {
	store *Store
	tx    localdb.Transaction
	state *aggregateState
}

// AddCertificate validates raw against the batch's current state, and
// on success persists it (still encrypted at rest under the device's
// symmetric key) and folds it into state so the next call in this
// batch sees it.
func (g *WriteGuard) AddCertificate(raw []byte, claimedIndex types.IndexInt) (*types.Certificate, error) {
	cert, verr := certvalidator.Validate(raw, claimedIndex, g.state)
	if verr != nil {
		return nil, verr
	}

	blob, err := cryptocore.EncryptBlob(g.store.deviceKey, raw)
	if err != nil {
		return nil, coreerrors.Internal("encrypting certificate for storage", err)
	}

	meta := metaFor(cert)
	if err := g.tx.AddCertificate(claimedIndex, cert.Topic(), cert.Timestamp(), meta, blob); err != nil {
		return nil, coreerrors.Internal("appending certificate to storage", err)
	}

	g.state.apply(cert, claimedIndex)
	return cert, nil
}

// ForgetAllCertificates wipes the certificate log (spec §4.3, used on
// a redacted-flavor switch) and resets the batch's working state to
// empty, so a caller that keeps using this guard afterward sees a
// clean slate rather than the pre-switch aggregate.
func (g *WriteGuard) ForgetAllCertificates() error {
	if err := g.tx.ForgetAllCertificates(); err != nil {
		return coreerrors.Internal("forgetting certificate log", err)
	}
	g.state = newAggregateState(g.store.rootKey)
	return nil
}

// PutManifestEncrypted writes (or overwrites) a manifest's stored
// blob. The manifest bytes are already encrypted by the caller
// (pkg/manifestcache); CertStore never inspects manifest contents.
func (g *WriteGuard) PutManifestEncrypted(id types.EntryID, encryptedBlob []byte) error {
	if err := g.tx.PutManifestEncrypted(id, encryptedBlob); err != nil {
		return coreerrors.Internal("writing manifest blob", err)
	}
	return nil
}

// StateView exposes the batch's in-flight aggregate, e.g. for a
// caller that wants to pre-check a certificate's consistency before
// calling AddCertificate.
func (g *WriteGuard) StateView() certvalidator.StateView {
	return g.state
}

// metaFor extracts the unencrypted indexing metadata CertStore keeps
// alongside each opaque blob, letting later point queries avoid
// decrypting every candidate certificate.
func metaFor(cert *types.Certificate) localdb.CertificateMeta {
	meta := localdb.CertificateMeta{Kind: cert.Kind, Author: cert.Author()}

	switch cert.Kind {
	case types.CertificateKindUser:
		id := cert.User.UserID
		meta.UserID = &id
	case types.CertificateKindDevice:
		device, user := cert.Device.DeviceID, cert.Device.UserID
		meta.DeviceID = &device
		meta.UserID = &user
	case types.CertificateKindUserUpdate:
		id := cert.UserUpdate.UserID
		meta.UserID = &id
	case types.CertificateKindRevokedUser:
		id := cert.RevokedUser.UserID
		meta.UserID = &id
	case types.CertificateKindRealmRole:
		id := cert.RealmRole.UserID
		meta.UserID = &id
	}

	return meta
}
