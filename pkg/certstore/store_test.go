package certstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/serverclient"
	"github.com/cuemby/parsec-core/pkg/types"
)

// testOrg bundles everything a test needs to build certificates for a
// single organization: its root signing key and a freshly-opened
// Store, backed by a temp-dir BoltStore.
type testOrg struct {
	t          *testing.T
	rootSign   types.SigningKey
	rootVerify types.VerifyKey
	storage    *localdb.BoltStore
	store      *Store
	localUser  types.UserID
}

func newTestOrg(t *testing.T, localUser types.UserID) *testOrg {
	t.Helper()

	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	dir, err := os.MkdirTemp("", "parsec-certstore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	storage, err := localdb.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	deviceKey, err := cryptocore.DeriveDeviceKey([]byte("test-device-secret"))
	require.NoError(t, err)

	store, err := New(Config{
		Storage:     storage,
		Transactor:  storage,
		Client:      serverclient.NewFake(),
		Bus:         events.NewBroker(),
		DeviceKey:   deviceKey,
		RootKey:     rootVerify,
		LocalUserID: localUser,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Stop() })

	return &testOrg{t: t, rootSign: rootSign, rootVerify: rootVerify, storage: storage, store: store, localUser: localUser}
}

func (o *testOrg) signRoot(cert types.Certificate) []byte {
	o.t.Helper()
	raw, err := cryptocore.DumpSign(cert, o.rootSign)
	require.NoError(o.t, err)
	return raw
}

func (o *testOrg) sign(key types.SigningKey, cert types.Certificate) []byte {
	o.t.Helper()
	raw, err := cryptocore.DumpSign(cert, key)
	require.NoError(o.t, err)
	return raw
}

// bootstrapAdmin ingests a root-signed Admin user plus that user's
// first device, returning the device's ID and signing key so the
// caller can author further certificates as that admin.
func (o *testOrg) bootstrapAdmin(t *testing.T) (types.UserID, types.DeviceID, types.SigningKey) {
	t.Helper()

	adminUser := types.NewUserID()
	adminDevice := types.NewDeviceID()
	adminSign, adminVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	userCert := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             adminUser,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	deviceCert := types.Certificate{
		Kind: types.CertificateKindDevice,
		Device: &types.DeviceCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:            adminUser,
			DeviceID:          adminDevice,
			VerifyKey:         adminVerify,
		},
	}

	outcome, err := o.store.IngestBatch([][]byte{o.signRoot(userCert), o.signRoot(deviceCert)})
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	return adminUser, adminDevice, adminSign
}

func TestForWriteAppliesAndForReadObserves(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	bootstrapUser := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	raw := org.signRoot(bootstrapUser)

	outcome, err := org.store.ForWrite(func(g *WriteGuard) (Outcome, error) {
		_, err := g.AddCertificate(raw, 1)
		return OutcomeApplied, err
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	err = org.store.ForRead(func(g *ReadGuard) error {
		view, err := g.StateView()
		require.NoError(t, err)
		assert.True(t, view.UserExists(userID))
		profile, ok := view.UserProfile(userID)
		require.True(t, ok)
		assert.Equal(t, types.ProfileAdmin, profile)
		assert.Equal(t, types.IndexInt(1), view.LastGlobalIndex())
		return nil
	})
	require.NoError(t, err)
}

func TestForWriteRollbackClearsCacheAndLeavesStorageUntouched(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	bootstrapUser := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	raw := org.signRoot(bootstrapUser)

	_, err := org.store.ForWrite(func(g *WriteGuard) (Outcome, error) {
		if _, err := g.AddCertificate(raw, 1); err != nil {
			return OutcomeApplied, err
		}
		return OutcomeApplied, assert.AnError
	})
	require.Error(t, err)

	last, err := org.storage.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, types.IndexInt(0), last, "rolled-back certificate must not be visible in storage")

	err = org.store.ForRead(func(g *ReadGuard) error {
		view, err := g.StateView()
		require.NoError(t, err)
		assert.False(t, view.UserExists(userID))
		assert.Equal(t, types.IndexInt(0), view.LastGlobalIndex())
		return nil
	})
	require.NoError(t, err)
}

func TestForWriteRejectsOutOfOrderIndex(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	bootstrapUser := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	raw := org.signRoot(bootstrapUser)

	_, err := org.store.ForWrite(func(g *WriteGuard) (Outcome, error) {
		_, err := g.AddCertificate(raw, 3)
		return OutcomeApplied, err
	})
	require.Error(t, err)
}

func TestIngestBatchDetectsOutsiderFlavorSwitch(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)
	_, adminDevice, adminSign := org.bootstrapAdmin(t)

	bootstrapUser := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.DeviceAuthor(adminDevice), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileStandard,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	bootstrapRaw := org.sign(adminSign, bootstrapUser)

	outcome, err := org.store.IngestBatch([][]byte{bootstrapRaw})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	switchUpdate := types.Certificate{
		Kind: types.CertificateKindUserUpdate,
		UserUpdate: &types.UserUpdateCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(adminDevice), Timestamp: types.Now()},
			UserID:            userID,
			NewProfile:        types.ProfileOutsider,
		},
	}
	switchRaw := org.sign(adminSign, switchUpdate)

	outcome, err = org.store.IngestBatch([][]byte{switchRaw})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSwitched, outcome)

	last, err := org.storage.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, types.IndexInt(0), last, "a flavor switch must forget the whole log")
}

func TestIngestBatchNeverSwitchesOnFirstEverBatch(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	adminUser := types.NewUserID()
	adminDevice := types.NewDeviceID()
	adminSign, adminVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(i int) types.DateTime { return types.NewDateTime(base.Add(time.Duration(i) * time.Millisecond)) }

	adminUserCert := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: at(0)},
			UserID:             adminUser,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	adminDeviceCert := types.Certificate{
		Kind: types.CertificateKindDevice,
		Device: &types.DeviceCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.RootAuthor(), Timestamp: at(1)},
			UserID:            adminUser,
			DeviceID:          adminDevice,
			VerifyKey:         adminVerify,
		},
	}
	localUserCert := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.DeviceAuthor(adminDevice), Timestamp: at(2)},
			UserID:             userID,
			Profile:            types.ProfileStandard,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	// Within the very same first-ever batch, the local user is
	// immediately flipped to Outsider. Because storage was empty
	// before this batch started, this must not count as a flavor
	// switch even though a UserUpdate crosses the Outsider boundary.
	localUserSwitch := types.Certificate{
		Kind: types.CertificateKindUserUpdate,
		UserUpdate: &types.UserUpdateCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(adminDevice), Timestamp: at(3)},
			UserID:            userID,
			NewProfile:        types.ProfileOutsider,
		},
	}

	outcome, err := org.store.IngestBatch([][]byte{
		org.signRoot(adminUserCert),
		org.signRoot(adminDeviceCert),
		org.sign(adminSign, localUserCert),
		org.sign(adminSign, localUserSwitch),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	last, err := org.storage.LastIndex()
	require.NoError(t, err)
	assert.Equal(t, types.IndexInt(4), last, "the first-ever batch must not be discarded")
}

func TestForReadWithRequirementsPollsUntilUpToDate(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	bootstrapUser := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	raw := org.signRoot(bootstrapUser)

	fake := org.store.client.(*serverclient.Fake)
	fake.SeedCertificate(1, types.CommonTopic(), bootstrapUser.Timestamp(), raw)

	ts := bootstrapUser.Timestamp()
	requirements := types.NewPerTopicLastTimestamps()
	requirements.Common = &ts

	var sawUser bool
	err := org.store.ForReadWithRequirements(context.Background(), requirements, func(g *ReadGuard) error {
		view, err := g.StateView()
		if err != nil {
			return err
		}
		sawUser = view.UserExists(userID)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawUser)
}

func TestForReadWithRequirementsPropagatesOffline(t *testing.T) {
	userID := types.NewUserID()
	org := newTestOrg(t, userID)

	fake := org.store.client.(*serverclient.Fake)
	fake.SetOffline(true)

	ts := types.Now()
	requirements := types.NewPerTopicLastTimestamps()
	requirements.Common = &ts

	err := org.store.ForReadWithRequirements(context.Background(), requirements, func(g *ReadGuard) error {
		return nil
	})
	assert.ErrorIs(t, err, coreerrors.Offline)
}
