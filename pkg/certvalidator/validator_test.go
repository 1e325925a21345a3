package certvalidator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/types"
)

func signCert(t *testing.T, signingKey types.SigningKey, cert types.Certificate) []byte {
	t.Helper()
	raw, err := cryptocore.DumpSign(cert, signingKey)
	require.NoError(t, err)
	return raw
}

func userCert(author types.CertificateAuthor, userID types.UserID, profile types.UserProfile, ts types.DateTime) types.Certificate {
	return types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader: types.CertificateHeader{Author: author, Timestamp: ts},
			UserID:            userID,
			Profile:           profile,
		},
	}
}

func TestValidateAcceptsRootSignedFirstUser(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify

	userID := types.NewUserID()
	cert := userCert(types.RootAuthor(), userID, types.ProfileAdmin, types.Now())
	raw := signCert(t, rootSign, cert)

	got, rerr := Validate(raw, 1, state)
	require.Nil(t, rerr)
	require.NotNil(t, got)
	assert.Equal(t, types.CertificateKindUser, got.Kind)
	assert.Equal(t, userID, got.User.UserID)
}

func TestValidateRejectsNonRootFirstUser(t *testing.T) {
	deviceSign, deviceVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	device := types.NewDeviceID()
	state.deviceKeys[device] = deviceVerify

	cert := userCert(types.DeviceAuthor(device), types.NewUserID(), types.ProfileAdmin, types.Now())
	raw := signCert(t, deviceSign, cert)

	_, rerr := Validate(raw, 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonAuthorNotAdmin, rerr.Reason)
}

func TestValidateRejectsIndexAlreadyExists(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify
	state.lastIndex = 5

	cert := userCert(types.RootAuthor(), types.NewUserID(), types.ProfileAdmin, types.Now())
	raw := signCert(t, rootSign, cert)

	_, rerr := Validate(raw, 3, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonIndexAlreadyExists, rerr.Reason)
}

func TestValidateRejectsSkippedIndex(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify
	state.lastIndex = 5

	cert := userCert(types.RootAuthor(), types.NewUserID(), types.ProfileAdmin, types.Now())
	raw := signCert(t, rootSign, cert)

	_, rerr := Validate(raw, 10, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonInvalidIndex, rerr.Reason)
}

func TestValidateRejectsTimestampRegression(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify
	now := types.Now()
	state.lastTopic[types.TopicCommon] = now

	earlier := types.NewDateTime(now.Time().Add(-time.Hour))
	cert := userCert(types.RootAuthor(), types.NewUserID(), types.ProfileAdmin, earlier)
	raw := signCert(t, rootSign, cert)

	_, rerr := Validate(raw, 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonInvalidTimestamp, rerr.Reason)
	require.NotNil(t, rerr.LastCertificateTimestamp)
	require.NotNil(t, rerr.CandidateCertificateTimestamp)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	_, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	wrongSign, _, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify

	cert := userCert(types.RootAuthor(), types.NewUserID(), types.ProfileAdmin, types.Now())
	raw := signCert(t, wrongSign, cert)

	_, rerr := Validate(raw, 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonInvalidSignature, rerr.Reason)
}

func TestValidateRejectsCorruptedPayload(t *testing.T) {
	state := newFakeState()
	_, rerr := Validate([]byte("not a valid envelope"), 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonCorrupted, rerr.Reason)
}

func TestValidateDeviceSelfSignedBySameUserExistingDevice(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	newDeviceSign, newDeviceVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify

	userID := types.NewUserID()
	state.users[userID] = types.ProfileStandard

	existingDevice := types.NewDeviceID()
	existingDeviceSign, existingDeviceVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	state.deviceOwners[existingDevice] = userID
	state.deviceKeys[existingDevice] = existingDeviceVerify
	_ = newDeviceSign

	newDevice := types.NewDeviceID()
	cert := types.Certificate{
		Kind: types.CertificateKindDevice,
		Device: &types.DeviceCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(existingDevice), Timestamp: types.Now()},
			UserID:            userID,
			DeviceID:          newDevice,
			VerifyKey:         newDeviceVerify,
		},
	}
	raw := signCert(t, existingDeviceSign, cert)

	got, rerr := Validate(raw, 1, state)
	require.Nil(t, rerr)
	require.NotNil(t, got)
	assert.Equal(t, newDevice, got.Device.DeviceID)
}

func TestValidateRealmFirstRoleMustBeSelfOwner(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	_ = rootSign

	state := newFakeState()
	state.rootKey = rootVerify

	author := types.NewUserID()
	authorDevice := types.NewDeviceID()
	authorSign, authorVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	state.users[author] = types.ProfileStandard
	state.deviceOwners[authorDevice] = author
	state.deviceKeys[authorDevice] = authorVerify

	realmID := types.NewRealmID()
	other := types.NewUserID()
	cert := types.Certificate{
		Kind: types.CertificateKindRealmRole,
		RealmRole: &types.RealmRoleCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(authorDevice), Timestamp: types.Now()},
			RealmID:           realmID,
			UserID:            other,
			Role:              types.RoleOwner,
		},
	}
	raw := signCert(t, authorSign, cert)

	_, rerr := Validate(raw, 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonRealmFirstRoleMustBeSelfOwner, rerr.Reason)
}

func TestValidateRealmFirstRoleSelfOwnerAccepted(t *testing.T) {
	state := newFakeState()
	author := types.NewUserID()
	authorDevice := types.NewDeviceID()
	authorSign, authorVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	state.users[author] = types.ProfileStandard
	state.deviceOwners[authorDevice] = author
	state.deviceKeys[authorDevice] = authorVerify

	realmID := types.NewRealmID()
	cert := types.Certificate{
		Kind: types.CertificateKindRealmRole,
		RealmRole: &types.RealmRoleCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(authorDevice), Timestamp: types.Now()},
			RealmID:           realmID,
			UserID:            author,
			Role:              types.RoleOwner,
		},
	}
	raw := signCert(t, authorSign, cert)

	got, rerr := Validate(raw, 1, state)
	require.Nil(t, rerr)
	require.NotNil(t, got)
}

func TestValidateRealmRoleRejectsOutsiderOwnerGrant(t *testing.T) {
	state := newFakeState()

	author := types.NewUserID()
	authorDevice := types.NewDeviceID()
	authorSign, authorVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	state.users[author] = types.ProfileStandard
	state.deviceOwners[authorDevice] = author
	state.deviceKeys[authorDevice] = authorVerify

	realmID := types.NewRealmID()
	state.realmRoles[realmID] = map[types.UserID]types.RealmRole{author: types.RoleOwner}

	outsider := types.NewUserID()
	state.users[outsider] = types.ProfileOutsider

	cert := types.Certificate{
		Kind: types.CertificateKindRealmRole,
		RealmRole: &types.RealmRoleCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.DeviceAuthor(authorDevice), Timestamp: types.Now()},
			RealmID:           realmID,
			UserID:            outsider,
			Role:              types.RoleOwner,
		},
	}
	raw := signCert(t, authorSign, cert)

	_, rerr := Validate(raw, 1, state)
	require.NotNil(t, rerr)
	assert.Equal(t, coreerrors.ReasonRealmOutsiderCannotShare, rerr.Reason)
}

func TestValidateNonGoalKindsSkipConsistency(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	state := newFakeState()
	state.rootKey = rootVerify

	cert := types.Certificate{
		Kind: types.CertificateKindRealmName,
		RealmName: &types.RealmNameCertificate{
			CertificateHeader: types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			RealmID:           types.NewRealmID(),
			EncryptedName:     []byte("ciphertext"),
			KeyIndex:          1,
		},
	}
	raw := signCert(t, rootSign, cert)

	got, rerr := Validate(raw, 1, state)
	require.Nil(t, rerr)
	require.NotNil(t, got)
}
