package certvalidator

import "github.com/cuemby/parsec-core/pkg/types"

// RealmRoleEntry pairs a realm with a user's current role in it, used
// to walk every realm a user holds a role in (UserUpdate's
// Outsider-boundary check).
type RealmRoleEntry struct {
	RealmID types.RealmID
	Role    types.RealmRole
}

// StateView is the read-only slice of accumulated organization state
// CertValidator needs to check a candidate certificate for
// consistency. pkg/certstore's in-memory aggregate (the "cache" of
// CertStore) implements this, and its WriteGuard hands it out, so
// validation during a batch sees certificates already applied earlier
// in the same batch without waiting for commit.
type StateView interface {
	// RootVerifyKey returns the organization's root verify key.
	RootVerifyKey() types.VerifyKey

	// LastGlobalIndex returns the index of the most recently accepted
	// certificate, or 0 if none has been accepted yet.
	LastGlobalIndex() types.IndexInt

	// LastTopicTimestamp returns the most recent timestamp recorded on
	// topic, if any certificate has landed on it yet.
	LastTopicTimestamp(topic types.Topic) (types.DateTime, bool)

	// DeviceVerifyKeyAtIndex returns deviceID's verify key, provided
	// the device was introduced at or before upToIndex. Device
	// verify keys never change after creation, so this degrades to
	// "does the device exist by then".
	DeviceVerifyKeyAtIndex(deviceID types.DeviceID, upToIndex types.IndexInt) (types.VerifyKey, bool)

	// DeviceOwner returns which user owns deviceID, if known.
	DeviceOwner(deviceID types.DeviceID) (types.UserID, bool)
	DeviceExists(deviceID types.DeviceID) bool
	HasAnyDevice() bool

	UserExists(userID types.UserID) bool
	UserProfile(userID types.UserID) (types.UserProfile, bool)
	UserRevoked(userID types.UserID) bool
	HasAnyUser() bool
	RealmRolesForUser(userID types.UserID) []RealmRoleEntry

	// RealmCurrentRole returns userID's current role in realmID.
	// Absence (ok==false) means no role certificate has ever named
	// this user in this realm.
	RealmCurrentRole(realmID types.RealmID, userID types.UserID) (types.RealmRole, bool)
	RealmHasAnyRole(realmID types.RealmID) bool
	RealmRoleCount(realmID types.RealmID) int

	SequesterAuthorityExists() bool
	SequesterAuthorityVerifyKey() (types.VerifyKey, bool)
	SequesterServiceExists(serviceID types.SequesterServiceID) bool
}
