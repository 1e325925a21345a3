package certvalidator

import "github.com/cuemby/parsec-core/pkg/types"

// fakeState is a minimal in-memory StateView double for exercising
// Validate without pkg/certstore.
type fakeState struct {
	rootKey          types.VerifyKey
	lastIndex        types.IndexInt
	lastTopic        map[types.TopicKind]types.DateTime
	deviceOwners     map[types.DeviceID]types.UserID
	deviceKeys       map[types.DeviceID]types.VerifyKey
	users            map[types.UserID]types.UserProfile
	revokedUsers     map[types.UserID]bool
	realmRoles       map[types.RealmID]map[types.UserID]types.RealmRole
	sequesterKey     *types.VerifyKey
	sequesterServices map[types.SequesterServiceID]bool
}

func newFakeState() *fakeState {
	return &fakeState{
		lastTopic:         make(map[types.TopicKind]types.DateTime),
		deviceOwners:      make(map[types.DeviceID]types.UserID),
		deviceKeys:        make(map[types.DeviceID]types.VerifyKey),
		users:             make(map[types.UserID]types.UserProfile),
		revokedUsers:      make(map[types.UserID]bool),
		realmRoles:        make(map[types.RealmID]map[types.UserID]types.RealmRole),
		sequesterServices: make(map[types.SequesterServiceID]bool),
	}
}

func (f *fakeState) RootVerifyKey() types.VerifyKey { return f.rootKey }
func (f *fakeState) LastGlobalIndex() types.IndexInt { return f.lastIndex }

func (f *fakeState) LastTopicTimestamp(topic types.Topic) (types.DateTime, bool) {
	ts, ok := f.lastTopic[topic.Kind]
	return ts, ok
}

func (f *fakeState) DeviceVerifyKeyAtIndex(deviceID types.DeviceID, upToIndex types.IndexInt) (types.VerifyKey, bool) {
	key, ok := f.deviceKeys[deviceID]
	return key, ok
}

func (f *fakeState) DeviceOwner(deviceID types.DeviceID) (types.UserID, bool) {
	owner, ok := f.deviceOwners[deviceID]
	return owner, ok
}

func (f *fakeState) DeviceExists(deviceID types.DeviceID) bool {
	_, ok := f.deviceOwners[deviceID]
	return ok
}

func (f *fakeState) HasAnyDevice() bool { return len(f.deviceOwners) > 0 }

func (f *fakeState) UserExists(userID types.UserID) bool {
	_, ok := f.users[userID]
	return ok
}

func (f *fakeState) UserProfile(userID types.UserID) (types.UserProfile, bool) {
	profile, ok := f.users[userID]
	return profile, ok
}

func (f *fakeState) UserRevoked(userID types.UserID) bool { return f.revokedUsers[userID] }
func (f *fakeState) HasAnyUser() bool                     { return len(f.users) > 0 }

func (f *fakeState) RealmRolesForUser(userID types.UserID) []RealmRoleEntry {
	var out []RealmRoleEntry
	for realmID, roles := range f.realmRoles {
		if role, ok := roles[userID]; ok {
			out = append(out, RealmRoleEntry{RealmID: realmID, Role: role})
		}
	}
	return out
}

func (f *fakeState) RealmCurrentRole(realmID types.RealmID, userID types.UserID) (types.RealmRole, bool) {
	roles, ok := f.realmRoles[realmID]
	if !ok {
		return types.RoleNone, false
	}
	role, ok := roles[userID]
	return role, ok
}

func (f *fakeState) RealmHasAnyRole(realmID types.RealmID) bool {
	return len(f.realmRoles[realmID]) > 0
}

func (f *fakeState) RealmRoleCount(realmID types.RealmID) int {
	return len(f.realmRoles[realmID])
}

func (f *fakeState) SequesterAuthorityExists() bool { return f.sequesterKey != nil }

func (f *fakeState) SequesterAuthorityVerifyKey() (types.VerifyKey, bool) {
	if f.sequesterKey == nil {
		return types.VerifyKey{}, false
	}
	return *f.sequesterKey, true
}

func (f *fakeState) SequesterServiceExists(serviceID types.SequesterServiceID) bool {
	return f.sequesterServices[serviceID]
}

var _ StateView = (*fakeState)(nil)
