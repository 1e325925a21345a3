package types

import (
	"github.com/google/uuid"
)

// UserID uniquely identifies a user within an organization.
type UserID uuid.UUID

// DeviceID uniquely identifies a device. A device belongs to exactly
// one user, but that association is recorded on the DeviceCertificate,
// never derivable from the id's bit layout.
type DeviceID uuid.UUID

// RealmID uniquely identifies a realm (workspace). A workspace's root
// manifest has EntryID == EntryID(RealmID).
type RealmID uuid.UUID

// EntryID uniquely identifies a manifest (file or folder) inside a
// workspace.
type EntryID uuid.UUID

// BlockID uniquely identifies a block of file content.
type BlockID uuid.UUID

// ChunkID uniquely identifies a local chunk of file content, prior to
// being grouped into a block.
type ChunkID uuid.UUID

// IndexInt is a server-assigned, strictly increasing certificate
// ordinal. The first certificate of an organization has index 1.
type IndexInt int64

// NewUserID, NewDeviceID, ... generate fresh random identifiers. They
// are used by tests and by code synthesizing local-only entities (e.g.
// a speculative root manifest id, which is in fact always the realm's
// own id and never generated this way, but workspace entries created
// locally before the first sync are).

func NewUserID() UserID     { return UserID(uuid.New()) }
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }
func NewRealmID() RealmID   { return RealmID(uuid.New()) }
func NewEntryID() EntryID   { return EntryID(uuid.New()) }
func NewBlockID() BlockID   { return BlockID(uuid.New()) }
func NewChunkID() ChunkID   { return ChunkID(uuid.New()) }

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id DeviceID) String() string { return uuid.UUID(id).String() }
func (id RealmID) String() string  { return uuid.UUID(id).String() }
func (id EntryID) String() string  { return uuid.UUID(id).String() }
func (id BlockID) String() string  { return uuid.UUID(id).String() }
func (id ChunkID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool   { return id == UserID{} }
func (id DeviceID) IsZero() bool { return id == DeviceID{} }
func (id RealmID) IsZero() bool  { return id == RealmID{} }
func (id EntryID) IsZero() bool  { return id == EntryID{} }

// RealmRootEntryID returns the EntryID of a realm's root manifest,
// which is always the realm id reinterpreted as an entry id.
func RealmRootEntryID(realm RealmID) EntryID {
	return EntryID(realm)
}

// EntryIDAsRealmID reinterprets an EntryID as a RealmID. Only valid
// when the caller already knows the entry is a workspace root.
func EntryIDAsRealmID(id EntryID) RealmID {
	return RealmID(id)
}
