package types

// CertificateKind tags a certificate variant. Dispatch on this tag
// uses a type switch, never interface method sets, so the compiler
// enforces that every switch in certvalidator stays exhaustive.
type CertificateKind int

const (
	CertificateKindUser CertificateKind = iota
	CertificateKindDevice
	CertificateKindUserUpdate
	CertificateKindRevokedUser
	CertificateKindRealmRole
	CertificateKindRealmName
	CertificateKindRealmKeyRotation
	CertificateKindRealmArchiving
	CertificateKindShamirRecoveryBrief
	CertificateKindShamirRecoveryShare
	CertificateKindSequesterAuthority
	CertificateKindSequesterService
	CertificateKindSequesterRevokedService
)

func (k CertificateKind) String() string {
	switch k {
	case CertificateKindUser:
		return "User"
	case CertificateKindDevice:
		return "Device"
	case CertificateKindUserUpdate:
		return "UserUpdate"
	case CertificateKindRevokedUser:
		return "RevokedUser"
	case CertificateKindRealmRole:
		return "RealmRole"
	case CertificateKindRealmName:
		return "RealmName"
	case CertificateKindRealmKeyRotation:
		return "RealmKeyRotation"
	case CertificateKindRealmArchiving:
		return "RealmArchiving"
	case CertificateKindShamirRecoveryBrief:
		return "ShamirRecoveryBrief"
	case CertificateKindShamirRecoveryShare:
		return "ShamirRecoveryShare"
	case CertificateKindSequesterAuthority:
		return "SequesterAuthority"
	case CertificateKindSequesterService:
		return "SequesterService"
	case CertificateKindSequesterRevokedService:
		return "SequesterRevokedService"
	default:
		return "Unknown"
	}
}

// CertificateAuthor is either a device or the organization root key.
// IsRoot distinguishes the two; Device is meaningless when IsRoot.
type CertificateAuthor struct {
	IsRoot bool
	Device DeviceID
}

func RootAuthor() CertificateAuthor { return CertificateAuthor{IsRoot: true} }
func DeviceAuthor(id DeviceID) CertificateAuthor {
	return CertificateAuthor{Device: id}
}

// UserProfile is the access level granted to a user at the
// organization level.
type UserProfile int

const (
	ProfileAdmin UserProfile = iota
	ProfileStandard
	ProfileOutsider
)

func (p UserProfile) String() string {
	switch p {
	case ProfileAdmin:
		return "Admin"
	case ProfileStandard:
		return "Standard"
	case ProfileOutsider:
		return "Outsider"
	default:
		return "Unknown"
	}
}

// RealmRole is the access level granted to a user within one realm.
// RoleNone means the user has been removed from the realm (but the
// certificate recording that removal still exists).
type RealmRole int

const (
	RoleNone RealmRole = iota
	RoleReader
	RoleContributor
	RoleManager
	RoleOwner
)

func (r RealmRole) String() string {
	switch r {
	case RoleNone:
		return "None"
	case RoleReader:
		return "Reader"
	case RoleContributor:
		return "Contributor"
	case RoleManager:
		return "Manager"
	case RoleOwner:
		return "Owner"
	default:
		return "Unknown"
	}
}

// CertificateHeader carries the fields common to every certificate
// variant.
type CertificateHeader struct {
	Author    CertificateAuthor
	Timestamp DateTime
}

func (h CertificateHeader) GetAuthor() CertificateAuthor { return h.Author }
func (h CertificateHeader) GetTimestamp() DateTime        { return h.Timestamp }

// UserCertificate introduces a new user to the organization.
type UserCertificate struct {
	CertificateHeader
	UserID            UserID
	Profile           UserProfile
	InitialUserRealmID RealmID
}

// DeviceCertificate introduces a new device for an existing (or,
// for the very first device, concurrently introduced) user.
type DeviceCertificate struct {
	CertificateHeader
	UserID    UserID
	DeviceID  DeviceID
	VerifyKey VerifyKey
}

// UserUpdateCertificate changes a user's organization-wide profile.
type UserUpdateCertificate struct {
	CertificateHeader
	UserID     UserID
	NewProfile UserProfile
}

// RevokedUserCertificate revokes a user from the organization.
type RevokedUserCertificate struct {
	CertificateHeader
	UserID UserID
}

// RealmRoleCertificate grants, changes, or removes a user's role in a
// realm.
type RealmRoleCertificate struct {
	CertificateHeader
	RealmID  RealmID
	UserID   UserID
	Role     RealmRole
	KeyIndex uint64
}

// RealmNameCertificate sets the encrypted display name of a realm
// under a given key index.
type RealmNameCertificate struct {
	CertificateHeader
	RealmID       RealmID
	EncryptedName []byte
	KeyIndex      uint64
}

// RealmKeyRotationCertificate records a new symmetric key generation
// for a realm.
type RealmKeyRotationCertificate struct {
	CertificateHeader
	RealmID     RealmID
	KeyIndex    uint64
	HashAlgo    string
	EncAlgo     string
	Canary      []byte
}

// RealmArchivingCertificate records an archiving configuration change
// for a realm.
type RealmArchivingCertificate struct {
	CertificateHeader
	RealmID       RealmID
	Configuration RealmArchivingConfiguration
}

type RealmArchivingConfiguration int

const (
	ArchivingAvailable RealmArchivingConfiguration = iota
	ArchivingPlanned
	ArchivingArchived
)

// ShamirRecoveryBriefCertificate describes the topology (threshold,
// recipients) of a shamir recovery setup for a user.
type ShamirRecoveryBriefCertificate struct {
	CertificateHeader
	UserID    UserID
	Threshold int
	PerRecipientShares map[UserID]int
}

// ShamirRecoveryShareCertificate carries one recipient's encrypted
// share of a shamir recovery setup.
type ShamirRecoveryShareCertificate struct {
	CertificateHeader
	UserID         UserID
	RecipientID    UserID
	EncryptedShare []byte
}

// SequesterAuthorityCertificate marks the organization as sequestered
// and names the authority's verification key.
type SequesterAuthorityCertificate struct {
	CertificateHeader
	VerifyKeyDER []byte
}

// SequesterServiceCertificate registers an optional third-party
// sequester service, signed by the sequester authority (not by a
// device or the root key).
type SequesterServiceCertificate struct {
	Timestamp DateTime
	ServiceID SequesterServiceID
}

// SequesterRevokedServiceCertificate revokes a previously registered
// sequester service.
type SequesterRevokedServiceCertificate struct {
	Timestamp DateTime
	ServiceID SequesterServiceID
}

// SequesterServiceID identifies a sequester service.
type SequesterServiceID [16]byte
