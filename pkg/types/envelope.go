package types

// Certificate is a closed sum type over every certificate variant.
// Exactly one of the pointer fields is non-nil, selected by Kind.
// Consumers dispatch with a type switch on Kind rather than through
// an interface method set, per the "tagged-variant certificates"
// design note: this keeps exhaustiveness checking with the compiler
// (a gofmt/vet-visible switch) instead of hiding it behind dynamic
// dispatch.
type Certificate struct {
	Kind CertificateKind

	User                *UserCertificate
	Device               *DeviceCertificate
	UserUpdate           *UserUpdateCertificate
	RevokedUser          *RevokedUserCertificate
	RealmRole            *RealmRoleCertificate
	RealmName            *RealmNameCertificate
	RealmKeyRotation     *RealmKeyRotationCertificate
	RealmArchiving       *RealmArchivingCertificate
	ShamirRecoveryBrief  *ShamirRecoveryBriefCertificate
	ShamirRecoveryShare  *ShamirRecoveryShareCertificate
	SequesterAuthority   *SequesterAuthorityCertificate
	SequesterService     *SequesterServiceCertificate
	SequesterRevokedService *SequesterRevokedServiceCertificate
}

// Author returns the certificate's signer. SequesterService and
// SequesterRevokedService certificates are always signed by the
// sequester authority, never by a device or the root key; callers
// that need to express that distinctly should check Kind first.
func (c Certificate) Author() CertificateAuthor {
	switch c.Kind {
	case CertificateKindUser:
		return c.User.Author
	case CertificateKindDevice:
		return c.Device.Author
	case CertificateKindUserUpdate:
		return c.UserUpdate.Author
	case CertificateKindRevokedUser:
		return c.RevokedUser.Author
	case CertificateKindRealmRole:
		return c.RealmRole.Author
	case CertificateKindRealmName:
		return c.RealmName.Author
	case CertificateKindRealmKeyRotation:
		return c.RealmKeyRotation.Author
	case CertificateKindRealmArchiving:
		return c.RealmArchiving.Author
	case CertificateKindShamirRecoveryBrief:
		return c.ShamirRecoveryBrief.Author
	case CertificateKindShamirRecoveryShare:
		return c.ShamirRecoveryShare.Author
	case CertificateKindSequesterAuthority:
		return c.SequesterAuthority.Author
	default:
		return CertificateAuthor{}
	}
}

// Timestamp returns the certificate's header timestamp, regardless of
// variant.
func (c Certificate) Timestamp() DateTime {
	switch c.Kind {
	case CertificateKindUser:
		return c.User.Timestamp
	case CertificateKindDevice:
		return c.Device.Timestamp
	case CertificateKindUserUpdate:
		return c.UserUpdate.Timestamp
	case CertificateKindRevokedUser:
		return c.RevokedUser.Timestamp
	case CertificateKindRealmRole:
		return c.RealmRole.Timestamp
	case CertificateKindRealmName:
		return c.RealmName.Timestamp
	case CertificateKindRealmKeyRotation:
		return c.RealmKeyRotation.Timestamp
	case CertificateKindRealmArchiving:
		return c.RealmArchiving.Timestamp
	case CertificateKindShamirRecoveryBrief:
		return c.ShamirRecoveryBrief.Timestamp
	case CertificateKindShamirRecoveryShare:
		return c.ShamirRecoveryShare.Timestamp
	case CertificateKindSequesterAuthority:
		return c.SequesterAuthority.Timestamp
	case CertificateKindSequesterService:
		return c.SequesterService.Timestamp
	case CertificateKindSequesterRevokedService:
		return c.SequesterRevokedService.Timestamp
	default:
		return DateTime{}
	}
}

// Topic returns which certificate stream partition this certificate
// belongs to.
func (c Certificate) Topic() Topic {
	switch c.Kind {
	case CertificateKindRealmRole:
		return RealmTopic(c.RealmRole.RealmID)
	case CertificateKindRealmName:
		return RealmTopic(c.RealmName.RealmID)
	case CertificateKindRealmKeyRotation:
		return RealmTopic(c.RealmKeyRotation.RealmID)
	case CertificateKindRealmArchiving:
		return RealmTopic(c.RealmArchiving.RealmID)
	case CertificateKindSequesterAuthority, CertificateKindSequesterService, CertificateKindSequesterRevokedService:
		return SequesterTopic()
	case CertificateKindShamirRecoveryBrief, CertificateKindShamirRecoveryShare:
		return ShamirRecoveryTopic()
	default:
		return CommonTopic()
	}
}
